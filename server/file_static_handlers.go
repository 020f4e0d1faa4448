package server

import (
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed static/*
var staticFiles embed.FS

// FileServerHandler serves the embedded stylesheet and images under /static/
func FileServerHandler() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.FS(StaticFilesFS())))
}

func StaticFilesFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create static sub filesystem: " + err.Error())
	}
	return subFS
}

// StaticFileHandler serves a single embedded file at a fixed root path such as /favicon.svg
func StaticFileHandler(fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := StreamFile(w, r, fileName); err != nil {
			log.Err(err).Str("file", fileName).Msg("Failed to stream static file")
			http.NotFound(w, r)
		}
	}
}

func StreamFile(w http.ResponseWriter, _ *http.Request, fileName string) error {
	data, err := fs.ReadFile(StaticFilesFS(), fileName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}
