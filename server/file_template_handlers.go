package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

// pages are rendered inside layout.html
var pages = []string{
	"login.html",
	"register.html",
	"loading.html",
	"pending.html",
	"unauthorized.html",
	"page.html",
	"profile.html",
}

var templateFuncs = template.FuncMap{
	"selected": func(a, b string) bool { return a == b },
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", name)
}

func parsePages() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, err
		}
		out[name] = tmpl
	}
	return out, nil
}

// render writes a page, buffering first so a template error never leaves a half written response
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("Unknown template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

const contentTypeHTML = "text/html; charset=utf-8"
