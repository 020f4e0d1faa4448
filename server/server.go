package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/jrsteele09/go-alert-web/internal/config"
	"github.com/jrsteele09/go-alert-web/server/devices"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	handler   http.Handler
	routes    []string
	config    config.Config
	devices   *devices.Registry
	sessions  *scs.SessionManager
	templates map[string]*template.Template
}

// New builds the web front end. sessions carries the device cookie; registry
// resolves a device to its session store.
func New(c config.Config, registry *devices.Registry, sessions *scs.SessionManager) (*Server, error) {
	templates, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s := &Server{
		env:       c.GetEnv(),
		mux:       http.NewServeMux(),
		config:    c,
		devices:   registry,
		sessions:  sessions,
		templates: templates,
	}
	s.handler = sessions.LoadAndSave(s.mux)

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logError(method, path, msg string) {
	log.Warn().Msgf("[%-19s] %s %s", colourMethod(method), path, Red+msg+ResetColor)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
