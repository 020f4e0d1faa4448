package server

import (
	"net/http"

	"github.com/jrsteele09/go-alert-web/guard"
	"github.com/jrsteele09/go-alert-web/permissions"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/users"
)

// pageData is the template model shared by every page
type pageData struct {
	AppName       string
	Title         string
	Path          string
	User          *users.User
	Authenticated bool
	Caps          map[string]bool // capability name -> granted
	Landing       string
	Message       string
	Notice        string
	Error         string
	Next          string
	Identifier    string
	Remember      bool
	Retry         bool // the last attempt failed for a reason worth retrying unchanged
	Fields        map[string]string // field name -> validation message
	Form          map[string]string // submitted values, echoed back on error
	Support       string
	Refresh       int // seconds, for the loading view
	Severities    []string
}

func (s *Server) pageDataFor(r *http.Request, snap session.Snapshot, title string, opts ...func(*pageData)) pageData {
	var user *users.User
	if snap.Authenticated() {
		user = snap.User
	}
	caps := make(map[string]bool)
	for _, c := range permissions.All() {
		caps[string(c)] = permissions.Can(user, c)
	}

	p := pageData{
		AppName:       s.config.GetAppName(),
		Title:         title,
		Path:          r.URL.Path,
		User:          user,
		Authenticated: user != nil,
		Caps:          caps,
		Notice:        snap.Notice,
		Support:       s.config.GetSupportContact(),
		Fields:        map[string]string{},
		Form:          map[string]string{},
	}
	if user != nil {
		p.Landing = users.LandingRoute(user.Role)
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// IndexHandler sends signed in users to their dashboard and everyone else to the public alerts
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := snapshotFrom(r)
		if snap.Authenticated() {
			redirectSuccess(w, r, users.LandingRoute(snap.User.Role))
			return
		}
		redirectSuccess(w, r, RouteAlerts)
	}
}

// DashboardHandler renders a role dashboard
func (s *Server) DashboardHandler(title string) http.HandlerFunc {
	return s.FeaturePageHandler(title)
}

// FeaturePageHandler renders a page whose actions are shown per capability
func (s *Server) FeaturePageHandler(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageDataFor(r, snapshotFrom(r), title, func(p *pageData) {
			p.Message = r.URL.Query().Get("message")
		})
		s.render(w, http.StatusOK, "page.html", data)
	}
}

// renderLoading shows a placeholder that reloads itself until the session has settled
func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request) {
	data := s.pageDataFor(r, session.Snapshot{}, "Loading", func(p *pageData) {
		p.Refresh = 1
		p.Next = r.URL.RequestURI()
	})
	if isHTMXRequest(r) {
		w.Header().Set("HX-Refresh", "true")
	}
	s.render(w, http.StatusOK, "loading.html", data)
}

// nextOrLanding returns next when it is a safe local path, else the role's dashboard
func nextOrLanding(next string, role users.Role) string {
	if guard.SafeNext(next) {
		return next
	}
	return users.LandingRoute(role)
}
