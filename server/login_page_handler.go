package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-alert-web/guard"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/sanitize"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/rs/zerolog/log"
)

const msgCredentialsRequired = "Username or email and password are required."

// LoginPageUIHandler displays the login page (GET /login)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := snapshotFrom(r)
		q := r.URL.Query()
		next := q.Get("next")

		if snap.Authenticated() {
			redirectSuccess(w, r, nextOrLanding(next, snap.User.Role))
			return
		}

		data := s.pageDataFor(r, snap, "Sign in", func(p *pageData) {
			p.Next = next
			p.Identifier = q.Get("identifier")
			p.Remember = q.Get("remember") == "1"
			p.Retry = q.Get("retry") == "1"
			p.Error = q.Get("error")
			p.Message = q.Get("message")
			if p.Message == p.Notice {
				p.Notice = ""
			}
		})
		s.render(w, http.StatusOK, "login.html", data)
	}
}

// LoginSubmissionHandler processes the login form submission (POST /auth/login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		identifier := strings.TrimSpace(r.FormValue("identifier"))
		password := r.FormValue("password")
		remember := r.FormValue("remember") == "on"
		next := r.FormValue("next")

		back := url.Values{}
		if identifier != "" {
			back.Set("identifier", identifier)
		}
		if guard.SafeNext(next) {
			back.Set("next", next)
		}

		if identifier == "" || password == "" {
			redirectWithError(w, r, RouteLogin, back, msgCredentialsRequired)
			return
		}

		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Login: failed to resolve device session")
			redirectWithError(w, r, RouteLogin, back, apperrors.MsgUnexpected)
			return
		}

		if err := store.Login(r.Context(), identifier, password, remember); err != nil {
			if apperrors.Retryable(err) {
				back.Set("retry", "1")
				if remember {
					back.Set("remember", "1")
				}
			}
			redirectWithError(w, r, RouteLogin, back, apperrors.UserMessage(err))
			return
		}

		ctx := r.Context()
		if err := s.sessions.RenewToken(ctx); err != nil {
			log.Err(err).Msg("Login: failed to renew device cookie")
		}
		s.sessions.RememberMe(ctx, remember)

		snap := store.Snapshot()
		redirectSuccess(w, r, nextOrLanding(next, snap.Role()))
	}
}

// LogoutHandler ends the device's session and wipes its cookies (POST /auth/logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Logout: failed to resolve device session")
			sanitize.ExpireCookies(w, r)
			redirectSuccess(w, r, guard.LoginURL("", ""))
			return
		}

		result := store.Logout(r.Context())

		// the device cookie survives so other tabs keep their device
		expired := sanitize.ExpireCookies(w, r, deviceCookieName)
		if err := s.sessions.RenewToken(r.Context()); err != nil {
			log.Err(err).Msg("Logout: failed to renew device cookie")
		}
		s.sessions.RememberMe(r.Context(), false)
		log.Debug().Int("cookies", expired).Msg("Logout: expired browser cookies")

		redirectSuccess(w, r, guard.LoginURL("", result.Message))
	}
}

// RefreshProfileHandler re-fetches the user, e.g. after an administrator approves the account (POST /auth/refresh)
func (s *Server) RefreshProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		next := r.FormValue("next")

		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Refresh: failed to resolve device session")
			http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
			return
		}

		err = store.RefreshProfile(r.Context())
		snap := store.Snapshot()
		if !snap.Authenticated() {
			msg := snap.Notice
			if msg == "" {
				msg = guard.MsgSignInToView
			}
			redirectSuccess(w, r, guard.LoginURL(next, msg))
			return
		}
		if err != nil {
			redirectWithError(w, r, users.LandingRoute(snap.Role()), nil, apperrors.UserMessage(err))
			return
		}
		redirectSuccess(w, r, nextOrLanding(next, snap.Role()))
	}
}
