package server

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-alert-web/apiclient"
	"github.com/jrsteele09/go-alert-web/guard"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/rs/zerolog/log"
)

const msgAccountCreated = "Account created, please sign in."

// ValidatePasswordHandler validates password strength for the register form via HTMX
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		password := r.FormValue("password")
		w.Header().Set("Content-Type", contentTypeHTML)

		if password == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := users.ValidatePasswordStrength(password); err != nil {
			w.Header().Set("HX-Trigger", `{"passwordInvalid": ""}`)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `<span class="text-danger">%s</span>`, html.EscapeString(err.Error()))
			return
		}

		w.Header().Set("HX-Trigger", `{"passwordValid": ""}`)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<span class="text-success">Strong password</span>`)
	}
}

// RegisterGetHandler renders the registration page (GET /register)
func (s *Server) RegisterGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := snapshotFrom(r)
		if snap.Authenticated() {
			redirectSuccess(w, r, users.LandingRoute(snap.User.Role))
			return
		}
		data := s.pageDataFor(r, snap, "Create an account", func(p *pageData) {
			p.Error = r.URL.Query().Get("error")
		})
		s.render(w, http.StatusOK, "register.html", data)
	}
}

// RegisterPostHandler creates the account and sends the user to sign in (POST /auth/register)
func (s *Server) RegisterPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		registration := apiclient.Registration{
			Username: strings.TrimSpace(r.FormValue("username")),
			Email:    strings.TrimSpace(r.FormValue("email")),
			Password: r.FormValue("password"),
			District: strings.TrimSpace(r.FormValue("district")),
		}

		fields := map[string]string{}
		if err := users.ValidateUsername(registration.Username); err != nil {
			fields["username"] = err.Error()
		}
		if err := users.ValidatePasswordStrength(registration.Password); err != nil {
			fields["password"] = err.Error()
		}
		if registration.Password != r.FormValue("confirm_password") {
			fields["confirm_password"] = "passwords do not match"
		}
		if len(fields) > 0 {
			s.renderRegisterError(w, r, registration, &apperrors.ValidationError{Fields: fields})
			return
		}

		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Register: failed to resolve device session")
			http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
			return
		}

		if _, err := store.Register(r.Context(), registration); err != nil {
			s.renderRegisterError(w, r, registration, err)
			return
		}

		q := url.Values{}
		q.Set("identifier", registration.Username)
		q.Set("message", msgAccountCreated)
		redirectSuccess(w, r, guard.LoginRoute+"?"+q.Encode())
	}
}

func (s *Server) renderRegisterError(w http.ResponseWriter, r *http.Request, registration apiclient.Registration, err error) {
	status := http.StatusBadGateway
	data := s.pageDataFor(r, snapshotFrom(r), "Create an account", func(p *pageData) {
		p.Error = apperrors.UserMessage(err)
		p.Form["username"] = registration.Username
		p.Form["email"] = registration.Email
		p.Form["district"] = registration.District
	})

	var verr *apperrors.ValidationError
	if apperrors.As(err, &verr) {
		status = http.StatusUnprocessableEntity
		for name, msg := range verr.Fields {
			data.Fields[name] = msg
		}
	} else if apperrors.Is(err, apperrors.ErrNetwork) {
		status = http.StatusServiceUnavailable
	}
	s.render(w, status, "register.html", data)
}
