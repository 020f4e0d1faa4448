// Package mockapi is a development stand-in for the remote alert API.
// It implements the authentication endpoints the web client depends on.
package mockapi

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-alert-web/apiclient"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/rs/zerolog/log"
)

const (
	routeVerifyUser = "/api/admin/users/{id}/verify"

	// affinityCookie imitates a load balancer cookie the client must drop on sign out
	affinityCookie = "api_affinity"
)

type Server struct {
	mux    *http.ServeMux
	users  users.UserRepo
	tokens *TokenIssuer
}

type Option func(*options)

type options struct {
	secret string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func WithSecret(secret string) Option {
	return func(o *options) {
		o.secret = secret
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithNowTime overrides the clock used for token issue and expiry
func WithNowTime(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(repo users.UserRepo, opts ...Option) *Server {
	o := options{
		secret: "dev-secret-change-me",
		issuer: "alert-mockapi",
		ttl:    time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		mux:    http.NewServeMux(),
		users:  repo,
		tokens: NewTokenIssuer(o.secret, o.issuer, o.ttl, o.now),
	}
	s.mux.HandleFunc("POST "+apiclient.PathLogin, s.LoginHandler)
	s.mux.HandleFunc("POST "+apiclient.PathLogout, s.requireToken(s.LogoutHandler))
	s.mux.HandleFunc("GET "+apiclient.PathProfile, s.requireToken(s.ProfileHandler))
	s.mux.HandleFunc("PUT "+apiclient.PathProfile, s.requireToken(s.UpdateProfileHandler))
	s.mux.HandleFunc("POST "+apiclient.PathRegister, s.RegisterHandler)
	s.mux.HandleFunc("POST "+routeVerifyUser, s.requireToken(s.VerifyUserHandler))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Tokens exposes the issuer so tests can mint or inspect tokens
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Message: "malformed request body"})
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Identifier) == "" {
		fields["identifier"] = "username or email is required"
	}
	if req.Secret == "" {
		fields["secret"] = "password is required"
	}
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Fields: fields})
		return
	}

	user, err := s.users.GetByIdentifier(req.Identifier)
	if err != nil || !users.CheckPasswordHash(req.Secret, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, apiclient.ErrorBody{Code: apiclient.CodeInvalidCredentials, Message: "invalid username or password"})
		return
	}
	if user.Blocked {
		writeError(w, http.StatusForbidden, apiclient.ErrorBody{Code: apiclient.CodeAccountRestricted, Message: "account is disabled"})
		return
	}

	token, err := s.tokens.Create(user)
	if err != nil {
		log.Err(err).Msg("Failed to issue token")
		writeError(w, http.StatusInternalServerError, apiclient.ErrorBody{Code: "internal", Message: "could not issue token"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     affinityCookie,
		Value:    uuid.New().String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("User logged in")
	writeJSON(w, http.StatusOK, apiclient.LoginResponse{User: user, Token: token})
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request, claims *Claims, _ *users.User) {
	s.tokens.Revoke(claims)
	log.Info().Str("user_id", claims.Subject).Msg("User logged out")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request, _ *Claims, user *users.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request, _ *Claims, user *users.User) {
	var upd apiclient.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Message: "malformed request body"})
		return
	}

	fields := map[string]string{}
	if upd.Email != nil {
		if _, err := mail.ParseAddress(*upd.Email); err != nil {
			fields["email"] = "must be a valid email address"
		} else if other, err := s.users.GetByEmail(*upd.Email); err == nil && other.ID != user.ID {
			fields["email"] = "already in use"
		} else {
			user.Email = *upd.Email
		}
	}
	if upd.District != nil {
		user.District = strings.TrimSpace(*upd.District)
	}
	if upd.NotificationPreferences != nil {
		if !validSeverity(upd.NotificationPreferences.MinSeverity) {
			fields["minSeverity"] = "must be one of low, moderate, severe, extreme"
		} else {
			user.NotificationPreferences = *upd.NotificationPreferences
		}
	}
	if upd.Location != nil {
		loc := *upd.Location
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			fields["location"] = "coordinates out of range"
		} else {
			user.Location = &loc
		}
	}
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Fields: fields})
		return
	}

	if err := s.users.Upsert(user); err != nil {
		log.Err(err).Msg("Failed to save profile")
		writeError(w, http.StatusInternalServerError, apiclient.ErrorBody{Code: "internal"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var reg apiclient.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Message: "malformed request body"})
		return
	}

	fields := map[string]string{}
	if err := users.ValidateUsername(reg.Username); err != nil {
		fields["username"] = err.Error()
	} else if _, err := s.users.GetByUsername(reg.Username); err == nil {
		fields["username"] = "already taken"
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil {
		fields["email"] = "must be a valid email address"
	} else if _, err := s.users.GetByEmail(reg.Email); err == nil {
		fields["email"] = "already registered"
	}
	if err := users.ValidatePasswordStrength(reg.Password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, apiclient.ErrorBody{Code: apiclient.CodeValidation, Fields: fields})
		return
	}

	hash, err := users.HashPassword(reg.Password)
	if err != nil {
		log.Err(err).Msg("Failed to hash password")
		writeError(w, http.StatusInternalServerError, apiclient.ErrorBody{Code: "internal"})
		return
	}
	user := &users.User{
		Username:     reg.Username,
		Email:        reg.Email,
		District:     strings.TrimSpace(reg.District),
		Role:         users.RoleCitizen,
		PasswordHash: hash,
		NotificationPreferences: users.NotificationPreferences{
			Email:       true,
			MinSeverity: "moderate",
		},
	}
	if err := s.users.Upsert(user); err != nil {
		log.Err(err).Msg("Failed to register user")
		writeError(w, http.StatusInternalServerError, apiclient.ErrorBody{Code: "internal"})
		return
	}
	log.Info().Str("user_id", user.ID).Msg("User registered")
	writeJSON(w, http.StatusCreated, user)
}

// VerifyUserHandler clears the verification flag. Admins and authorities only.
func (s *Server) VerifyUserHandler(w http.ResponseWriter, r *http.Request, _ *Claims, caller *users.User) {
	if caller.Role != users.RoleAdmin && caller.Role != users.RoleAuthority {
		writeError(w, http.StatusForbidden, apiclient.ErrorBody{Code: apiclient.CodeForbidden, Message: "admin access required"})
		return
	}
	id := r.PathValue("id")
	if err := s.users.SetVerified(id, true); err != nil {
		writeError(w, http.StatusNotFound, apiclient.ErrorBody{Code: "not_found", Message: "user not found"})
		return
	}
	user, err := s.users.GetByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, apiclient.ErrorBody{Code: "not_found", Message: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *Claims, user *users.User)

// requireToken validates the bearer token and loads the caller
func (s *Server) requireToken(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeError(w, http.StatusUnauthorized, apiclient.ErrorBody{Code: apiclient.CodeInvalidToken, Message: "missing bearer token"})
			return
		}

		claims, err := s.tokens.Verify(parts[1])
		if err != nil {
			code := apiclient.CodeInvalidToken
			if apperrors.Is(err, apperrors.ErrTokenExpired) {
				code = apiclient.CodeTokenExpired
			}
			writeError(w, http.StatusUnauthorized, apiclient.ErrorBody{Code: code, Message: err.Error()})
			return
		}

		user, err := s.users.GetByID(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, apiclient.ErrorBody{Code: apiclient.CodeInvalidToken, Message: "unknown subject"})
			return
		}
		if user.Blocked {
			writeError(w, http.StatusForbidden, apiclient.ErrorBody{Code: apiclient.CodeAccountRestricted, Message: "account is disabled"})
			return
		}
		next(w, r, claims, user)
	}
}

func validSeverity(s string) bool {
	switch s {
	case "", "low", "moderate", "severe", "extreme":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, body apiclient.ErrorBody) {
	writeJSON(w, status, body)
}
