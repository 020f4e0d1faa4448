package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-alert-web/permissions"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/rs/zerolog/log"
)

// sessionResponse never carries the token
type sessionResponse struct {
	Status        session.Status `json:"status"`
	Initialized   bool           `json:"initialized"`
	Authenticated bool           `json:"authenticated"`
	User          *users.User    `json:"user,omitempty"`
	Landing       string         `json:"landing,omitempty"`
	Notice        string         `json:"notice,omitempty"`
	LastError     string         `json:"lastError,omitempty"`
}

type capabilitiesResponse struct {
	Authenticated bool                            `json:"authenticated"`
	Role          users.Role                      `json:"role,omitempty"`
	Verified      bool                            `json:"verified"`
	Capabilities  map[permissions.Capability]bool `json:"capabilities"`
}

// SessionStatusHandler reports the device's session state (GET /api/session)
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Session status: failed to resolve device session")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session unavailable"})
			return
		}

		snap := s.currentSnapshot(r.Context(), store)
		resp := sessionResponse{
			Status:        snap.Status,
			Initialized:   snap.Initialized,
			Authenticated: snap.Authenticated(),
			Notice:        snap.Notice,
			LastError:     snap.LastError,
		}
		if resp.Authenticated {
			resp.User = snap.User
			resp.Landing = users.LandingRoute(snap.User.Role)
		}

		status := http.StatusOK
		if snap.Loading() {
			status = http.StatusAccepted
		}
		writeJSON(w, status, resp)
	}
}

// CapabilitiesHandler reports what the device's user may do (GET /api/capabilities)
func (s *Server) CapabilitiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Capabilities: failed to resolve device session")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session unavailable"})
			return
		}

		snap := s.currentSnapshot(r.Context(), store)
		var user *users.User
		if snap.Authenticated() {
			user = snap.User
		}
		resp := capabilitiesResponse{
			Authenticated: user != nil,
			Capabilities:  permissions.Evaluate(user),
		}
		if user != nil {
			resp.Role = user.Role
			resp.Verified = user.Verified
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode JSON response")
	}
}
