package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-alert-web/guard"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyStore stores the device's session store
	ContextKeyStore ContextKey = "session_store"
	// ContextKeySnapshot stores the session snapshot the guard decided on
	ContextKeySnapshot ContextKey = "session_snapshot"
)

// RequireAccess gates an HTML route. Checks run in a fixed order: initialisation,
// authentication, verification, then role.
func (s *Server) RequireAccess(req guard.Requirement) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			store, err := s.storeFor(r)
			if err != nil {
				log.Err(err).Msg("Failed to resolve device session")
				http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
				return
			}

			snap := s.currentSnapshot(r.Context(), store)
			decision := guard.Decide(snap, r.URL.RequestURI(), req)

			switch decision.Outcome {
			case guard.Loading:
				s.renderLoading(w, r)
			case guard.RedirectLogin:
				redirectSuccess(w, r, decision.RedirectTo)
			case guard.PendingVerification:
				s.render(w, http.StatusForbidden, "pending.html", s.pageDataFor(r, snap, "Verification pending", withLanding(decision)))
			case guard.Unauthorized:
				s.render(w, http.StatusForbidden, "unauthorized.html", s.pageDataFor(r, snap, "Access denied", withLanding(decision)))
			default:
				ctx := context.WithValue(r.Context(), ContextKeyStore, store)
				ctx = context.WithValue(ctx, ContextKeySnapshot, snap)
				next(w, r.WithContext(ctx))
			}
		}
	}
}

// OptionalSession attaches the device's session to public routes without gating them
func (s *Server) OptionalSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := s.storeFor(r)
		if err != nil {
			log.Err(err).Msg("Failed to resolve device session")
			next(w, r)
			return
		}
		snap := s.currentSnapshot(r.Context(), store)
		ctx := context.WithValue(r.Context(), ContextKeyStore, store)
		ctx = context.WithValue(ctx, ContextKeySnapshot, snap)
		next(w, r.WithContext(ctx))
	}
}

// currentSnapshot waits briefly for initialisation then reconciles with other tabs
func (s *Server) currentSnapshot(ctx context.Context, store *session.Store) session.Snapshot {
	snap := s.awaitReady(ctx, store)
	if snap.Loading() {
		return snap
	}
	if err := store.Revalidate(ctx); err != nil {
		log.Debug().Err(err).Msg("Revalidation ended the session")
	}
	return store.Snapshot()
}

func withLanding(d guard.Decision) func(*pageData) {
	return func(p *pageData) {
		p.Landing = d.Landing
		p.Message = d.Message
	}
}

func snapshotFrom(r *http.Request) session.Snapshot {
	snap, _ := r.Context().Value(ContextKeySnapshot).(session.Snapshot)
	return snap
}

func storeFrom(r *http.Request) *session.Store {
	store, _ := r.Context().Value(ContextKeyStore).(*session.Store)
	return store
}
