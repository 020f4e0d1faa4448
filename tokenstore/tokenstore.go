// Package tokenstore owns the persisted bearer token.
//
// Two tiers are kept: a durable tier that survives the browser closing and a
// session tier bounded by the browser session. The "remember me" hint, kept
// under its own key in the durable tier, decides which tier Set writes to.
package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	KeyToken    = "auth_token"
	KeyRemember = "remember_me"
)

type Store struct {
	durable storage.Storage
	session storage.Storage
	logger  zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(durable, session storage.Storage, opts ...Option) *Store {
	s := &Store{
		durable: durable,
		session: session,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the persisted token or "" when there is none. Read failures count as no token.
func (s *Store) Get(ctx context.Context) string {
	for _, tier := range []storage.Storage{s.session, s.durable} {
		token, ok, err := tier.Get(ctx, KeyToken)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Token read failed")
			continue
		}
		if ok && token != "" {
			return token
		}
	}
	return ""
}

// Set writes the token to the tier chosen by the remember hint and removes it from the other
func (s *Store) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	target, other := s.session, s.durable
	if s.Remember(ctx) {
		target, other = s.durable, s.session
	}
	if err := target.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("[tokenstore Set] %w", err)
	}
	if err := other.Delete(ctx, KeyToken); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to remove token from the other tier")
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(
		s.durable.Delete(ctx, KeyToken),
		s.session.Delete(ctx, KeyToken),
	)
}

// SetRemember records the durability hint used by later calls to Set
func (s *Store) SetRemember(ctx context.Context, remember bool) error {
	if remember {
		return s.durable.Set(ctx, KeyRemember, "true")
	}
	return s.durable.Delete(ctx, KeyRemember)
}

func (s *Store) Remember(ctx context.Context) bool {
	v, ok, err := s.durable.Get(ctx, KeyRemember)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Remember flag read failed")
		return false
	}
	return ok && v == "true"
}

// Watch calls fn with the currently persisted token whenever either tier changes it
func (s *Store) Watch(ctx context.Context, fn func(token string)) (storage.Subscription, error) {
	listener := func(ev storage.Event) {
		if ev.Key != KeyToken && !ev.Removes(KeyToken) {
			return
		}
		fn(s.Get(context.WithoutCancel(ctx)))
	}

	durableSub, err := s.durable.Watch(ctx, listener)
	if err != nil {
		return nil, fmt.Errorf("[tokenstore Watch] durable tier: %w", err)
	}
	sessionSub, err := s.session.Watch(ctx, listener)
	if err != nil {
		durableSub.Cancel()
		return nil, fmt.Errorf("[tokenstore Watch] session tier: %w", err)
	}
	return storage.Multi(durableSub, sessionSub), nil
}
