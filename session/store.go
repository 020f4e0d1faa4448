// Package session holds the client's authentication state machine.
//
// A Store moves from uninitialized to initializing once, then settles to
// authenticated or anonymous and alternates between those two for the rest
// of its life. The in-memory user, the in-memory token and the status always
// agree: a user and a token are present exactly when the status is authenticated.
//
// Network calls never run under the state lock. Every transition bumps a
// generation counter, and background fetches (initialisation, profile refresh,
// adoption of a token written by another tab) only commit when the generation
// they started from is still current.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-alert-web/apiclient"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/jrsteele09/go-alert-web/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// Notices are neutral, non-error explanations of why a session ended
const (
	NoticeSessionExpired     = "Your session has expired. Please sign in again."
	NoticeSignedOutElsewhere = "You were signed out in another window."
	NoticeAccountChanged     = "Your account changed, please sign in again."
	NoticeSignedOut          = "You have been signed out."
)

// RouteLogin is where Logout sends the user
const RouteLogin = "/login"

// TokenStore is the persisted credential the Store reads and writes
type TokenStore interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	SetRemember(ctx context.Context, remember bool) error
	Watch(ctx context.Context, fn func(token string)) (storage.Subscription, error)
}

// Purger wipes every persisted session artifact and never fails
type Purger interface {
	Purge(ctx context.Context)
}

type Deps struct {
	Tokens    TokenStore
	Sanitizer Purger
	API       apiclient.Client
}

// LogoutResult tells the caller where to go next; the Store never navigates
type LogoutResult struct {
	Redirect string
	Message  string
}

type Store struct {
	tokens    TokenStore
	sanitizer Purger
	api       apiclient.Client
	logger    zerolog.Logger

	logoutTimeout time.Duration

	mu        sync.Mutex
	status    Status
	user      *users.User
	token     string
	lastError string
	notice    string
	gen       uint64

	initOnce sync.Once
	ready    chan struct{}

	loggingIn atomic.Bool
	// writeMu orders purges against credential writes so neither lands on a
	// session that has already moved on
	writeMu sync.Mutex

	subMu     sync.Mutex
	watch     storage.Subscription
	closed    bool
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLogoutTimeout bounds the best-effort logout call
func WithLogoutTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.logoutTimeout = timeout
	}
}

func New(deps Deps, opts ...Option) (*Store, error) {
	if deps.Tokens == nil || deps.Sanitizer == nil || deps.API == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[session New] token store, sanitizer and api client are required")
	}
	s := &Store{
		tokens:        deps.Tokens,
		sanitizer:     deps.Sanitizer,
		api:           deps.API,
		logger:        log.Logger,
		logoutTimeout: 5 * time.Second,
		status:        StatusUninitialized,
		ready:         make(chan struct{}),
		listeners:     make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      s.status,
		User:        s.user.Clone(),
		Token:       s.token,
		LastError:   s.lastError,
		Notice:      s.notice,
		Initialized: s.status == StatusAuthenticated || s.status == StatusAnonymous,
	}
}

// Ready is closed once initialisation has settled
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Start begins initialisation in the background. Only the first call has any effect.
func (s *Store) Start() {
	s.initOnce.Do(func() {
		go s.initialize(context.Background())
	})
}

// Initialize starts initialisation if needed and waits for it to settle or for ctx to end.
// The initialisation itself is not tied to ctx, so an abandoned request cannot purge a valid session.
func (s *Store) Initialize(ctx context.Context) error {
	s.Start()
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) initialize(ctx context.Context) {
	defer close(s.ready)

	s.mu.Lock()
	if s.status == StatusUninitialized {
		s.status = StatusInitializing
	}
	gen := s.gen
	s.mu.Unlock()
	s.emit()

	s.subscribe(ctx)

	token := s.tokens.Get(ctx)
	if token == "" {
		s.settle(gen, func() { s.resetLocked("") })
		return
	}

	user, err := s.api.Profile(ctx, token)
	if err != nil {
		s.logger.Info().Err(err).Msg("Stored session rejected, continuing anonymously")
		after, applied := s.settle(gen, func() {
			s.resetLocked(noticeFor(err))
			if apperrors.Is(err, apperrors.ErrNetwork) {
				s.lastError = apperrors.UserMessage(err)
			}
		})
		if applied {
			s.purgeIfCurrent(ctx, after)
		}
		return
	}

	s.settle(gen, func() {
		s.status = StatusAuthenticated
		s.user = user.Clone()
		s.token = token
		s.lastError = ""
		s.notice = ""
	})
}

// settle applies commit when no other transition happened since gen and
// reports whether it did, along with the generation it left behind. A stale
// initialisation still leaves the store out of the initializing state.
func (s *Store) settle(gen uint64, commit func()) (uint64, bool) {
	s.mu.Lock()
	applied := false
	if s.gen == gen {
		commit()
		s.gen++
		applied = true
	} else if s.status == StatusInitializing || s.status == StatusUninitialized {
		s.resetLocked("")
	}
	after := s.gen
	s.mu.Unlock()
	s.emit()
	return after, applied
}

// purgeIfCurrent purges unless the store moved past gen first
func (s *Store) purgeIfCurrent(ctx context.Context, gen uint64) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.current(gen) {
		return false
	}
	s.sanitizer.Purge(ctx)
	return true
}

// Login replaces any existing session with the one for identifier.
// Either the full token and user pair is committed or the store ends anonymous.
func (s *Store) Login(ctx context.Context, identifier, secret string, remember bool) error {
	if !s.loggingIn.CompareAndSwap(false, true) {
		return apperrors.ErrLoginInProgress
	}
	defer s.loggingIn.Store(false)

	// residual state from a previous user never survives a login attempt
	s.mu.Lock()
	s.resetLocked("")
	gen := s.gen
	s.mu.Unlock()
	s.emit()
	s.purgeIfCurrent(ctx, gen)

	resp, err := s.api.Login(ctx, identifier, secret)
	if err == nil && (resp == nil || resp.Token == "" || resp.User == nil) {
		err = apperrors.Wrapf(apperrors.ErrInvalidResponse, "[session Login] login succeeded without a token")
	}
	if err != nil {
		s.fail(ctx, gen, err)
		return err
	}

	s.writeMu.Lock()
	if !s.current(gen) {
		s.writeMu.Unlock()
		return s.abandon(ctx, resp.Token)
	}
	err = s.persist(ctx, resp.Token, remember)
	s.writeMu.Unlock()
	if err != nil {
		s.fail(ctx, gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return s.abandon(ctx, resp.Token)
	}
	s.status = StatusAuthenticated
	s.user = resp.User.Clone()
	s.token = resp.Token
	s.lastError = ""
	s.notice = ""
	s.gen++
	s.mu.Unlock()
	s.emit()

	s.logger.Info().Str("user_id", resp.User.ID).Str("role", string(resp.User.Role)).Msg("Signed in")
	return nil
}

// current reports whether no transition happened since gen
func (s *Store) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// abandon discards a login response that lost to a later logout. The token is
// revoked remotely and removed locally unless something newer replaced it.
func (s *Store) abandon(ctx context.Context, token string) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.logoutTimeout)
	if err := s.api.Logout(callCtx, token); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to revoke superseded sign in")
	}
	cancel()

	s.writeMu.Lock()
	if s.tokens.Get(ctx) == token {
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to clear superseded token")
		}
	}
	s.writeMu.Unlock()
	s.logger.Info().Msg("Sign in superseded by sign out")
	return apperrors.Wrapf(apperrors.ErrSuperseded, "[session Login] session changed while signing in")
}

func (s *Store) persist(ctx context.Context, token string, remember bool) error {
	if err := s.tokens.SetRemember(ctx, remember); err != nil {
		return apperrors.Wrapf(err, "[session Login] store remember flag")
	}
	if err := s.tokens.Set(ctx, token); err != nil {
		return apperrors.Wrapf(err, "[session Login] store token")
	}
	return nil
}

// fail records a login failure and leaves the store anonymous with nothing persisted
func (s *Store) fail(ctx context.Context, gen uint64, err error) {
	s.logger.Info().Err(err).Msg("Sign in failed")
	if !s.purgeIfCurrent(ctx, gen) {
		return
	}

	s.mu.Lock()
	if s.gen == gen {
		s.resetLocked("")
		s.lastError = apperrors.UserMessage(err)
	}
	s.mu.Unlock()
	s.emit()
}

// Logout ends the session. The remote call is best effort; local state is always purged.
func (s *Store) Logout(ctx context.Context) LogoutResult {
	s.mu.Lock()
	token := s.token
	s.resetLocked("")
	s.mu.Unlock()
	s.emit()

	if token == "" {
		token = s.tokens.Get(ctx)
	}
	if token != "" {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.logoutTimeout)
		if err := s.api.Logout(callCtx, token); err != nil {
			s.logger.Warn().Err(err).Msg("Remote logout failed, clearing local session anyway")
		}
		cancel()
	}

	s.writeMu.Lock()
	s.sanitizer.Purge(ctx)
	s.writeMu.Unlock()

	// discard anything that committed while the remote call was in flight
	s.mu.Lock()
	s.resetLocked(NoticeSignedOut)
	s.mu.Unlock()
	s.emit()

	return LogoutResult{Redirect: RouteLogin, Message: NoticeSignedOut}
}

// RefreshProfile re-fetches the user with the current token. Any failure ends the session.
func (s *Store) RefreshProfile(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusAuthenticated {
		s.mu.Unlock()
		return apperrors.ErrNotAuthenticated
	}
	token, current, gen := s.token, s.user.Clone(), s.gen
	s.lastError = ""
	s.mu.Unlock()

	user, err := s.api.Profile(ctx, token)
	if err == nil && !current.SameIdentity(user) {
		err = apperrors.Wrapf(apperrors.ErrInvalidToken, "[session RefreshProfile] account identity or role changed")
	}
	if err != nil {
		s.expire(ctx, gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.user = user.Clone()
	s.gen++
	s.mu.Unlock()
	s.emit()
	return nil
}

// expire ends the session started at gen after a failed authenticated call
func (s *Store) expire(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.resetLocked(noticeFor(cause))
	if apperrors.Is(cause, apperrors.ErrNetwork) {
		s.lastError = apperrors.UserMessage(cause)
	}
	after := s.gen
	s.mu.Unlock()
	s.emit()

	s.logger.Info().Err(cause).Msg("Session ended")
	s.purgeIfCurrent(ctx, after)
}

// UpdateProfile saves profile changes then refreshes the cached user from the server
func (s *Store) UpdateProfile(ctx context.Context, update apiclient.ProfileUpdate) error {
	s.mu.Lock()
	if s.status != StatusAuthenticated {
		s.mu.Unlock()
		return apperrors.ErrNotAuthenticated
	}
	token, gen := s.token, s.gen
	s.lastError = ""
	s.mu.Unlock()

	if _, err := s.api.UpdateProfile(ctx, token, update); err != nil {
		if isSessionFatal(err) {
			s.expire(ctx, gen, err)
			return err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.lastError = apperrors.UserMessage(err)
		}
		s.mu.Unlock()
		s.emit()
		return err
	}
	return s.RefreshProfile(ctx)
}

// Register creates an account. It never signs the user in.
func (s *Store) Register(ctx context.Context, registration apiclient.Registration) (*users.User, error) {
	user, err := s.api.Register(ctx, registration)
	s.mu.Lock()
	s.lastError = apperrors.UserMessage(err)
	s.mu.Unlock()
	s.emit()
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Revalidate reconciles the in-memory session with the persisted token before a
// user action proceeds. A token removed by another tab ends this session; a token
// written by another tab is adopted by fetching its profile.
func (s *Store) Revalidate(ctx context.Context) error {
	persisted := s.tokens.Get(ctx)

	s.mu.Lock()
	status, current, gen := s.status, s.token, s.gen
	if status == StatusUninitialized || status == StatusInitializing || persisted == current {
		s.mu.Unlock()
		return nil
	}
	if persisted == "" {
		s.resetLocked(NoticeSignedOutElsewhere)
		s.mu.Unlock()
		s.emit()
		s.logger.Info().Msg("Session cleared by another tab")
		return nil
	}
	s.mu.Unlock()

	user, err := s.api.Profile(ctx, persisted)
	// the other tab may have moved on while the profile was in flight
	still := s.tokens.Get(ctx) == persisted

	s.mu.Lock()
	if s.gen != gen || !still {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.resetLocked(noticeFor(err))
		after := s.gen
		s.mu.Unlock()
		s.emit()
		if isSessionFatal(err) {
			s.purgeIfCurrent(ctx, after)
		}
		return err
	}
	s.status = StatusAuthenticated
	s.user = user.Clone()
	s.token = persisted
	s.lastError = ""
	s.notice = ""
	s.gen++
	s.mu.Unlock()
	s.emit()

	s.logger.Info().Str("user_id", user.ID).Msg("Adopted session from another tab")
	return nil
}

// onTokenChange runs for every persisted token change, including the store's own writes
func (s *Store) onTokenChange(persisted string) {
	s.mu.Lock()
	if s.status != StatusAuthenticated || persisted == s.token {
		s.mu.Unlock()
		return
	}
	s.resetLocked(NoticeSignedOutElsewhere)
	s.mu.Unlock()
	s.emit()

	s.logger.Info().Msg("Persisted credential changed elsewhere, session ended")
}

func (s *Store) subscribe(ctx context.Context) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed || s.watch != nil {
		return
	}
	sub, err := s.tokens.Watch(ctx, s.onTokenChange)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cross-tab invalidation unavailable, relying on revalidation")
		return
	}
	s.watch = sub
}

// Subscribe registers fn to receive a snapshot after every transition. Call the returned func to stop.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

// Close releases the storage watch and all listeners. The store keeps its last state.
func (s *Store) Close() {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return
	}
	s.closed = true
	watch := s.watch
	s.watch = nil
	s.listeners = make(map[uint64]func(Snapshot))
	s.subMu.Unlock()

	// cancelled outside subMu, a delivery in progress may still be emitting
	if watch != nil {
		watch.Cancel()
	}
}

func (s *Store) emit() {
	snap := s.Snapshot()

	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// resetLocked moves to anonymous and invalidates in-flight fetches. Caller holds mu.
func (s *Store) resetLocked(notice string) {
	s.status = StatusAnonymous
	s.user = nil
	s.token = ""
	s.lastError = ""
	s.notice = notice
	s.gen++
}

func isSessionFatal(err error) bool {
	return apperrors.Is(err, apperrors.ErrTokenExpired) ||
		apperrors.Is(err, apperrors.ErrInvalidToken) ||
		apperrors.Is(err, apperrors.ErrAccountRestricted)
}

func noticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case apperrors.Is(err, apperrors.ErrInvalidToken) && !apperrors.Is(err, apperrors.ErrTokenExpired):
		return NoticeAccountChanged
	case apperrors.Is(err, apperrors.ErrNetwork):
		return ""
	default:
		return NoticeSessionExpired
	}
}
