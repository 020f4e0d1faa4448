package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-alert-web/internal/config"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/redis/go-redis/v9"
)

const (
	// deviceCookieName identifies the browser device across tabs
	deviceCookieName = "alert_device"
	// sessionKeyDeviceID is where the device id lives in the cookie session
	sessionKeyDeviceID = "device_id"
)

// NewSessionManager configures the device cookie. With a redis client the cookie
// sessions are shared by every replica; otherwise they stay in process.
func NewSessionManager(c config.SessionConfig, client redis.UniversalClient, prefix string) *scs.SessionManager {
	sm := scs.New()
	if client != nil {
		sm.Store = &redisCookieStore{client: client, prefix: prefix + "device:"}
	} else {
		sm.Store = memstore.New()
	}
	sm.Lifetime = c.GetRememberLifetime()
	sm.IdleTimeout = c.GetRememberLifetime()
	sm.Cookie.Name = deviceCookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = c.GetSecureCookies()
	// browser session cookie unless the user asks to be remembered
	sm.Cookie.Persist = false
	return sm
}

// redisCookieStore keeps scs cookie sessions in redis
type redisCookieStore struct {
	client redis.UniversalClient
	prefix string
}

var _ scs.CtxStore = (*redisCookieStore)(nil)

func (s *redisCookieStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *redisCookieStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return s.client.Set(ctx, s.prefix+token, b, time.Until(expiry)).Err()
}

func (s *redisCookieStore) DeleteCtx(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.prefix+token).Err()
}

func (s *redisCookieStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *redisCookieStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *redisCookieStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

// deviceID returns the request's device id, assigning one on first contact
func (s *Server) deviceID(r *http.Request) string {
	ctx := r.Context()
	id := s.sessions.GetString(ctx, sessionKeyDeviceID)
	if id == "" {
		id = uuid.NewString()
		s.sessions.Put(ctx, sessionKeyDeviceID, id)
	}
	return id
}

// storeFor returns the session store of the device making the request
func (s *Server) storeFor(r *http.Request) (*session.Store, error) {
	return s.devices.Get(s.deviceID(r))
}

// awaitReady waits up to the configured init wait for the store to settle and returns its snapshot
func (s *Server) awaitReady(ctx context.Context, store *session.Store) session.Snapshot {
	store.Start()
	select {
	case <-store.Ready():
	case <-ctx.Done():
	case <-time.After(s.config.GetInitWait()):
	}
	return store.Snapshot()
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path string, params url.Values, errorMsg string) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("error", errorMsg)
	redirectSuccess(w, r, path+"?"+params.Encode())
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
