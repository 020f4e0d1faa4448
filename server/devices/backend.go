package devices

import (
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-alert-web/apiclient"
	"github.com/jrsteele09/go-alert-web/sanitize"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/jrsteele09/go-alert-web/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Backend opens the durable and session storage tiers of a device
type Backend interface {
	Open(deviceID string) (durable, sessionTier storage.Storage)
}

// MemoryBackend keeps every device's tiers in process. Tiers outlive evicted stores.
type MemoryBackend struct {
	mu    sync.Mutex
	tiers map[string][2]*storage.Memory
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tiers: make(map[string][2]*storage.Memory)}
}

func (b *MemoryBackend) Open(deviceID string) (storage.Storage, storage.Storage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tiers[deviceID]
	if !ok {
		t = [2]*storage.Memory{storage.NewMemory(), storage.NewMemory()}
		b.tiers[deviceID] = t
	}
	return t[0], t[1]
}

// RedisBackend namespaces each device under prefix so replicas share tiers and change events
type RedisBackend struct {
	client          redis.UniversalClient
	prefix          string
	sessionLifetime time.Duration
	durableLifetime time.Duration
}

func NewRedisBackend(client redis.UniversalClient, prefix string, sessionLifetime, durableLifetime time.Duration) *RedisBackend {
	return &RedisBackend{
		client:          client,
		prefix:          prefix,
		sessionLifetime: sessionLifetime,
		durableLifetime: durableLifetime,
	}
}

func (b *RedisBackend) Open(deviceID string) (storage.Storage, storage.Storage) {
	base := b.prefix + deviceID
	return storage.NewRedis(b.client, base+":local:", storage.WithTTL(b.durableLifetime)),
		storage.NewRedis(b.client, base+":session:", storage.WithTTL(b.sessionLifetime))
}

// StoreFactory wires a session store for a device. Each device talks to the API
// through its own client so API cookies never leak between devices.
func StoreFactory(backend Backend, apiBaseURL string, apiTimeout time.Duration, opts ...session.Option) Factory {
	return func(deviceID string) (*session.Store, error) {
		jar, err := apiclient.NewCookieJar()
		if err != nil {
			return nil, err
		}
		api, err := apiclient.New(apiBaseURL, apiclient.WithTimeout(apiTimeout), apiclient.WithCookieJar(jar))
		if err != nil {
			return nil, err
		}
		return NewStore(backend, deviceID, api, []sanitize.Option{sanitize.WithCookieJar(jar, originOf(api.BaseURL()))}, opts...)
	}
}

// NewStore builds the store for deviceID over backend with the given API client
func NewStore(backend Backend, deviceID string, api apiclient.Client, sanitizeOpts []sanitize.Option, opts ...session.Option) (*session.Store, error) {
	durable, sessionTier := backend.Open(deviceID)
	logger := log.With().Str("device", shortID(deviceID)).Logger()
	sanitizeOpts = append([]sanitize.Option{sanitize.WithLogger(logger)}, sanitizeOpts...)
	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	return session.New(session.Deps{
		Tokens:    tokenstore.New(durable, sessionTier, tokenstore.WithLogger(logger)),
		Sanitizer: sanitize.New(durable, sessionTier, sanitizeOpts...),
		API:       api,
	}, opts...)
}

// shortID keeps device ids out of logs in full
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func originOf(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}
