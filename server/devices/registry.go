// Package devices keeps one session store per browser device.
package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-alert-web/session"
	"github.com/rs/zerolog/log"
)

// Factory builds the store for a device the first time it is seen
type Factory func(deviceID string) (*session.Store, error)

type entry struct {
	store    *session.Store
	lastSeen time.Time
}

// Registry is an in-memory map of device id to live session store. Stores are
// started on creation and closed when evicted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	factory Factory
	idleTTL time.Duration
	now     func() time.Time
}

type Option func(*Registry)

// WithIdleTTL evicts devices not seen for ttl. Zero disables eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.idleTTL = ttl
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the device's store, creating and starting it if needed
func (r *Registry) Get(deviceID string) (*session.Store, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("[devices Get] deviceID is required")
	}

	// lookup and touch share the write lock so a concurrent Sweep cannot close
	// the store between them
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[deviceID]; ok {
		e.lastSeen = r.now()
		return e.store, nil
	}

	store, err := r.factory(deviceID)
	if err != nil {
		return nil, fmt.Errorf("[devices Get] create store: %w", err)
	}
	store.Subscribe(func(snap session.Snapshot) {
		log.Debug().Str("device", deviceID).Str("status", string(snap.Status)).Msg("Session transition")
	})
	store.Start()
	r.entries[deviceID] = &entry{store: store, lastSeen: r.now()}
	return store, nil
}

// Delete closes and forgets a device's store
func (r *Registry) Delete(deviceID string) {
	r.mu.Lock()
	e, ok := r.entries[deviceID]
	delete(r.entries, deviceID)
	r.mu.Unlock()
	if ok {
		e.store.Close()
	}
}

// Sweep evicts idle devices and returns how many were closed
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	var idle []*session.Store
	r.mu.Lock()
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, store := range idle {
		store.Close()
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("Evicted idle devices")
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close closes every store
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.store.Close()
	}
}
