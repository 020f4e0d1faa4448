package storage

import (
	"context"
	"sort"
	"sync"
)

var _ Storage = (*Memory)(nil)

// Memory is an in-process Storage. Handles sharing one Memory see each other's events.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[uint64]Listener
	nextID   uint64
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]string),
		watchers: make(map[uint64]Listener),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	watchers := m.listeners()
	m.mu.Unlock()

	notify(watchers, Event{Op: OpSet, Key: key, Value: value})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	watchers := m.listeners()
	m.mu.Unlock()

	if existed {
		notify(watchers, Event{Op: OpDelete, Key: key})
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.data = make(map[string]string)
	watchers := m.listeners()
	m.mu.Unlock()

	notify(watchers, Event{Op: OpClear})
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Watch(_ context.Context, fn Listener) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.watchers[id] = fn

	return newSubscription(func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}), nil
}

// Watchers returns the number of live subscriptions
func (m *Memory) Watchers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.watchers)
}

// listeners expects the lock to be held
func (m *Memory) listeners() []Listener {
	ids := make([]uint64, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.watchers[id])
	}
	return out
}

// notify runs outside the lock so listeners may write back to the store
func notify(watchers []Listener, ev Event) {
	for _, fn := range watchers {
		fn(ev)
	}
}
