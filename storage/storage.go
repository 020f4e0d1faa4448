// Package storage provides the key-value media that hold client session artifacts.
//
// A Storage behaves like browser storage: string keys and values, a Clear that
// wipes everything under the store's namespace, and change notifications that
// let other holders of the same medium (other tabs, other replicas) react to writes.
package storage

import (
	"context"
	"sync"
)

type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// Event describes a change to a storage medium. Key is empty for OpClear.
type Event struct {
	Op    Op     `json:"op"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// Removes reports whether the event leaves key without a value
func (e Event) Removes(key string) bool {
	switch e.Op {
	case OpClear:
		return true
	case OpDelete:
		return e.Key == key
	}
	return false
}

type Listener func(Event)

// Subscription is the handle returned by Watch. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

type Storage interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key in the store
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	// Watch registers fn for every change made through any handle on the same medium
	Watch(ctx context.Context, fn Listener) (Subscription, error)
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *subscription {
	return &subscription{cancel: cancel}
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Multi combines subscriptions into one handle
func Multi(subs ...Subscription) Subscription {
	return newSubscription(func() {
		for _, s := range subs {
			if s != nil {
				s.Cancel()
			}
		}
	})
}
