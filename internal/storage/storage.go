// Package storage persists small per-browser-session values, the server-side
// stand-in for the browser's local storage.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("storage: not found")

// Keys used by the console.
const (
	KeySession = "session"
	KeyToken   = "token"
	KeyFlash   = "flash"
)

// Store is a namespaced key/value store.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	// DeleteNamespace drops every key in namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
	Ping(ctx context.Context) error
	Close() error
}

// Namespace binds a Store to one namespace.
type Namespace struct {
	store Store
	name  string
}

// NewNamespace returns a view of s scoped to name.
func NewNamespace(s Store, name string) *Namespace {
	return &Namespace{store: s, name: name}
}

// Name returns the namespace identifier.
func (n *Namespace) Name() string { return n.name }

func (n *Namespace) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.name, key)
}

func (n *Namespace) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.name, key, value)
}

func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.name, key)
}

// Clear removes every key in the namespace.
func (n *Namespace) Clear(ctx context.Context) error {
	return n.store.DeleteNamespace(ctx, n.name)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.data[namespace]; ok {
		delete(ns, key)
		if len(ns) == 0 {
			delete(m.data, namespace)
		}
	}
	return nil
}

func (m *Memory) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
