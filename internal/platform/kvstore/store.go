// Package kvstore is the durable key-value store behind visitor carts. One
// driver is active per process: sqlite, firestore, or memory.
package kvstore

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Store persists opaque values under string keys.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

const namespaceSeparator = ":"

// Namespaced prefixes every key with namespace, so several logical stores share one backend.
type Namespaced struct {
	store  Store
	prefix string
}

// WithNamespace scopes store to namespace.
func WithNamespace(store Store, namespace string) *Namespaced {
	return &Namespaced{store: store, prefix: strings.TrimSpace(namespace) + namespaceSeparator}
}

// Get implements Store.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

// Set implements Store.
func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

// Delete implements Store.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

// Close is a no-op; the shared backend is closed by its owner.
func (n *Namespaced) Close() error { return nil }
