// Package kvstore defines the durable key-value store interface backing the
// session registry and the transcript cache.
package kvstore

import "context"

// Store defines the interface for durable key-value operations. Writes are
// full replacements of the value under a key; there are no cross-key
// transactions.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key from the store.
	// Returns true if the key existed, false otherwise.
	Delete(ctx context.Context, key string) (bool, error)

	// Ping checks if the store connection is alive.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
