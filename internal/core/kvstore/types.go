// Package kvstore provides the store type constants.
package kvstore

// Type represents the type of key-value store backend.
type Type string

const (
	// TypeRedis represents a Redis-backed store.
	TypeRedis Type = "redis"
	// TypeMongoDB represents a MongoDB-backed store.
	TypeMongoDB Type = "mongodb"
)
