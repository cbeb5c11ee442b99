package storage

import (
	"context"
	"time"
)

// Storage defines the interface for quota counter and identity-set
// persistence. It provides a clean abstraction that can be implemented by
// different backends such as in-process memory, JSON files, Redis, or SQL
// databases. Callers treat every backend identically; the quota engine is
// written only against this contract.
type Storage interface {
	// GetCount returns the stored count for a counter key, or 0 when the
	// key is absent or its entry has expired. Entries past their expiry
	// must read as 0 even if they have not been swept yet.
	GetCount(ctx context.Context, key string) (int, error)

	// SetCount stores count under key with an absolute expiry of now+ttl,
	// overwriting any previous entry for that exact key.
	SetCount(ctx context.Context, key string, count int, ttl time.Duration) error

	// AddIdentity unions userID into the identity set observed for a
	// network address, refreshes the whole record's retention expiry to
	// now+ttl, and returns the resulting number of distinct ids.
	// Re-adding a known id leaves the count unchanged. An expired record
	// is treated as empty.
	AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error)

	// Sweep removes expired entries. Idempotent and safe to run
	// concurrently with reads and writes. Backends with server-side
	// expiry may implement it as a no-op.
	Sweep(ctx context.Context) error

	// Ping verifies the storage backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type specifies the storage backend type (memory, json, redis, ...).
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Addr, Password and DB configure the Redis backend.
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`

	// KeyPrefix namespaces keys in shared keyspaces (Redis).
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`

	// CacheTTL specifies how long file-based backends may serve reads
	// from their in-memory cache before re-checking the file.
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// Additional options for specific backends.
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}
