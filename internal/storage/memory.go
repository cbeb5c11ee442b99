package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage implements the Storage interface using in-memory data
// structures. This provider is ideal for development, testing, and
// single-instance deployments where counter durability across restarts is
// not required. Expired entries read as absent immediately and are
// physically removed by Sweep.
type MemoryStorage struct {
	mu         sync.RWMutex
	counters   map[string]counterEntry
	identities map[string]*identityRecord

	// now is the time source; replaced in tests to exercise expiry.
	now func() time.Time
}

type counterEntry struct {
	count     int
	expiresAt time.Time
}

type identityRecord struct {
	ids       map[string]struct{}
	expiresAt time.Time
}

// NewMemoryStorage creates a new memory-based storage instance.
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		counters:   make(map[string]counterEntry),
		identities: make(map[string]*identityRecord),
		now:        time.Now,
	}, nil
}

// GetCount returns the stored count for a counter key, or 0 when the key
// is absent or expired.
func (m *MemoryStorage) GetCount(ctx context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.counters[key]
	if !exists || !m.now().Before(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

// SetCount stores count under key with an absolute expiry of now+ttl.
func (m *MemoryStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key] = counterEntry{
		count:     count,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// AddIdentity unions userID into the identity set for address and refreshes
// the record's retention expiry. An expired record starts over empty.
func (m *MemoryStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	record, exists := m.identities[address]
	if !exists || !now.Before(record.expiresAt) {
		record = &identityRecord{ids: make(map[string]struct{})}
		m.identities[address] = record
	}

	record.ids[userID] = struct{}{}
	record.expiresAt = now.Add(ttl)

	return len(record.ids), nil
}

// Sweep removes expired counters and identity records.
func (m *MemoryStorage) Sweep(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.counters {
		if !now.Before(entry.expiresAt) {
			delete(m.counters, key)
		}
	}
	for address, record := range m.identities {
		if !now.Before(record.expiresAt) {
			delete(m.identities, address)
		}
	}
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

// Close closes the storage connection and cleans up resources.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]counterEntry)
	m.identities = make(map[string]*identityRecord)
	return nil
}
