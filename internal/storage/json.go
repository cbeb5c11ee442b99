package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONStorage implements the Storage interface using a single JSON document
// for persistence. It provides an in-memory cache for performance and
// supports concurrent access. Suited to small single-instance deployments;
// every write rewrites the whole document.
type JSONStorage struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
	cacheExpiry  time.Time

	// now is the time source; replaced in tests to exercise expiry.
	now func() time.Time
}

// JSONData represents the structure of data stored in JSON format.
type JSONData struct {
	Counters    map[string]JSONCounter  `json:"counters"`
	Identities  map[string]JSONIdentity `json:"identities"`
	LastUpdated time.Time               `json:"last_updated"`
}

// JSONCounter is a stored usage count with its absolute expiry.
type JSONCounter struct {
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JSONIdentity is the set of declared user ids observed for one network
// address, with the whole record's retention expiry.
type JSONIdentity struct {
	UserIDs   []string  `json:"user_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewJSONStorage creates a new JSON-file-based storage instance.
func NewJSONStorage(config Config) (*JSONStorage, error) {
	cacheTTL := 5 * time.Minute
	if config.CacheTTL != "" {
		if duration, err := time.ParseDuration(config.CacheTTL); err == nil {
			cacheTTL = duration
		}
	}

	storage := &JSONStorage{
		filePath: config.Path,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist.
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		// Create empty JSON file
		emptyData := &JSONData{
			Counters:   make(map[string]JSONCounter),
			Identities: make(map[string]JSONIdentity),
		}

		return j.saveData(emptyData)
	}
	return nil
}

// loadData loads data from the JSON file with caching.
// It uses double-checked locking: a fast read-lock path for cache hits,
// and a write-lock slow path with re-validation to prevent TOCTOU races.
func (j *JSONStorage) loadData() error {
	// Fast path: cache is still valid.
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	// Slow path: acquire write lock and re-validate before doing any I/O.
	j.mu.Lock()
	defer j.mu.Unlock()

	// Another goroutine may have loaded while we waited for the write lock.
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	// Stat and all subsequent reads are done under the write lock.
	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// If the file hasn't changed, extend the cache and return.
	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if data.Counters == nil {
		data.Counters = make(map[string]JSONCounter)
	}
	if data.Identities == nil {
		data.Identities = make(map[string]JSONIdentity)
	}

	j.data = &data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData saves data to the JSON file.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(j.filePath, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GetCount returns the stored count for a counter key, or 0 when the key
// is absent or expired.
func (j *JSONStorage) GetCount(ctx context.Context, key string) (int, error) {
	if err := j.loadData(); err != nil {
		return 0, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, exists := j.data.Counters[key]
	if !exists || !j.now().Before(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// SetCount stores count under key with an absolute expiry of now+ttl.
func (j *JSONStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.Counters[key] = JSONCounter{
		Count:     count,
		ExpiresAt: j.now().Add(ttl),
	}
	return j.saveData(j.data)
}

// AddIdentity unions userID into the identity set for address and refreshes
// the record's retention expiry. An expired record starts over empty.
func (j *JSONStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	if err := j.loadData(); err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	record, exists := j.data.Identities[address]
	if !exists || !now.Before(record.ExpiresAt) {
		record = JSONIdentity{}
	}

	known := false
	for _, id := range record.UserIDs {
		if id == userID {
			known = true
			break
		}
	}
	if !known {
		record.UserIDs = append(record.UserIDs, userID)
	}
	record.ExpiresAt = now.Add(ttl)
	j.data.Identities[address] = record

	if err := j.saveData(j.data); err != nil {
		return 0, err
	}
	return len(record.UserIDs), nil
}

// Sweep removes expired counters and identity records and persists the
// compacted document when anything was removed.
func (j *JSONStorage) Sweep(ctx context.Context) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	removed := 0
	for key, entry := range j.data.Counters {
		if !now.Before(entry.ExpiresAt) {
			delete(j.data.Counters, key)
			removed++
		}
	}
	for address, record := range j.data.Identities {
		if !now.Before(record.ExpiresAt) {
			delete(j.data.Identities, address)
			removed++
		}
	}

	if removed == 0 {
		return nil
	}
	return j.saveData(j.data)
}

// Ping verifies the storage backend is reachable and operational.
func (j *JSONStorage) Ping(_ context.Context) error {
	_, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close closes the storage connection and cleans up resources.
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Clear cache
	j.data = nil
	j.cacheExpiry = time.Time{}

	return nil
}
