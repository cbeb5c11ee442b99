package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	storage, err := NewMemoryStorage(Config{})
	if err != nil {
		t.Fatalf("Failed to create memory storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()

	t.Run("Counter Operations", func(t *testing.T) {
		// Absent key reads as zero
		count, err := storage.GetCount(ctx, "k1:2025-06-01:comments")
		if err != nil {
			t.Errorf("Failed to get count: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected 0 for absent key, got %d", count)
		}

		// Set and read back
		err = storage.SetCount(ctx, "k1:2025-06-01:comments", 3, time.Hour)
		if err != nil {
			t.Errorf("Failed to set count: %v", err)
		}
		count, err = storage.GetCount(ctx, "k1:2025-06-01:comments")
		if err != nil {
			t.Errorf("Failed to get count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected count 3, got %d", count)
		}

		// Overwrite replaces the previous value
		err = storage.SetCount(ctx, "k1:2025-06-01:comments", 7, time.Hour)
		if err != nil {
			t.Errorf("Failed to overwrite count: %v", err)
		}
		count, _ = storage.GetCount(ctx, "k1:2025-06-01:comments")
		if count != 7 {
			t.Errorf("Expected count 7 after overwrite, got %d", count)
		}

		// Keys are independent
		count, _ = storage.GetCount(ctx, "k1:2025-06-01:posts")
		if count != 0 {
			t.Errorf("Expected 0 for unrelated key, got %d", count)
		}
	})

	t.Run("Identity Operations", func(t *testing.T) {
		// First id yields a set of one
		n, err := storage.AddIdentity(ctx, "203.0.113.7", "user-1", time.Hour)
		if err != nil {
			t.Errorf("Failed to add identity: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 identity, got %d", n)
		}

		// Distinct ids grow the set
		n, _ = storage.AddIdentity(ctx, "203.0.113.7", "user-2", time.Hour)
		if n != 2 {
			t.Errorf("Expected 2 identities, got %d", n)
		}

		// Re-adding a known id is a no-op
		n, _ = storage.AddIdentity(ctx, "203.0.113.7", "user-1", time.Hour)
		if n != 2 {
			t.Errorf("Expected 2 identities after duplicate, got %d", n)
		}

		// Addresses are independent
		n, _ = storage.AddIdentity(ctx, "198.51.100.9", "user-1", time.Hour)
		if n != 1 {
			t.Errorf("Expected 1 identity for new address, got %d", n)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := storage.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestMemoryStorage_Expiry(t *testing.T) {
	ctx := context.Background()

	s, err := NewMemoryStorage(Config{})
	require.NoError(t, err)
	defer s.Close()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	require.NoError(t, s.SetCount(ctx, "k1", 5, 10*time.Minute))
	_, err = s.AddIdentity(ctx, "203.0.113.7", "user-1", 10*time.Minute)
	require.NoError(t, err)

	// Still live just before the deadline.
	current = current.Add(10*time.Minute - time.Second)
	count, err := s.GetCount(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Expired entries read as zero even before any sweep runs.
	current = current.Add(2 * time.Second)
	count, err = s.GetCount(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// An expired identity record starts over from empty.
	n, err := s.AddIdentity(ctx, "203.0.113.7", "user-9", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorage_AddIdentityRefreshesRetention(t *testing.T) {
	ctx := context.Background()

	s, err := NewMemoryStorage(Config{})
	require.NoError(t, err)
	defer s.Close()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	_, err = s.AddIdentity(ctx, "203.0.113.7", "user-1", time.Hour)
	require.NoError(t, err)

	// A later observation pushes the whole record's expiry forward, so the
	// earlier id is still counted well past its original deadline.
	current = current.Add(50 * time.Minute)
	_, err = s.AddIdentity(ctx, "203.0.113.7", "user-2", time.Hour)
	require.NoError(t, err)

	current = current.Add(50 * time.Minute)
	n, err := s.AddIdentity(ctx, "203.0.113.7", "user-3", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryStorage_Sweep(t *testing.T) {
	ctx := context.Background()

	s, err := NewMemoryStorage(Config{})
	require.NoError(t, err)
	defer s.Close()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	require.NoError(t, s.SetCount(ctx, "old", 1, time.Minute))
	require.NoError(t, s.SetCount(ctx, "fresh", 2, time.Hour))
	_, err = s.AddIdentity(ctx, "203.0.113.7", "user-1", time.Minute)
	require.NoError(t, err)

	current = current.Add(5 * time.Minute)
	require.NoError(t, s.Sweep(ctx))

	s.mu.RLock()
	_, oldExists := s.counters["old"]
	_, freshExists := s.counters["fresh"]
	_, identityExists := s.identities["203.0.113.7"]
	s.mu.RUnlock()

	assert.False(t, oldExists, "expired counter should be removed")
	assert.True(t, freshExists, "live counter should survive the sweep")
	assert.False(t, identityExists, "expired identity record should be removed")

	// Sweep is idempotent.
	require.NoError(t, s.Sweep(ctx))
}

func TestMemoryStorageConcurrency(t *testing.T) {
	storage, err := NewMemoryStorage(Config{})
	if err != nil {
		t.Fatalf("Failed to create memory storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()

	done := make(chan bool, 15)

	// Start multiple readers
	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- true }()
			for j := 0; j < 100; j++ {
				_, err := storage.GetCount(ctx, "concurrent-key")
				if err != nil {
					t.Errorf("Failed to get count in goroutine: %v", err)
					return
				}
			}
		}()
	}

	// Start multiple counter writers
	for i := 0; i < 5; i++ {
		go func(id int) {
			defer func() { done <- true }()
			for j := 0; j < 100; j++ {
				err := storage.SetCount(ctx, "concurrent-key", j, time.Hour)
				if err != nil {
					t.Errorf("Failed to set count in goroutine: %v", err)
					return
				}
			}
		}(i)
	}

	// Start multiple identity writers
	for i := 0; i < 5; i++ {
		go func(id int) {
			defer func() { done <- true }()
			for j := 0; j < 100; j++ {
				_, err := storage.AddIdentity(ctx, "203.0.113.7", fmt.Sprintf("user-%d-%d", id, j), time.Hour)
				if err != nil {
					t.Errorf("Failed to add identity in goroutine: %v", err)
					return
				}
			}
		}(i)
	}

	// Wait for all goroutines to complete
	for i := 0; i < 15; i++ {
		<-done
	}
}

func TestMemoryStorage_CloseResetsState(t *testing.T) {
	ctx := context.Background()

	s, err := NewMemoryStorage(Config{})
	require.NoError(t, err)

	require.NoError(t, s.SetCount(ctx, "k1", 5, time.Hour))
	require.NoError(t, s.Close())

	count, err := s.GetCount(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
