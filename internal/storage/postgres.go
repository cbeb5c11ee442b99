package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema is applied on startup. Statements are executed one at a
// time because the pool's default query mode does not accept multi-statement
// strings.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS quota_counters (
		counter_key TEXT PRIMARY KEY,
		used_count BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quota_counters_expires_at ON quota_counters (expires_at)`,
	`CREATE TABLE IF NOT EXISTS identity_sets (
		address TEXT NOT NULL,
		user_id TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (address, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_identity_sets_expires_at ON identity_sets (expires_at)`,
}

// PostgresStorage implements the Storage interface using PostgreSQL via a
// pgx connection pool. Expiry is enforced in queries (expired rows read as
// absent) and Sweep deletes rows whose expiry has passed.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance, verifies
// connectivity, and ensures the schema exists.
func NewPostgresStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(context.Background(), config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &PostgresStorage{pool: pool}, nil
}

// GetCount returns the stored count for a counter key, or 0 when the key
// is absent or expired.
func (ps *PostgresStorage) GetCount(ctx context.Context, key string) (int, error) {
	var count int
	err := ps.pool.QueryRow(ctx,
		`SELECT used_count FROM quota_counters WHERE counter_key = $1 AND expires_at > $2`,
		key, time.Now().UTC(),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return count, nil
}

// SetCount stores count under key with an absolute expiry of now+ttl
// (upsert pattern).
func (ps *PostgresStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO quota_counters (counter_key, used_count, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (counter_key)
		 DO UPDATE SET used_count = EXCLUDED.used_count, expires_at = EXCLUDED.expires_at`,
		key, count, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}
	return nil
}

// AddIdentity unions userID into the address's identity set and refreshes
// the whole record's retention expiry. Runs in a transaction so the
// returned count reflects this addition. Rows left over from an expired
// record are cleared first so a dormant address starts over empty.
func (ps *PostgresStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	now := time.Now().UTC()

	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM identity_sets WHERE address = $1 AND expires_at <= $2`,
		address, now,
	); err != nil {
		return 0, fmt.Errorf("failed to clear expired identities: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO identity_sets (address, user_id, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address, user_id) DO NOTHING`,
		address, userID, now.Add(ttl),
	); err != nil {
		return 0, fmt.Errorf("failed to record identity: %w", err)
	}

	// The whole record shares one retention window, refreshed on every
	// observation.
	if _, err := tx.Exec(ctx,
		`UPDATE identity_sets SET expires_at = $2 WHERE address = $1`,
		address, now.Add(ttl),
	); err != nil {
		return 0, fmt.Errorf("failed to refresh identity expiry: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM identity_sets WHERE address = $1`,
		address,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

// Sweep removes rows whose expiry has passed.
func (ps *PostgresStorage) Sweep(ctx context.Context) error {
	now := time.Now().UTC()

	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM quota_counters WHERE expires_at <= $1`, now,
	); err != nil {
		return fmt.Errorf("failed to sweep counters: %w", err)
	}
	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM identity_sets WHERE expires_at <= $1`, now,
	); err != nil {
		return fmt.Errorf("failed to sweep identities: %w", err)
	}
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the storage connection.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
