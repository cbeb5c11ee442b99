package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported SQL dialects.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

// Expiry columns hold Unix epoch seconds so comparisons behave identically
// across dialects and drivers.
var sqlSchemas = map[string][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS quota_counters (
			counter_key TEXT PRIMARY KEY,
			used_count INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quota_counters_expires_at ON quota_counters (expires_at)`,
		`CREATE TABLE IF NOT EXISTS identity_sets (
			address TEXT NOT NULL,
			user_id TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (address, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_identity_sets_expires_at ON identity_sets (expires_at)`,
	},
	// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared
	// inline with the tables.
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS quota_counters (
			counter_key VARCHAR(191) NOT NULL,
			used_count BIGINT NOT NULL DEFAULT 0,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (counter_key),
			KEY idx_quota_counters_expires_at (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS identity_sets (
			address VARCHAR(191) NOT NULL,
			user_id VARCHAR(191) NOT NULL,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (address, user_id),
			KEY idx_identity_sets_expires_at (expires_at)
		)`,
	},
}

var sqlDrivers = map[string]string{
	DialectSQLite: "sqlite",
	DialectMySQL:  "mysql",
}

// SQLStorage implements the Storage interface over database/sql. It
// supports the SQLite and MySQL dialects; PostgreSQL has its own pgx-based
// implementation. Expired rows read as absent and are removed by Sweep.
type SQLStorage struct {
	db      *sql.DB
	dialect string
}

// NewSQLStorage creates a new SQL-backed storage instance for the given
// dialect, verifies connectivity, and ensures the schema exists.
func NewSQLStorage(config Config, dialect string) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for %s storage", dialect)
	}

	driver, ok := sqlDrivers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL dialect: %s", dialect)
	}

	db, err := sql.Open(driver, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range sqlSchemas[dialect] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &SQLStorage{db: db, dialect: dialect}, nil
}

// GetCount returns the stored count for a counter key, or 0 when the key
// is absent or expired.
func (s *SQLStorage) GetCount(ctx context.Context, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT used_count FROM quota_counters WHERE counter_key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return count, nil
}

// SetCount stores count under key with an absolute expiry of now+ttl
// (upsert pattern).
func (s *SQLStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()

	query := `INSERT INTO quota_counters (counter_key, used_count, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (counter_key)
		DO UPDATE SET used_count = excluded.used_count, expires_at = excluded.expires_at`
	if s.dialect == DialectMySQL {
		query = `INSERT INTO quota_counters (counter_key, used_count, expires_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE used_count = VALUES(used_count), expires_at = VALUES(expires_at)`
	}

	if _, err := s.db.ExecContext(ctx, query, key, count, expiresAt); err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}
	return nil
}

// AddIdentity unions userID into the address's identity set and refreshes
// the whole record's retention expiry. Runs in a transaction so the
// returned count reflects this addition. Rows left over from an expired
// record are cleared first so a dormant address starts over empty.
func (s *SQLStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	now := time.Now()
	expiresAt := now.Add(ttl).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM identity_sets WHERE address = ? AND expires_at <= ?`,
		address, now.Unix(),
	); err != nil {
		return 0, fmt.Errorf("failed to clear expired identities: %w", err)
	}

	insert := `INSERT OR IGNORE INTO identity_sets (address, user_id, expires_at) VALUES (?, ?, ?)`
	if s.dialect == DialectMySQL {
		insert = `INSERT IGNORE INTO identity_sets (address, user_id, expires_at) VALUES (?, ?, ?)`
	}
	if _, err := tx.ExecContext(ctx, insert, address, userID, expiresAt); err != nil {
		return 0, fmt.Errorf("failed to record identity: %w", err)
	}

	// The whole record shares one retention window, refreshed on every
	// observation.
	if _, err := tx.ExecContext(ctx,
		`UPDATE identity_sets SET expires_at = ? WHERE address = ?`,
		expiresAt, address,
	); err != nil {
		return 0, fmt.Errorf("failed to refresh identity expiry: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identity_sets WHERE address = ?`,
		address,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

// Sweep removes rows whose expiry has passed.
func (s *SQLStorage) Sweep(ctx context.Context) error {
	now := time.Now().Unix()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM quota_counters WHERE expires_at <= ?`, now,
	); err != nil {
		return fmt.Errorf("failed to sweep counters: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_sets WHERE expires_at <= ?`, now,
	); err != nil {
		return fmt.Errorf("failed to sweep identities: %w", err)
	}
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the storage connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
