package storage

import (
	"fmt"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
// This allows for easy extensibility and provider swapping without code changes.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - memory: In-memory storage (default, counters are lost on restart)
//   - json: JSON file-based storage (thread-safe with mtime-based caching)
//   - redis: Redis storage (server-side expiry, shared between replicas)
//   - postgres: PostgreSQL database storage (production-ready)
//   - sqlite: SQLite database storage (lightweight single-node database)
//   - mysql: MySQL database storage (shares the SQL store with sqlite)
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	// Convert models.StorageConfig to internal Config format
	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		Addr:             config.Redis.Addr,
		Password:         config.Redis.Password,
		DB:               config.Redis.DB,
		KeyPrefix:        config.Redis.KeyPrefix,
		Options:          convertOptions(config.Options),
	}
	if config.CacheTTL > 0 {
		storageConfig.CacheTTL = config.CacheTTL.String()
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypeJSON:
		return NewJSONStorage(storageConfig)
	case models.StorageTypeRedis:
		return NewRedisStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLStorage(storageConfig, DialectSQLite)
	case models.StorageTypeMySQL:
		return NewSQLStorage(storageConfig, DialectMySQL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{
		models.StorageTypeMemory,
		models.StorageTypeJSON,
		models.StorageTypeRedis,
		models.StorageTypePostgres,
		models.StorageTypeSQLite,
		models.StorageTypeMySQL,
	}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypeRedis:
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for redis storage")
		}
	case models.StorageTypePostgres, models.StorageTypeSQLite, models.StorageTypeMySQL:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
	return nil
}

// SelfExpiring reports whether a backend removes expired entries on its own.
// Self-expiring backends do not need the background sweeper.
func SelfExpiring(storageType string) bool {
	return storageType == models.StorageTypeRedis
}

// convertOptions converts map[string]string to map[string]interface{}
func convertOptions(options map[string]string) map[string]interface{} {
	converted := make(map[string]interface{})
	for k, v := range options {
		converted[k] = v
	}
	return converted
}
