package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rozmerigpt/user-limiter/internal/models"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("LIMITER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("LIMITER_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("LIMITER_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("LIMITER_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("LIMITER_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("LIMITER_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("LIMITER_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("LIMITER_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	if minVersion := os.Getenv("LIMITER_MIN_CLIENT_VERSION"); minVersion != "" {
		config.Server.MinClientVersion = minVersion
	}

	// Storage configuration
	if storageType := os.Getenv("LIMITER_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if storagePath := os.Getenv("LIMITER_STORAGE_PATH"); storagePath != "" {
		config.Storage.Path = storagePath
	}

	if dsn := os.Getenv("LIMITER_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("LIMITER_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	if maxIdle := os.Getenv("LIMITER_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	if addr := os.Getenv("LIMITER_REDIS_ADDR"); addr != "" {
		config.Storage.Redis.Addr = addr
	}

	if password := os.Getenv("LIMITER_REDIS_PASSWORD"); password != "" {
		config.Storage.Redis.Password = password
	}

	if db := os.Getenv("LIMITER_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Storage.Redis.DB = dbNum
		}
	}

	if prefix := os.Getenv("LIMITER_REDIS_KEY_PREFIX"); prefix != "" {
		config.Storage.Redis.KeyPrefix = prefix
	}

	if interval := os.Getenv("LIMITER_SWEEP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Storage.SweepInterval = d
		}
	}

	if timeout := os.Getenv("LIMITER_OPERATION_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Storage.OperationTimeout = d
		}
	}

	// Quota configuration
	if limit := os.Getenv("LIMITER_COMMENTS_PER_DAY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.CommentsPerDay = n
		}
	}

	if limit := os.Getenv("LIMITER_POSTS_PER_DAY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.PostsPerDay = n
		}
	}

	if limit := os.Getenv("LIMITER_SUSPICIOUS_COMMENTS_PER_DAY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.SuspiciousCommentsPerDay = n
		}
	}

	if limit := os.Getenv("LIMITER_SUSPICIOUS_POSTS_PER_DAY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.SuspiciousPostsPerDay = n
		}
	}

	if threshold := os.Getenv("LIMITER_SUSPICION_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Quota.SuspicionThreshold = n
		}
	}

	if retention := os.Getenv("LIMITER_SUSPICION_RETENTION"); retention != "" {
		if d, err := time.ParseDuration(retention); err == nil {
			config.Quota.SuspicionRetention = d
		}
	}

	// Rate limit configuration
	if enabled := os.Getenv("LIMITER_RATE_LIMIT_ENABLED"); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if rpm := os.Getenv("LIMITER_RATE_LIMIT_RPM"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			config.RateLimit.RequestsPerMinute = n
		}
	}

	if burst := os.Getenv("LIMITER_RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			config.RateLimit.BurstSize = n
		}
	}

	// Logging configuration
	if level := os.Getenv("LIMITER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("LIMITER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("LIMITER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("LIMITER_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("LIMITER_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("LIMITER_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("LIMITER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("LIMITER_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("LIMITER_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("LIMITER_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("LIMITER_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Example persistent storage
	config.Storage.Type = models.StorageTypeJSON
	config.Storage.Path = "/var/lib/user-limiter/quotas.json"

	// Example version advisory floor
	config.Server.MinClientVersion = "1.0.0"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
