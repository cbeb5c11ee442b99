// Package models - Service configuration and operational settings.
// This file defines comprehensive configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, quota, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Support for multiple deployment scenarios (development, production, cloud)
// - Extensible design for future enhancements
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeJSON     = "json"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeMySQL    = "mysql"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Counter and identity-set persistence
// - Quota: Daily ceilings and the abuse heuristic tunables
// - RateLimit: Transport-level request throttling (distinct from quota)
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint settings
// - Observability: Tracing and service identity
//
// Design Benefits:
// - Single source of truth for all configuration
// - Clear separation of concerns by component
// - Easy to serialize/deserialize from YAML/JSON
// - Comprehensive validation across all components
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Data persistence settings
	Quota         QuotaConfig         `yaml:"quota" json:"quota"`                 // Daily limits and suspicion policy
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // HTTP request throttling
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
}

type ServerConfig struct {
	Port             int           `yaml:"port" json:"port"`
	Host             string        `yaml:"host" json:"host"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled       bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile      string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile       string        `yaml:"tls_key_file" json:"tls_key_file"`
	MinClientVersion string        `yaml:"min_client_version" json:"min_client_version"` // Advisory floor for extension versions
	CORS             CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type             string            `yaml:"type" json:"type"`
	Path             string            `yaml:"path" json:"path"`
	Database         DatabaseConfig    `yaml:"database" json:"database"`
	Redis            RedisConfig       `yaml:"redis" json:"redis"`
	CacheTTL         time.Duration     `yaml:"cache_ttl" json:"cache_ttl"`                 // File-backed read cache window
	SweepInterval    time.Duration     `yaml:"sweep_interval" json:"sweep_interval"`       // Expired-entry cleanup cadence
	OperationTimeout time.Duration     `yaml:"operation_timeout" json:"operation_timeout"` // Per-call storage deadline
	Options          map[string]string `yaml:"options" json:"options"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// QuotaConfig holds the daily ceilings and abuse heuristic tunables. The
// suspicious ceilings apply to addresses flagged by the identity churn
// monitor and must not exceed their standard counterparts.
type QuotaConfig struct {
	CommentsPerDay           int           `yaml:"comments_per_day" json:"comments_per_day"`
	PostsPerDay              int           `yaml:"posts_per_day" json:"posts_per_day"`
	SuspiciousCommentsPerDay int           `yaml:"suspicious_comments_per_day" json:"suspicious_comments_per_day"`
	SuspiciousPostsPerDay    int           `yaml:"suspicious_posts_per_day" json:"suspicious_posts_per_day"`
	SuspicionThreshold       int           `yaml:"suspicion_threshold" json:"suspicion_threshold"`
	SuspicionRetention       time.Duration `yaml:"suspicion_retention" json:"suspicion_retention"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - 30-second timeouts: Balance between user experience and resource protection
// - Memory storage: Zero-setup default; counters are cheap to lose on restart
// - Quota 10/2: Generous enough for genuine users of a free tier
// - Suspicious 5/1: Halved ceilings once an address churns identities
// - Threshold 3: A household rarely presents more than 3 accounts per day
// - 7-day retention: Long enough to frustrate patient id rotation
// - Rate limiting enabled: Protect the endpoint itself from hammering
// - Structured logging: Better for log aggregation and analysis
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/quotas.json",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "limiter:",
			},
			CacheTTL:         2 * time.Second,
			SweepInterval:    10 * time.Minute,
			OperationTimeout: 2 * time.Second,
			Options:          make(map[string]string),
		},
		Quota: QuotaConfig{
			CommentsPerDay:           10,
			PostsPerDay:              2,
			SuspiciousCommentsPerDay: 5,
			SuspiciousPostsPerDay:    1,
			SuspicionThreshold:       3,
			SuspicionRetention:       7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			BurstSize:         10,
			CleanupInterval:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "user-limiter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("invalid quota config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	if sc.MinClientVersion != "" {
		if _, err := semver.NewVersion(sc.MinClientVersion); err != nil {
			return fmt.Errorf("invalid min_client_version: %w", err)
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{
		StorageTypeMemory, StorageTypeJSON, StorageTypeRedis,
		StorageTypePostgres, StorageTypeSQLite, StorageTypeMySQL,
	}
	found := false
	for _, vt := range validTypes {
		if stc.Type == vt {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Type == StorageTypeJSON && stc.Path == "" {
		return errors.New("path is required for JSON storage")
	}

	if stc.Type == StorageTypeRedis && stc.Redis.Addr == "" {
		return errors.New("redis address is required for redis storage")
	}

	dbBacked := stc.Type == StorageTypePostgres || stc.Type == StorageTypeSQLite || stc.Type == StorageTypeMySQL
	if dbBacked && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	if stc.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}

	if stc.OperationTimeout < 0 {
		return errors.New("operation timeout cannot be negative")
	}

	return nil
}

func (qc *QuotaConfig) Validate() error {
	if qc.CommentsPerDay <= 0 {
		return errors.New("comments per day must be positive")
	}

	if qc.PostsPerDay <= 0 {
		return errors.New("posts per day must be positive")
	}

	if qc.SuspiciousCommentsPerDay <= 0 || qc.SuspiciousPostsPerDay <= 0 {
		return errors.New("suspicious limits must be positive")
	}

	if qc.SuspiciousCommentsPerDay > qc.CommentsPerDay {
		return errors.New("suspicious comments limit cannot exceed the standard limit")
	}

	if qc.SuspiciousPostsPerDay > qc.PostsPerDay {
		return errors.New("suspicious posts limit cannot exceed the standard limit")
	}

	if qc.SuspicionThreshold <= 0 {
		return errors.New("suspicion threshold must be positive")
	}

	if qc.SuspicionRetention <= 0 {
		return errors.New("suspicion retention must be positive")
	}

	return nil
}

func (rlc *RateLimitConfig) Validate() error {
	if !rlc.Enabled {
		return nil
	}

	if rlc.RequestsPerMinute <= 0 {
		return errors.New("requests per minute must be positive")
	}

	if rlc.BurstSize <= 0 {
		return errors.New("burst size must be positive")
	}

	if rlc.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	validExporters := []string{"stdout", "otlp"}
	found := false
	for _, ve := range validExporters {
		if oc.Tracing.Exporter == ve {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required for the otlp exporter")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
