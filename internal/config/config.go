// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Load     LoadConfig
	Upload   UploadConfig
	Schema   SchemaConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: localhost)
	Host string `env:"SERVER_HOST" default:"localhost"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response. Loads can
	// run for minutes, so the default is 0 (none).
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Supported database drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the backend: sqlserver, postgres or sqlite (default: sqlserver)
	Driver string `env:"DB_DRIVER" default:"sqlserver"`

	// URL is the connection string (required). Its form depends on Driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`
}

// LoadConfig holds bulk load settings.
type LoadConfig struct {
	// ChunkSize is the number of records converted and inserted at a time (default: 2000)
	ChunkSize int `env:"LOAD_CHUNK_SIZE" default:"2000"`

	// MaxErrors caps the conversion errors reported for one load (default: 10)
	MaxErrors int `env:"LOAD_MAX_ERRORS" default:"10"`

	// MaxConcurrent is the maximum number of loads running at once (default: 4)
	MaxConcurrent int `env:"LOAD_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a load waits for a slot (default: 30s)
	MaxWait time.Duration `env:"LOAD_MAX_WAIT" default:"30s"`

	// Timeout bounds a single load; 0 means no limit (default: 0)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"0s"`
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	// Dir is where uploaded files are kept until loaded (default: data/uploads)
	Dir string `env:"UPLOAD_DIR" default:"data/uploads"`

	// MaxMB is the maximum upload size in megabytes (default: 20)
	MaxMB int `env:"UPLOAD_MAX_MB" default:"20"`

	// PreviewRows is how many data rows an upload response previews (default: 10)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"10"`

	// CountRows makes uploads report the total number of data rows (default: false)
	CountRows bool `env:"UPLOAD_COUNT_ROWS" default:"false"`

	// KeepFiles keeps uploads after a successful load (default: false)
	KeepFiles bool `env:"UPLOAD_KEEP_FILES" default:"false"`
}

// MaxBytes returns the upload size limit in bytes.
func (c *UploadConfig) MaxBytes() int64 {
	return int64(c.MaxMB) << 20
}

// SchemaConfig holds schema repository settings.
type SchemaConfig struct {
	// Dir holds schema files (default: schemas)
	Dir string `env:"SCHEMA_DIR" default:"schemas"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RPS is the sustained requests per second per client (default: 5)
	RPS int `env:"RATE_LIMIT_RPS" default:"5"`

	// Burst is the number of requests allowed above RPS (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables API key authentication for /api routes (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" envAlt:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
