package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies tag
// defaults and validates the result. Every missing or malformed variable is
// reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}

	if errs := loadStruct(reflect.ValueOf(cfg).Elem(), nil); len(errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct fills tagged fields of v and its nested section structs.
func loadStruct(v reflect.Value, errs []error) []error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if field.Type.Kind() == reflect.Struct {
			errs = loadStruct(fieldVal, errs)
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = os.Getenv(alt)
		}
		if value == "" {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("required environment variable %s is not set", envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", envName, value, err))
		}
	}

	return errs
}

// setField parses value into one of the field types Config uses.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(int64(n))

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Type() == reflect.TypeOf([]string(nil)):
		var list []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		field.Set(reflect.ValueOf(list))

	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch strings.ToLower(c.Database.Driver) {
	case DriverSQLServer, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: sqlserver, postgres, sqlite", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Load validation
	if c.Load.ChunkSize <= 0 {
		errs = append(errs, "LOAD_CHUNK_SIZE must be positive")
	}
	if c.Load.MaxErrors <= 0 {
		errs = append(errs, "LOAD_MAX_ERRORS must be positive")
	}
	if c.Load.MaxConcurrent <= 0 {
		errs = append(errs, "LOAD_MAX_CONCURRENT must be positive")
	}
	if c.Load.MaxWait <= 0 {
		errs = append(errs, "LOAD_MAX_WAIT must be positive")
	}
	if c.Load.Timeout < 0 {
		errs = append(errs, "LOAD_TIMEOUT must be non-negative")
	}

	// Upload validation
	if c.Upload.Dir == "" {
		errs = append(errs, "UPLOAD_DIR is required")
	}
	if c.Upload.MaxMB <= 0 {
		errs = append(errs, "UPLOAD_MAX_MB must be positive")
	}
	if c.Upload.PreviewRows < 0 {
		errs = append(errs, "UPLOAD_PREVIEW_ROWS must be non-negative")
	}
	if c.Schema.Dir == "" {
		errs = append(errs, "SCHEMA_DIR is required")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.Burst < c.Rate.RPS {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_BURST (%d) must be >= RATE_LIMIT_RPS (%d)", c.Rate.Burst, c.Rate.RPS))
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "SECURITY_REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Load: {ChunkSize: %d, MaxErrors: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Load.ChunkSize, c.Load.MaxErrors, c.Load.MaxConcurrent, c.Load.Timeout)
	fmt.Fprintf(&b, "Upload: {Dir: %q, MaxMB: %d}, ", c.Upload.Dir, c.Upload.MaxMB)
	fmt.Fprintf(&b, "Schema: {Dir: %q}, ", c.Schema.Dir)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RPS: %d, Burst: %d}, ", c.Rate.Enabled, c.Rate.RPS, c.Rate.Burst)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
