// Package config builds a simplecms.Service and its HTTP settings from
// options, environment variables and YAML files.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          DatabaseMemory,
		DBSchema:              "cms",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{Name: "memory", Type: "memory", Config: map[string]interface{}{}},
		},
		DefaultLanguage:     "en",
		DefaultLanguageName: "English",
		SchemaCache:         "memory",
		SchemaCacheTTL:      5 * time.Minute,
		Events:              "log",
		MaxUploadBytes:      10 << 20,
		MaxBodyBytes:        1 << 20,
		MediaKeys:           "dated",
	}
}

// ServerConfig represents server configuration for the simple-cms service
type ServerConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"` // development, production, testing

	// Database configuration
	DatabaseURL  string `yaml:"database_url"`
	DatabaseType string `yaml:"database_type"` // memory, postgres, sqlite
	DBSchema     string `yaml:"db_schema"`     // Postgres schema (default: cms)

	// Media storage configuration
	DefaultStorageBackend string                 `yaml:"default_storage_backend"`
	StorageBackends       []StorageBackendConfig `yaml:"storage_backends"`
	MaxUploadBytes        int64                  `yaml:"max_upload_bytes"`
	AllowedMimeTypes      []string               `yaml:"allowed_mime_types"`
	MediaKeys             string                 `yaml:"media_keys"` // dated, git-like
	MediaURLs             string                 `yaml:"media_urls"` // storage, api:<url>, cdn:<url>

	DefaultLanguage     string `yaml:"default_language"`
	DefaultLanguageName string `yaml:"default_language_name"`

	// SchemaCache is "none", "memory" or a redis:// URL.
	SchemaCache    string        `yaml:"schema_cache"`
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl"`

	// Events is "none", "log" or kafka://broker1,broker2/topic.
	Events string `yaml:"events"`

	// HTTP
	JWTSecret      string   `yaml:"jwt_secret"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	SeedFile string `yaml:"seed_file"`
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string                 `yaml:"name"`
	Type   string                 `yaml:"type"` // memory, fs, s3
	Config map[string]interface{} `yaml:"config"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got %q", c.DatabaseType)
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	if c.DefaultLanguage == "" {
		return errors.New("default_language is required")
	}
	if c.MaxUploadBytes < 0 || c.MaxBodyBytes < 0 {
		return errors.New("size limits cannot be negative")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps cannot be negative")
	}

	switch {
	case c.SchemaCache == "", c.SchemaCache == "none", c.SchemaCache == "memory":
	case strings.HasPrefix(c.SchemaCache, "redis://"), strings.HasPrefix(c.SchemaCache, "rediss://"):
	default:
		return fmt.Errorf("unsupported schema_cache %q (use 'none', 'memory' or 'redis://...')", c.SchemaCache)
	}

	switch {
	case c.Events == "", c.Events == "none", c.Events == "log":
	case strings.HasPrefix(c.Events, "kafka://"):
		if _, _, err := parseKafkaURL(c.Events); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported events %q (use 'none', 'log' or 'kafka://...')", c.Events)
	}

	if _, err := simplecms.ParseMediaURLStrategy(c.MediaURLs); err != nil {
		return err
	}
	return nil
}

// APIConfig returns the HTTP settings for api.NewRouter
func (c *ServerConfig) APIConfig(logger *slog.Logger) api.Config {
	return api.Config{
		JWTSecret:      c.JWTSecret,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
		MaxBodyBytes:   c.MaxBodyBytes,
		AllowedOrigins: c.AllowedOrigins,
		Logger:         logger,
	}
}

// Runtime is a built service plus the resources it holds open.
type Runtime struct {
	Service simplecms.Service
	closers []func() error
}

// Close releases every resource in reverse order of acquisition
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// BuildService creates the Service described by the configuration and
// bootstraps its store.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}
	svc, err := c.build(ctx, rt, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := svc.Bootstrap(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to bootstrap store: %w", err)
	}
	rt.Service = svc
	return rt, nil
}

func (c *ServerConfig) build(ctx context.Context, rt *Runtime, logger *slog.Logger) (simplecms.Service, error) {
	options := []simplecms.Option{
		simplecms.WithLogger(logger),
		simplecms.WithDefaultLanguage(c.DefaultLanguage, c.DefaultLanguageName),
		simplecms.WithMaxUploadBytes(c.MaxUploadBytes),
	}
	if len(c.AllowedMimeTypes) > 0 {
		options = append(options, simplecms.WithAllowedMimeTypes(c.AllowedMimeTypes...))
	}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, simplecms.WithRepository(repo))

	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(ctx, backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		options = append(options, simplecms.WithBlobStore(backendConfig.Name, store))
	}
	options = append(options, simplecms.WithDefaultBlobStore(c.DefaultStorageBackend))

	gen, err := mediaKeyGenerator(c.MediaKeys)
	if err != nil {
		return nil, err
	}
	options = append(options, simplecms.WithMediaKeyGenerator(gen))

	urls, err := simplecms.ParseMediaURLStrategy(c.MediaURLs)
	if err != nil {
		return nil, err
	}
	options = append(options, simplecms.WithMediaURLStrategy(urls))

	cache, err := c.buildSchemaCache(ctx, rt, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema cache: %w", err)
	}
	if cache != nil {
		options = append(options, simplecms.WithSchemaCache(cache))
	}

	sink, err := c.buildEventSink(rt, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}
	options = append(options, simplecms.WithEventSink(sink))

	return simplecms.New(options...)
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
