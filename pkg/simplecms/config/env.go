package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
// Unset variables leave the current value alone, so WithEnv can follow
// WithYAMLFile.
//
// Server:
//
//	PORT, ENVIRONMENT
//
// Database:
//
//	DATABASE_URL - "memory", "postgres://...", "postgresql://..." or "sqlite://path/to/cms.db"
//	DB_SCHEMA    - Postgres schema (default "cms")
//
// Storage:
//
//	STORAGE_URL - "memory://", "file:///path/to/media" or
//	              "s3://bucket?region=us-east-1&endpoint=http://localhost:9000"
//	              (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_REGION are honoured)
//	MAX_UPLOAD_BYTES, ALLOWED_MIME_TYPES (comma separated), MEDIA_KEYS,
//	MEDIA_URLS ("storage", "api:<base url>" or "cdn:<base url>")
//
// Content:
//
//	DEFAULT_LANGUAGE, DEFAULT_LANGUAGE_NAME, SCHEMA_CACHE, SCHEMA_CACHE_TTL,
//	EVENTS, SEED_FILE
//
// HTTP:
//
//	JWT_SECRET, RATE_LIMIT_RPS, RATE_LIMIT_BURST, MAX_BODY_BYTES,
//	ALLOWED_ORIGINS (comma separated)
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		applyStringEnv(prefix, "PORT", &c.Port)
		applyStringEnv(prefix, "ENVIRONMENT", &c.Environment)
		applyStringEnv(prefix, "DB_SCHEMA", &c.DBSchema)
		applyStringEnv(prefix, "DEFAULT_LANGUAGE", &c.DefaultLanguage)
		applyStringEnv(prefix, "DEFAULT_LANGUAGE_NAME", &c.DefaultLanguageName)
		applyStringEnv(prefix, "SCHEMA_CACHE", &c.SchemaCache)
		applyStringEnv(prefix, "EVENTS", &c.Events)
		applyStringEnv(prefix, "JWT_SECRET", &c.JWTSecret)
		applyStringEnv(prefix, "MEDIA_KEYS", &c.MediaKeys)
		applyStringEnv(prefix, "MEDIA_URLS", &c.MediaURLs)
		applyStringEnv(prefix, "SEED_FILE", &c.SeedFile)
		applyListEnv(prefix, "ALLOWED_MIME_TYPES", &c.AllowedMimeTypes)
		applyListEnv(prefix, "ALLOWED_ORIGINS", &c.AllowedOrigins)

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		if v, ok, err := parseInt64Env(prefix, "MAX_UPLOAD_BYTES"); err != nil {
			return err
		} else if ok {
			c.MaxUploadBytes = v
		}
		if v, ok, err := parseInt64Env(prefix, "MAX_BODY_BYTES"); err != nil {
			return err
		} else if ok {
			c.MaxBodyBytes = v
		}
		if v, ok, err := parseIntEnv(prefix, "RATE_LIMIT_BURST"); err != nil {
			return err
		} else if ok {
			c.RateLimitBurst = v
		}
		if raw, ok := lookupEnv(prefix, "RATE_LIMIT_RPS"); ok && raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid number for %sRATE_LIMIT_RPS: %w", prefix, err)
			}
			c.RateLimitRPS = v
		}
		if raw, ok := lookupEnv(prefix, "SCHEMA_CACHE_TTL"); ok && raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration for %sSCHEMA_CACHE_TTL: %w", prefix, err)
			}
			c.SchemaCacheTTL = d
		}
		return nil
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" {
		return nil
	}

	switch {
	case dbURL == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		if strings.TrimPrefix(dbURL, "sqlite://") == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL || storageURL == "" {
		return nil
	}

	switch {
	case storageURL == "memory" || storageURL == "memory://":
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{Name: "memory", Type: "memory"})
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		return applyFilesystemStorage(storageURL, c)
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, c)
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from URL
// Format: file:///path/to/media
func applyFilesystemStorage(raw string, c *ServerConfig) error {
	path := strings.TrimPrefix(raw, "file://")
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
		Name:   "fs",
		Type:   "fs",
		Config: map[string]interface{}{"base_dir": path},
	})
	return nil
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true&key_prefix=cms
func applyS3Storage(raw string, c *ServerConfig) error {
	bucketName, query, _ := strings.Cut(strings.TrimPrefix(raw, "s3://"), "?")
	if bucketName == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}
	params, err := url.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL query: %w", err)
	}

	backend := StorageBackendConfig{
		Name: "s3",
		Type: "s3",
		Config: map[string]interface{}{
			"bucket": bucketName,
			"region": "us-east-1",
		},
	}
	if region := params.Get("region"); region != "" {
		backend.Config["region"] = region
	}
	if endpoint := params.Get("endpoint"); endpoint != "" {
		backend.Config["endpoint"] = endpoint
		backend.Config["use_path_style"] = true
	}
	if v := params.Get("path_style"); v != "" {
		backend.Config["use_path_style"] = v
	}
	if v := params.Get("create_bucket"); v != "" {
		backend.Config["create_bucket_if_not_exist"] = v
	}
	if v := params.Get("key_prefix"); v != "" {
		backend.Config["key_prefix"] = v
	}
	if v := params.Get("cache_control"); v != "" {
		backend.Config["cache_control"] = v
	}

	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		backend.Config["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		backend.Config["secret_access_key"] = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
		backend.Config["region"] = region
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func applyStringEnv(prefix, key string, dst *string) {
	if v, ok := lookupEnv(prefix, key); ok && v != "" {
		*dst = v
	}
}

func applyListEnv(prefix, key string, dst *[]string) {
	v, ok := lookupEnv(prefix, key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseInt64Env(prefix, key string) (int64, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
