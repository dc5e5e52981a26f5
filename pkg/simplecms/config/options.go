package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"gopkg.in/yaml.v3"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
		case DatabasePostgres, DatabaseSQLite:
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage adds a memory storage backend (for testing)
// If name is empty, defaults to "memory"
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{Name: name, Type: "memory"})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir":   baseDir,
				"url_prefix": urlPrefix,
			},
		})
		return nil
	}
}

// WithS3Storage adds an S3 storage backend
// If name is empty, defaults to "s3"
func WithS3Storage(name, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		})
		return nil
	}
}

// WithS3Credentials sets AWS credentials on a configured S3 backend
func WithS3Credentials(name, accessKeyID, secretAccessKey string) Option {
	return withS3Settings(name, map[string]interface{}{
		"access_key_id":     accessKeyID,
		"secret_access_key": secretAccessKey,
	})
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(name, endpoint string, usePathStyle bool) Option {
	return withS3Settings(name, map[string]interface{}{
		"endpoint":       endpoint,
		"use_path_style": usePathStyle,
	})
}

// WithS3PresignDuration sets the presigned URL duration for S3 (in seconds)
func WithS3PresignDuration(name string, durationSeconds int) Option {
	if durationSeconds <= 0 {
		return func(*ServerConfig) error {
			return fmt.Errorf("presign duration must be positive, got: %d", durationSeconds)
		}
	}
	return withS3Settings(name, map[string]interface{}{"presign_duration": durationSeconds})
}

func withS3Settings(name string, settings map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		for i := range c.StorageBackends {
			if c.StorageBackends[i].Name == name && c.StorageBackends[i].Type == "s3" {
				if c.StorageBackends[i].Config == nil {
					c.StorageBackends[i].Config = map[string]interface{}{}
				}
				for k, v := range settings {
					c.StorageBackends[i].Config[k] = v
				}
				return nil
			}
		}
		return fmt.Errorf("S3 storage backend %q is not configured", name)
	}
}

// WithMediaKeys sets the object key strategy: "dated" or "git-like"
func WithMediaKeys(strategy string) Option {
	return func(c *ServerConfig) error {
		if _, err := mediaKeyGenerator(strategy); err != nil {
			return err
		}
		c.MediaKeys = strategy
		return nil
	}
}

// WithMediaURLs sets how download links are built: "storage" (presigned or
// prefixed store URLs), "api:<base url>" or "cdn:<base url>"
func WithMediaURLs(spec string) Option {
	return func(c *ServerConfig) error {
		if _, err := simplecms.ParseMediaURLStrategy(spec); err != nil {
			return err
		}
		c.MediaURLs = spec
		return nil
	}
}

// WithUploadLimits sets the maximum upload size and the accepted MIME types
func WithUploadLimits(maxBytes int64, mimeTypes ...string) Option {
	return func(c *ServerConfig) error {
		if maxBytes < 0 {
			return fmt.Errorf("max upload bytes cannot be negative")
		}
		c.MaxUploadBytes = maxBytes
		c.AllowedMimeTypes = mimeTypes
		return nil
	}
}

// WithDefaultLanguage sets the language created on an empty store
func WithDefaultLanguage(code, name string) Option {
	return func(c *ServerConfig) error {
		if code == "" {
			return fmt.Errorf("default language code cannot be empty")
		}
		c.DefaultLanguage = code
		if name != "" {
			c.DefaultLanguageName = name
		}
		return nil
	}
}

// WithSchemaCache selects the field metadata cache ("none", "memory" or a redis:// URL)
func WithSchemaCache(spec string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.SchemaCache = spec
		c.SchemaCacheTTL = ttl
		return nil
	}
}

// WithEvents selects the event sink ("none", "log" or kafka://brokers/topic)
func WithEvents(spec string) Option {
	return func(c *ServerConfig) error {
		c.Events = spec
		return nil
	}
}

// WithAdminAuth protects write routes with HS256 tokens signed by secret
func WithAdminAuth(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithRateLimit enables per-client rate limiting
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ServerConfig) error {
		if rps < 0 || burst < 0 {
			return fmt.Errorf("rate limit values cannot be negative")
		}
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
		return nil
	}
}

// WithSeedFile names a YAML file of languages and tables applied at startup
func WithSeedFile(path string) Option {
	return func(c *ServerConfig) error {
		c.SeedFile = path
		return nil
	}
}

// WithYAMLFile overlays settings from a YAML file. A missing file is not
// an error when optional is true.
func WithYAMLFile(path string, optional bool) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if optional && errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDefaults resets the configuration to library defaults
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}
