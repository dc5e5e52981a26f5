package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/cache"
	rediscache "github.com/tendant/simple-cms/pkg/simplecms/cache/redis"
	"github.com/tendant/simple-cms/pkg/simplecms/events/kafka"
	"github.com/tendant/simple-cms/pkg/simplecms/mediakey"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repopg "github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
	reposqlite "github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite"
	fsstorage "github.com/tendant/simple-cms/pkg/simplecms/storage/fs"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
	s3storage "github.com/tendant/simple-cms/pkg/simplecms/storage/s3"
)

func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (simplecms.Repository, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil

	case DatabasePostgres:
		pool, err := newPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		rt.onClose(func() error { pool.Close(); return nil })
		if err := repopg.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return repopg.NewWithPool(pool), nil

	case DatabaseSQLite:
		db, err := reposqlite.Open(ctx, strings.TrimPrefix(c.DatabaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		rt.onClose(db.Close)
		return reposqlite.New(db), nil
	}
	return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
}

// newPostgresPool connects to Postgres, creating schema when given and
// pinning every pooled session's search_path to it.
func newPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	if schema != "" {
		conn, err := pgx.ConnectConfig(ctx, cfg.ConnConfig.Copy())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
		conn.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create schema %s: %w", schema, err)
		}

		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig) (simplecms.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/media"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", ""),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
			KeyPrefix:              getString(config.Config, "key_prefix", ""),
			CacheControl:           getString(config.Config, "cache_control", ""),
		})
	}
	return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
}

func (c *ServerConfig) buildSchemaCache(ctx context.Context, rt *Runtime, logger *slog.Logger) (simplecms.SchemaCache, error) {
	switch {
	case c.SchemaCache == "" || c.SchemaCache == "none":
		return nil, nil
	case c.SchemaCache == "memory":
		return cache.NewMemory(c.SchemaCacheTTL), nil
	}

	rc, err := rediscache.New(ctx, rediscache.Config{URL: c.SchemaCache, TTL: c.SchemaCacheTTL}, logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(rc.Close)
	return rc, nil
}

func (c *ServerConfig) buildEventSink(rt *Runtime, logger *slog.Logger) (simplecms.EventSink, error) {
	switch {
	case c.Events == "" || c.Events == "none":
		return simplecms.NewNoopEventSink(), nil
	case c.Events == "log":
		return simplecms.NewLogEventSink(logger), nil
	}

	brokers, topic, err := parseKafkaURL(c.Events)
	if err != nil {
		return nil, err
	}
	sink, err := kafka.New(kafka.Config{Brokers: brokers, Topic: topic})
	if err != nil {
		return nil, err
	}
	rt.onClose(sink.Close)
	return sink, nil
}

// parseKafkaURL splits kafka://host1:9092,host2:9092/topic into brokers and topic.
func parseKafkaURL(raw string) ([]string, string, error) {
	rest, ok := strings.CutPrefix(raw, "kafka://")
	if !ok {
		return nil, "", fmt.Errorf("invalid events url %q", raw)
	}
	hosts, topic, _ := strings.Cut(rest, "/")
	topic = strings.Trim(topic, "/")
	var brokers []string
	for _, b := range strings.Split(hosts, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 || topic == "" {
		return nil, "", fmt.Errorf("events url must look like kafka://broker:9092/topic, got %q", raw)
	}
	return brokers, topic, nil
}

func mediaKeyGenerator(name string) (mediakey.Generator, error) {
	return mediakey.New(name)
}
