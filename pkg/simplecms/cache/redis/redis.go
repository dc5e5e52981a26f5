// Package redis shares schema metadata between server instances through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const defaultPrefix = "cms:schema:"

var errStaleVersion = errors.New("schema cache version moved")

// Config options for the Redis schema cache
type Config struct {
	URL         string        // redis://[:password@]host:port/db
	Prefix      string        // Key prefix (default "cms:schema:")
	TTL         time.Duration // Entry lifetime; 0 means no expiration
	DialTimeout time.Duration
}

// Cache implements simplecms.SchemaCache on Redis. Redis failures degrade
// to cache misses.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, config Config, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, config.Prefix, config.TTL, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache) key(table string) string {
	return c.prefix + table
}

func (c *Cache) versionKey(table string) string {
	return c.prefix + table + ":version"
}

func (c *Cache) Get(ctx context.Context, table string) ([]simplecms.FieldDefinition, bool) {
	val, err := c.client.Get(ctx, c.key(table)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Schema cache read failed", "table", table, "error", err)
		return nil, false
	}

	var fields []simplecms.FieldDefinition
	if err := json.Unmarshal(val, &fields); err != nil {
		c.logger.WarnContext(ctx, "Schema cache entry is corrupt", "table", table, "error", err)
		c.Invalidate(ctx, table)
		return nil, false
	}
	return fields, true
}

func (c *Cache) Version(ctx context.Context, table string) (uint64, bool) {
	version, err := c.client.Get(ctx, c.versionKey(table)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Schema cache version read failed", "table", table, "error", err)
		return 0, false
	}
	return version, true
}

// Set writes fields only while the table version still equals version. The
// version key is watched, so an Invalidate from any instance racing the
// write aborts it.
func (c *Cache) Set(ctx context.Context, table string, version uint64, fields []simplecms.FieldDefinition) {
	val, err := json.Marshal(fields)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to encode schema cache entry", "table", table, "error", err)
		return
	}

	versionKey := c.versionKey(table)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(table), val, c.ttl)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil, errors.Is(err, errStaleVersion), errors.Is(err, redis.TxFailedErr):
	default:
		c.logger.WarnContext(ctx, "Schema cache write failed", "table", table, "error", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, table string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(table))
		pipe.Incr(ctx, c.versionKey(table))
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Schema cache invalidation failed", "table", table, "error", err)
	}
}

// Close releases the underlying client
func (c *Cache) Close() error {
	return c.client.Close()
}
