// Package presets builds ready-to-use services for common setups: isolated
// in-memory services for tests, a persistent local development service and
// an environment-driven production service.
package presets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/cache"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	memoryrepo "github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
)

// NewTesting creates a service backed by in-memory stores, isolated per test.
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t, presets.WithTestFixtures())
//	    ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) simplecms.Service {
	t.Helper()

	cfg := &testConfig{sink: simplecms.NewNoopEventSink()}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simplecms.Option{
		simplecms.WithRepository(memoryrepo.New()),
		simplecms.WithBlobStore("memory", memorystorage.New()),
		simplecms.WithSchemaCache(cache.NewMemory(0)),
		simplecms.WithEventSink(cfg.sink),
		simplecms.WithLogger(slog.New(slog.DiscardHandler)),
	}
	options = append(options, cfg.extra...)

	svc, err := simplecms.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	ctx := context.Background()
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("failed to bootstrap test service: %v", err)
	}
	if cfg.fixtures {
		if _, err := config.ApplySeed(ctx, svc, Fixtures(), nil); err != nil {
			t.Fatalf("failed to load test fixtures: %v", err)
		}
	}
	return svc
}

// Fixtures is the sample content model loaded by WithTestFixtures: a French
// language next to the default English one, and an articles table that
// references authors and carries a cover image.
func Fixtures() *config.Seed {
	return &config.Seed{
		Languages: []simplecms.CreateLanguageRequest{
			{Code: "fr", Name: "French", NativeName: "Français", Active: true},
		},
		Tables: []simplecms.CreateTableRequest{
			{
				Name: "authors",
				Fields: []simplecms.FieldSpec{
					{Name: "name", Type: "text"},
					{Name: "bio", Type: "textarea"},
				},
			},
			{
				Name: "articles",
				Fields: []simplecms.FieldSpec{
					{Name: "title", Type: "text"},
					{Name: "body", Type: "textarea"},
					{Name: "published", Type: "boolean"},
					{Name: "cover", Type: "media"},
					{Name: "author", Type: "foreign_key", ForeignTable: "authors", ForeignDisplayColumn: "name"},
				},
			},
		},
	}
}

// NewDevelopment creates a service that keeps its data in a local
// directory: a SQLite database and filesystem media storage.
//
// The returned cleanup function closes the runtime; with WithDevReset it
// also removes the data directory.
func NewDevelopment(ctx context.Context, opts ...DevelopmentOption) (*config.Runtime, func(), error) {
	cfg := &devConfig{dataDir: "./dev-data", logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	mediaDir := filepath.Join(cfg.dataDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	options := []config.Option{
		config.WithEnvironment("development"),
		config.WithDatabase(config.DatabaseSQLite, "sqlite://"+filepath.Join(cfg.dataDir, "cms.db")),
		config.WithFilesystemStorage("fs", mediaDir, "/api/v1/media"),
		config.WithDefaultStorage("fs"),
		config.WithSchemaCache("memory", 0),
		config.WithEvents("log"),
	}
	if cfg.seedFile != "" {
		options = append(options, config.WithSeedFile(cfg.seedFile))
	}

	serverCfg, err := config.Load(options...)
	if err != nil {
		return nil, nil, err
	}
	rt, err := serverCfg.BuildService(ctx, cfg.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create development service: %w", err)
	}

	if serverCfg.SeedFile != "" {
		seed, err := config.LoadSeedFile(serverCfg.SeedFile)
		if err == nil {
			_, err = config.ApplySeed(ctx, rt.Service, seed, cfg.logger)
		}
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
	}

	cleanup := func() {
		if err := rt.Close(); err != nil {
			cfg.logger.Warn("failed to close development service", "error", err)
		}
		if cfg.reset {
			os.RemoveAll(cfg.dataDir)
		}
	}
	return rt, cleanup, nil
}

// NewProduction loads the configuration from CMS_* environment variables,
// applies opts on top and refuses settings that lose data or leave the admin
// API open: an in-memory database, a memory default storage backend or a
// missing JWT secret.
func NewProduction(ctx context.Context, logger *slog.Logger, opts ...config.Option) (*config.Runtime, *config.ServerConfig, error) {
	options := append([]config.Option{
		config.WithEnvironment("production"),
		config.WithEnv("CMS_"),
	}, opts...)

	cfg, err := config.Load(options...)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckProduction(cfg); err != nil {
		return nil, nil, err
	}

	rt, err := cfg.BuildService(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

// CheckProduction reports every setting of cfg that is unfit for production.
func CheckProduction(cfg *config.ServerConfig) error {
	var errs []error
	if cfg.DatabaseType == config.DatabaseMemory {
		errs = append(errs, errors.New("production requires a persistent database (postgres or sqlite)"))
	}
	for _, backend := range cfg.StorageBackends {
		if backend.Name == cfg.DefaultStorageBackend && backend.Type == "memory" {
			errs = append(errs, errors.New("production requires persistent media storage (fs or s3)"))
		}
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("production requires a JWT secret for the admin API"))
	}
	return errors.Join(errs...)
}

type testConfig struct {
	fixtures bool
	sink     simplecms.EventSink
	extra    []simplecms.Option
}

// TestingOption customizes NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures loads Fixtures into the service
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithTestEventSink records events in sink instead of dropping them
func WithTestEventSink(sink simplecms.EventSink) TestingOption {
	return func(cfg *testConfig) {
		cfg.sink = sink
	}
}

// WithTestOptions passes extra service options through
func WithTestOptions(opts ...simplecms.Option) TestingOption {
	return func(cfg *testConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}

type devConfig struct {
	dataDir  string
	seedFile string
	reset    bool
	logger   *slog.Logger
}

// DevelopmentOption customizes NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevDataDir sets the directory holding the database and media files
func WithDevDataDir(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.dataDir = dir
	}
}

// WithDevSeed applies a YAML seed file after bootstrapping
func WithDevSeed(path string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.seedFile = path
	}
}

// WithDevReset makes the cleanup function delete the data directory
func WithDevReset() DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.reset = true
	}
}

// WithDevLogger sets the logger used by the service
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}
