package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"github.com/tendant/simple-cms/pkg/simplecms/presets"
)

// ProcessConfig holds settings that belong to the executable rather than
// the library configuration.
type ProcessConfig struct {
	ConfigFile      string        `env:"CMS_CONFIG_FILE" env-default:"cms.yaml"`
	LogFormat       string        `env:"LOG_FORMAT" env-default:"text"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
}

func main() {
	var proc ProcessConfig
	if err := cleanenv.ReadEnv(&proc); err != nil {
		slog.Error("Failed to read process configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(proc.LogFormat, proc.LogLevel)
	slog.SetDefault(logger)

	if err := run(proc, logger); err != nil {
		logger.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run(proc ProcessConfig, logger *slog.Logger) error {
	serverConfig, err := config.Load(
		config.WithYAMLFile(proc.ConfigFile, true),
		config.WithEnv("CMS_"),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serverConfig.Environment == "production" {
		if err := presets.CheckProduction(serverConfig); err != nil {
			return fmt.Errorf("invalid production configuration: %w", err)
		}
	}

	ctx := context.Background()
	rt, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to release resources", "err", err)
		}
	}()

	if serverConfig.SeedFile != "" {
		seed, err := config.LoadSeedFile(serverConfig.SeedFile)
		if err != nil {
			return err
		}
		result, err := config.ApplySeed(ctx, rt.Service, seed, logger)
		if err != nil {
			return err
		}
		logger.Info("Seed applied", "file", serverConfig.SeedFile,
			"languages", result.LanguagesCreated, "tables", result.TablesCreated, "fields", result.FieldsAdded)
	}

	if serverConfig.JWTSecret == "" {
		logger.Warn("CMS_JWT_SECRET is not set; write routes are unauthenticated")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", serverConfig.Port),
		Handler:      api.NewRouter(rt.Service, serverConfig.APIConfig(logger)),
		ReadTimeout:  proc.ReadTimeout,
		WriteTimeout: proc.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Simple CMS server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.DefaultStorageBackend,
			"schema_cache", redact(serverConfig.SchemaCache),
			"events", serverConfig.Events)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), proc.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// redact hides credentials embedded in connection URLs.
func redact(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return raw
}
