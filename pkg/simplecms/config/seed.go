package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"gopkg.in/yaml.v3"
)

// Seed is a declarative set of languages and tables.
type Seed struct {
	Languages []simplecms.CreateLanguageRequest `yaml:"languages"`
	Tables    []simplecms.CreateTableRequest    `yaml:"tables"`
}

// SeedResult counts what ApplySeed changed.
type SeedResult struct {
	LanguagesCreated int
	TablesCreated    int
	FieldsAdded      int
}

// LoadSeedFile reads a YAML seed file
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// ApplySeed creates the languages, tables and fields of seed that do not
// exist yet. Tables are processed in file order, so a foreign key target
// must be listed before the tables that reference it.
func ApplySeed(ctx context.Context, svc simplecms.Service, seed *Seed, logger *slog.Logger) (SeedResult, error) {
	var result SeedResult
	if seed == nil {
		return result, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, req := range seed.Languages {
		_, err := svc.GetLanguage(ctx, req.Code)
		switch {
		case err == nil:
			if req.Default {
				if err := svc.SetDefaultLanguage(ctx, req.Code); err != nil {
					return result, fmt.Errorf("seed language %s: %w", req.Code, err)
				}
			}
			continue
		case !errors.Is(err, simplecms.ErrNotFound):
			return result, fmt.Errorf("seed language %s: %w", req.Code, err)
		}

		if _, err := svc.CreateLanguage(ctx, req); err != nil {
			return result, fmt.Errorf("seed language %s: %w", req.Code, err)
		}
		result.LanguagesCreated++
		logger.InfoContext(ctx, "Seeded language", "code", req.Code)
	}

	for _, req := range seed.Tables {
		existing, err := svc.DescribeTable(ctx, req.Name)
		if errors.Is(err, simplecms.ErrNotFound) {
			if _, err := svc.CreateTable(ctx, req); err != nil {
				return result, fmt.Errorf("seed table %s: %w", req.Name, err)
			}
			result.TablesCreated++
			logger.InfoContext(ctx, "Seeded table", "table", req.Name, "fields", len(req.Fields))
			continue
		}
		if err != nil {
			return result, fmt.Errorf("seed table %s: %w", req.Name, err)
		}

		known := make(map[string]bool, len(existing.Fields))
		for _, f := range existing.Fields {
			known[f.Name] = true
		}
		for _, spec := range req.Fields {
			if known[spec.Name] {
				continue
			}
			if _, err := svc.AddField(ctx, req.Name, spec); err != nil {
				return result, fmt.Errorf("seed field %s.%s: %w", req.Name, spec.Name, err)
			}
			result.FieldsAdded++
			logger.InfoContext(ctx, "Seeded field", "table", req.Name, "field", spec.Name)
		}
	}
	return result, nil
}
