package simplecms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Keys the resolver attaches next to a field.
const (
	mediaSuffix = "_media"
	dataSuffix  = "_data"
)

// displayFallbacks are tried in order when a foreign key names no display
// column or the column is empty.
var displayFallbacks = []string{"name", "title", "label", "description"}

// RelationResolver expands media and foreign-key fields of records one level
// deep. References that do not resolve become null (single) or are dropped
// (lists); only store failures are errors.
type RelationResolver struct {
	repo        Repository
	registry    *SchemaRegistry
	concurrency int
}

// NewRelationResolver creates a resolver. concurrency bounds the records
// expanded in parallel by ExpandAll.
func NewRelationResolver(repo Repository, registry *SchemaRegistry, concurrency int) *RelationResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RelationResolver{repo: repo, registry: registry, concurrency: concurrency}
}

// Expand returns a copy of record with every relation of table attached.
func (r *RelationResolver) Expand(ctx context.Context, table string, record Record) (Record, error) {
	fields, err := r.registry.FieldsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	return r.expand(ctx, fields, record)
}

// ExpandAll expands records in parallel, preserving their order.
func (r *RelationResolver) ExpandAll(ctx context.Context, table string, records []Record) ([]Record, error) {
	fields, err := r.registry.FieldsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	if !hasRelations(fields) {
		out := make([]Record, len(records))
		for i, rec := range records {
			out[i] = rec.Clone()
		}
		return out, nil
	}

	out := make([]Record, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			expanded, err := r.expand(gctx, fields, rec)
			if err != nil {
				return err
			}
			out[i] = expanded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RelationResolver) expand(ctx context.Context, fields []FieldDefinition, record Record) (Record, error) {
	out := record.Clone()
	for _, f := range fields {
		switch role := f.Role.(type) {
		case PlainRole:
		case MediaRole:
			if role.Arity == MediaMultiple {
				assets, err := r.mediaList(ctx, record[f.Name])
				if err != nil {
					return nil, err
				}
				out[f.Name+mediaSuffix] = assets
				continue
			}
			asset, err := r.media(ctx, record[f.Name])
			if err != nil {
				return nil, err
			}
			out[f.Name+mediaSuffix] = asset
		case ForeignKeyRole:
			linked, err := r.foreign(ctx, role, record[f.Name])
			if err != nil {
				return nil, err
			}
			out[f.Name+dataSuffix] = linked
		default:
			return nil, fmt.Errorf("field %s: unsupported role %T", f.Name, f.Role)
		}
	}
	return out, nil
}

func (r *RelationResolver) media(ctx context.Context, value any) (*MediaAsset, error) {
	id, ok := referenceID(value)
	if !ok {
		return nil, nil
	}
	asset, err := r.repo.GetMedia(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get media", err)
	}
	return asset, nil
}

func (r *RelationResolver) mediaList(ctx context.Context, value any) ([]*MediaAsset, error) {
	ids := ParseMediaIDs(value)
	assets := make([]*MediaAsset, 0, len(ids))
	for _, id := range ids {
		asset, err := r.repo.GetMedia(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageErr("get media", err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (r *RelationResolver) foreign(ctx context.Context, role ForeignKeyRole, value any) (Record, error) {
	id, ok := referenceID(value)
	if !ok {
		return nil, nil
	}
	rec, err := r.repo.GetRecord(ctx, role.Table, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	fields, err := r.registry.FieldsOf(ctx, role.Table)
	if err != nil {
		return nil, err
	}
	return normalizeRecord(fields, rec), nil
}

// DisplayValue derives the human label of a record: the display column when
// it is set and non-empty, else the first non-empty of name, title, label and
// description, else "#<id>".
func DisplayValue(record Record, displayColumn string) string {
	if displayColumn != "" {
		if s := displayString(record[displayColumn]); s != "" {
			return s
		}
	}
	for _, col := range displayFallbacks {
		if s := displayString(record[col]); s != "" {
			return s
		}
	}
	return fmt.Sprintf("#%d", record.ID())
}

func displayString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	default:
		return fmt.Sprint(s)
	}
}

// referenceID reads a stored single reference. Empty and non-positive values
// reference nothing.
func referenceID(value any) (int64, bool) {
	if value == nil {
		return 0, false
	}
	id, ok := asInt64(value)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func hasRelations(fields []FieldDefinition) bool {
	for _, f := range fields {
		if _, plain := f.Role.(PlainRole); !plain {
			return true
		}
	}
	return false
}

// normalizeRecord returns a copy of rec with values shaped by their fields.
func normalizeRecord(fields []FieldDefinition, rec Record) Record {
	out := rec.Clone()
	if id, ok := asInt64(rec["id"]); ok {
		out["id"] = id
	}
	for _, f := range fields {
		if v, ok := rec[f.Name]; ok {
			out[f.Name] = NormalizeValue(f, v)
		}
	}
	return out
}
