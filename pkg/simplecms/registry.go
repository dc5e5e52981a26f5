package simplecms

import (
	"context"
	"errors"
	"fmt"
)

// SchemaRegistry is the source of truth for which fields exist on which
// dynamic table and what role each plays on read.
type SchemaRegistry struct {
	repo  Repository
	cache SchemaCache
}

// NewSchemaRegistry creates a registry over repo. A nil cache disables caching.
func NewSchemaRegistry(repo Repository, cache SchemaCache) *SchemaRegistry {
	if cache == nil {
		cache = noopSchemaCache{}
	}
	return &SchemaRegistry{repo: repo, cache: cache}
}

// bind returns a registry reading and writing through tx. The bound registry
// bypasses the cache so uncommitted metadata never leaks into it.
func (r *SchemaRegistry) bind(tx Repository) *SchemaRegistry {
	return &SchemaRegistry{repo: tx, cache: noopSchemaCache{}}
}

// DefineFields records metadata for fields of table. Every field is stamped
// with table. Fails with ErrDuplicateField if a name is already registered
// or repeated in fields.
func (r *SchemaRegistry) DefineFields(ctx context.Context, table string, fields []FieldDefinition) error {
	existing, err := r.repo.GetFields(ctx, table)
	if err != nil {
		return storageErr("get fields", err)
	}
	seen := make(map[string]bool, len(existing)+len(fields))
	for _, f := range existing {
		seen[f.Name] = true
	}

	out := make([]FieldDefinition, len(fields))
	for i, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateField, table, f.Name)
		}
		seen[f.Name] = true
		if f.Role == nil {
			f.Role = PlainRole{}
		}
		f.Table = table
		out[i] = f
	}

	if err := r.repo.InsertFields(ctx, out); err != nil {
		return storageErr("insert fields", err)
	}
	r.cache.Invalidate(ctx, table)
	return nil
}

// FieldsOf returns every field of table in declaration order. Unknown tables
// yield an empty list.
func (r *SchemaRegistry) FieldsOf(ctx context.Context, table string) ([]FieldDefinition, error) {
	if fields, ok := r.cache.Get(ctx, table); ok {
		return fields, nil
	}
	version, versioned := r.cache.Version(ctx, table)
	fields, err := r.repo.GetFields(ctx, table)
	if err != nil {
		return nil, storageErr("get fields", err)
	}
	if versioned && len(fields) > 0 {
		r.cache.Set(ctx, table, version, fields)
	}
	return fields, nil
}

// MediaFields returns the media-role fields of table keyed by field name.
func (r *SchemaRegistry) MediaFields(ctx context.Context, table string) (map[string]MediaRole, error) {
	fields, err := r.FieldsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]MediaRole)
	for _, f := range fields {
		if m, ok := f.Media(); ok {
			out[f.Name] = m
		}
	}
	return out, nil
}

// ForeignKeyFields returns the foreign-key fields of table keyed by field name.
func (r *SchemaRegistry) ForeignKeyFields(ctx context.Context, table string) (map[string]ForeignKeyRole, error) {
	fields, err := r.FieldsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ForeignKeyRole)
	for _, f := range fields {
		if fk, ok := f.ForeignKey(); ok {
			out[f.Name] = fk
		}
	}
	return out, nil
}

// Table returns the definition of a dynamic table, failing with
// ErrTableNotFound when it has no registered fields.
func (r *SchemaRegistry) Table(ctx context.Context, table string) (*TableDefinition, error) {
	if table == "" || IsReservedTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	fields, err := r.FieldsOf(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	return &TableDefinition{Name: table, Fields: fields}, nil
}

// Drift compares the fields of def with the physical columns of its table.
// It returns nil when every field has a column and every column but id has
// a field. A missing physical table reports every field as missing.
func (r *SchemaRegistry) Drift(ctx context.Context, def *TableDefinition) (*SchemaDrift, error) {
	columns, err := r.repo.TableColumns(ctx, def.Name)
	if err != nil && !errors.Is(err, ErrTableNotFound) {
		return nil, storageErr("table columns", err)
	}
	physical := make(map[string]bool, len(columns))
	for _, c := range columns {
		physical[c] = true
	}

	var drift SchemaDrift
	registered := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		registered[f.Name] = true
		if !physical[f.Name] {
			drift.MissingColumns = append(drift.MissingColumns, f.Name)
		}
	}
	for _, c := range columns {
		if c != "id" && !registered[c] {
			drift.UnregisteredColumns = append(drift.UnregisteredColumns, c)
		}
	}
	if drift.MissingColumns == nil && drift.UnregisteredColumns == nil {
		return nil, nil
	}
	return &drift, nil
}
