package simplecms

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// TableFactory creates physical tables and columns, keeping the registry in
// step with them. Schema changes to one table are serialized; the DDL and
// the metadata rows commit or roll back together.
type TableFactory struct {
	repo     Repository
	registry *SchemaRegistry
	locks    *keyedMutex
	now      func() time.Time
}

// NewTableFactory creates a factory writing through repo and registry.
func NewTableFactory(repo Repository, registry *SchemaRegistry) *TableFactory {
	return &TableFactory{
		repo:     repo,
		registry: registry,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTable creates a dynamic table with the given fields.
func (f *TableFactory) CreateTable(ctx context.Context, req CreateTableRequest) (*TableDefinition, error) {
	name := SanitizeIdentifier(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, req.Name)
	}
	if IsReservedTable(name) {
		return nil, fmt.Errorf("%w: %q", ErrReservedTable, name)
	}

	now := f.now()
	fields := make([]FieldDefinition, 0, len(req.Fields))
	seen := make(map[string]bool, len(req.Fields))
	for _, spec := range req.Fields {
		if SanitizeIdentifier(spec.Name) == "" {
			continue
		}
		def, err := buildField(name, spec, len(fields)+1, now)
		if err != nil {
			return nil, err
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, name, def.Name)
		}
		seen[def.Name] = true
		fields = append(fields, def)
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	unlock := f.locks.Lock(name)
	defer unlock()

	err := f.repo.WithTx(ctx, func(tx Repository) error {
		existing, err := tx.GetFields(ctx, name)
		if err != nil {
			return storageErr("get fields", err)
		}
		if len(existing) > 0 {
			return ErrDuplicateTable
		}

		columns := make([]Column, len(fields))
		for i, fd := range fields {
			columns[i] = Column{Name: fd.Name, Type: fd.StorageType()}
		}
		if err := tx.CreateTable(ctx, name, columns); err != nil {
			return storageErr("create table", err)
		}
		return f.registry.bind(tx).DefineFields(ctx, name, fields)
	})
	// Runs after commit or rollback; stale entries must not survive either.
	f.registry.cache.Invalidate(ctx, name)
	if err != nil {
		return nil, &TableError{Table: name, Op: "create", Err: err}
	}

	for i := range fields {
		fields[i].Table = name
	}
	return &TableDefinition{Name: name, Fields: fields}, nil
}

// AddField adds one column to an existing dynamic table.
func (f *TableFactory) AddField(ctx context.Context, table string, spec FieldSpec) (*FieldDefinition, error) {
	if table == "" || IsReservedTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	if SanitizeIdentifier(spec.Name) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFieldName, spec.Name)
	}

	unlock := f.locks.Lock(table)
	defer unlock()

	var def FieldDefinition
	err := f.repo.WithTx(ctx, func(tx Repository) error {
		existing, err := tx.GetFields(ctx, table)
		if err != nil {
			return storageErr("get fields", err)
		}
		if len(existing) == 0 {
			return fmt.Errorf("%w: %q", ErrTableNotFound, table)
		}

		position := 0
		for _, fd := range existing {
			position = max(position, fd.Position)
		}
		def, err = buildField(table, spec, position+1, f.now())
		if err != nil {
			return err
		}
		if slices.ContainsFunc(existing, func(fd FieldDefinition) bool { return fd.Name == def.Name }) {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateField, table, def.Name)
		}

		if err := tx.AddColumn(ctx, table, Column{Name: def.Name, Type: def.StorageType()}); err != nil {
			return storageErr("add column", err)
		}
		return f.registry.bind(tx).DefineFields(ctx, table, []FieldDefinition{def})
	})
	f.registry.cache.Invalidate(ctx, table)
	if err != nil {
		return nil, &TableError{Table: table, Op: "add_field", Err: err}
	}
	return &def, nil
}

// buildField validates a caller declaration and derives its role.
func buildField(table string, spec FieldSpec, position int, now time.Time) (FieldDefinition, error) {
	name := SanitizeIdentifier(spec.Name)
	if name == "" || IsReservedField(name) {
		return FieldDefinition{}, fmt.Errorf("%w: %q", ErrInvalidFieldName, spec.Name)
	}
	ft, err := ParseFieldType(spec.Type)
	if err != nil {
		return FieldDefinition{}, fmt.Errorf("field %s: %w", name, err)
	}

	var role FieldRole = PlainRole{}
	switch ft {
	case FieldMedia:
		role = MediaRole{Arity: MediaSingle}
	case FieldMediaMultiple:
		role = MediaRole{Arity: MediaMultiple}
	case FieldForeignKey:
		target := SanitizeIdentifier(spec.ForeignTable)
		if target == "" {
			return FieldDefinition{}, Validationf("field %s: foreign_table is required for foreign_key fields", name)
		}
		if IsReservedTable(target) {
			return FieldDefinition{}, fmt.Errorf("field %s: %w: %q", name, ErrReservedTable, target)
		}
		role = ForeignKeyRole{Table: target, DisplayColumn: SanitizeIdentifier(spec.ForeignDisplayColumn)}
	}

	return FieldDefinition{
		Table:     table,
		Name:      name,
		Type:      ft,
		Role:      role,
		Position:  position,
		CreatedAt: now,
	}, nil
}

// keyedMutex hands out one mutex per key, dropping entries nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
