package simplecms

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SelectOption is one choice of a foreign-key field: a record id and its
// display label.
type SelectOption struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

func (s *service) CreateTable(ctx context.Context, req CreateTableRequest) (*TableDefinition, error) {
	def, err := s.factory.CreateTable(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, "create_table", err)
	}
	s.logger.InfoContext(ctx, "Table created", "table", def.Name, "fields", def.FieldNames())
	s.notify(ctx, "table_created", s.eventSink.TableCreated(ctx, *def))
	return def, nil
}

func (s *service) AddField(ctx context.Context, table string, spec FieldSpec) (*FieldDefinition, error) {
	def, err := s.factory.AddField(ctx, table, spec)
	if err != nil {
		return nil, s.fail(ctx, "add_field", err)
	}
	s.logger.InfoContext(ctx, "Field added", "table", table, "field", def.Name, "type", def.Type)
	s.notify(ctx, "field_added", s.eventSink.FieldAdded(ctx, *def))
	return def, nil
}

// DescribeTable returns the registered fields of table and reports any
// drift between them and the physical columns.
func (s *service) DescribeTable(ctx context.Context, table string) (*TableDefinition, error) {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return nil, s.fail(ctx, "describe_table", err)
	}
	drift, err := s.registry.Drift(ctx, def)
	if err != nil {
		return nil, s.fail(ctx, "describe_table", err)
	}
	if drift != nil {
		s.logger.WarnContext(ctx, "Table metadata and columns diverge",
			"table", def.Name,
			"missing_columns", drift.MissingColumns,
			"unregistered_columns", drift.UnregisteredColumns)
		def.Drift = drift
	}
	return def, nil
}

func (s *service) ListTables(ctx context.Context) ([]string, error) {
	tables, err := s.repository.ListTables(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list_tables", storageErr("list tables", err))
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

// List returns one page of a table's records, expanded and, when a language
// is given, overlaid with its translations.
func (s *service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	def, err := s.registry.Table(ctx, req.Table)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}

	orderBy := strings.TrimSpace(req.OrderBy)
	if orderBy == "" {
		orderBy = "id"
	}
	if orderBy != "id" {
		if _, ok := def.Field(orderBy); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSortField, orderBy)
		}
	}
	q := RecordQuery{
		Limit:   ClampLimit(req.Limit),
		Offset:  ClampOffset(req.Offset),
		OrderBy: orderBy,
		Desc:    NormalizeOrderDir(req.OrderDir) == SortDesc,
	}

	lang, isDefault, err := s.readLanguage(ctx, req.Language)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}

	total, err := s.repository.CountRecords(ctx, def.Name)
	if err != nil {
		return nil, s.fail(ctx, "list", storageErr("count records", err))
	}
	rows, err := s.repository.ListRecords(ctx, def.Name, q)
	if err != nil {
		return nil, s.fail(ctx, "list", storageErr("list records", err))
	}

	records, err := s.readPipeline(ctx, def, rows, lang, isDefault)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}

	return &ListResult{
		Records:  records,
		Total:    total,
		Limit:    q.Limit,
		Offset:   q.Offset,
		HasMore:  int64(q.Offset+len(records)) < total,
		OrderBy:  q.OrderBy,
		OrderDir: NormalizeOrderDir(req.OrderDir),
		Language: lang,
	}, nil
}

func (s *service) GetOne(ctx context.Context, table string, id int64, lang string) (Record, error) {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return nil, s.fail(ctx, "get_one", err)
	}
	code, isDefault, err := s.readLanguage(ctx, lang)
	if err != nil {
		return nil, s.fail(ctx, "get_one", err)
	}

	row, err := s.repository.GetRecord(ctx, def.Name, id)
	if err != nil {
		return nil, s.fail(ctx, "get_one", &RecordError{Table: def.Name, ID: id, Op: "get", Err: storageErr("get record", err)})
	}
	records, err := s.readPipeline(ctx, def, []Record{row}, code, isDefault)
	if err != nil {
		return nil, s.fail(ctx, "get_one", err)
	}
	return records[0], nil
}

// readPipeline normalizes rows, expands their relations and overlays lang.
func (s *service) readPipeline(ctx context.Context, def *TableDefinition, rows []Record, lang string, isDefault bool) ([]Record, error) {
	normalized := make([]Record, len(rows))
	for i, row := range rows {
		normalized[i] = normalizeRecord(def.Fields, row)
	}
	records, err := s.resolver.ExpandAll(ctx, def.Name, normalized)
	if err != nil {
		return nil, err
	}
	if lang != "" {
		if err := s.overlay.Apply(ctx, def.Name, records, lang, isDefault); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Search matches a case-insensitive substring against one field or every
// textual field. Results are neither expanded nor translated.
func (s *service) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	def, err := s.registry.Table(ctx, req.Table)
	if err != nil {
		return nil, s.fail(ctx, "search", err)
	}
	term := strings.TrimSpace(req.Query)
	if term == "" {
		return nil, ErrEmptyQuery
	}

	var columns []string
	if field := strings.TrimSpace(req.Field); field != "" {
		if _, ok := def.Field(field); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		columns = []string{field}
	} else {
		for _, f := range def.Fields {
			if f.Type.IsTextual() {
				columns = append(columns, f.Name)
			}
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSearchColumns, def.Name)
	}

	rows, err := s.repository.SearchRecords(ctx, def.Name, SearchQuery{
		Columns: columns,
		Term:    term,
		Limit:   ClampLimit(req.Limit),
	})
	if err != nil {
		return nil, s.fail(ctx, "search", storageErr("search records", err))
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = normalizeRecord(def.Fields, row)
	}
	return out, nil
}

// OptionList holds the choices of a foreign-key field. Options stops at
// MaxLimit records; HasMore tells that Total goes past it.
type OptionList struct {
	Options []SelectOption `json:"options"`
	Total   int64          `json:"total"`
	HasMore bool           `json:"has_more"`
}

// ForeignOptions lists the records a foreign-key field may point at, labelled
// by their display value.
func (s *service) ForeignOptions(ctx context.Context, table, field string) (*OptionList, error) {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return nil, s.fail(ctx, "foreign_options", err)
	}
	fd, ok := def.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	fk, ok := fd.ForeignKey()
	if !ok {
		return nil, Validationf("field %s is not a foreign key", field)
	}

	total, err := s.repository.CountRecords(ctx, fk.Table)
	if errors.Is(err, ErrNotFound) {
		return &OptionList{Options: []SelectOption{}}, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "foreign_options", storageErr("count records", err))
	}
	rows, err := s.repository.ListRecords(ctx, fk.Table, RecordQuery{Limit: MaxLimit, OrderBy: "id"})
	if err != nil {
		return nil, s.fail(ctx, "foreign_options", storageErr("list records", err))
	}
	opts := make([]SelectOption, len(rows))
	for i, row := range rows {
		opts[i] = SelectOption{ID: row.ID(), Label: DisplayValue(row, fk.DisplayColumn)}
	}
	return &OptionList{Options: opts, Total: total, HasMore: int64(len(opts)) < total}, nil
}

func (s *service) CreateRecord(ctx context.Context, table string, values map[string]any) (Record, error) {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return nil, s.fail(ctx, "create_record", err)
	}
	row, err := coerceRecord(def, values)
	if err != nil {
		return nil, err
	}

	var created Record
	err = s.repository.WithTx(ctx, func(tx Repository) error {
		id, err := tx.InsertRecord(ctx, def.Name, row)
		if err != nil {
			return storageErr("insert record", err)
		}
		created, err = tx.GetRecord(ctx, def.Name, id)
		return storageErr("get record", err)
	})
	if err != nil {
		return nil, s.fail(ctx, "create_record", &TableError{Table: def.Name, Op: "create_record", Err: err})
	}

	created = normalizeRecord(def.Fields, created)
	s.logger.InfoContext(ctx, "Record created", "table", def.Name, "id", created.ID())
	s.notify(ctx, "record_created", s.eventSink.RecordCreated(ctx, def.Name, created))
	return created, nil
}

func (s *service) UpdateRecord(ctx context.Context, table string, id int64, values map[string]any) (Record, error) {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return nil, s.fail(ctx, "update_record", err)
	}
	row, err := coerceRecord(def, values)
	if err != nil {
		return nil, err
	}

	var updated Record
	err = s.repository.WithTx(ctx, func(tx Repository) error {
		if len(row) > 0 {
			if err := tx.UpdateRecord(ctx, def.Name, id, row); err != nil {
				return storageErr("update record", err)
			}
		}
		var err error
		updated, err = tx.GetRecord(ctx, def.Name, id)
		return storageErr("get record", err)
	})
	if err != nil {
		return nil, s.fail(ctx, "update_record", &RecordError{Table: def.Name, ID: id, Op: "update", Err: err})
	}

	updated = normalizeRecord(def.Fields, updated)
	s.logger.InfoContext(ctx, "Record updated", "table", def.Name, "id", id)
	s.notify(ctx, "record_updated", s.eventSink.RecordUpdated(ctx, def.Name, updated))
	return updated, nil
}

// DeleteRecord hard-deletes a record together with its translations.
func (s *service) DeleteRecord(ctx context.Context, table string, id int64) error {
	def, err := s.registry.Table(ctx, table)
	if err != nil {
		return s.fail(ctx, "delete_record", err)
	}
	err = s.repository.WithTx(ctx, func(tx Repository) error {
		if err := tx.DeleteRecord(ctx, def.Name, id); err != nil {
			return storageErr("delete record", err)
		}
		return storageErr("delete translations", tx.DeleteTranslations(ctx, TranslationFilter{Table: def.Name, RecordID: id}))
	})
	if err != nil {
		return s.fail(ctx, "delete_record", &RecordError{Table: def.Name, ID: id, Op: "delete", Err: err})
	}

	s.logger.InfoContext(ctx, "Record deleted", "table", def.Name, "id", id)
	s.notify(ctx, "record_deleted", s.eventSink.RecordDeleted(ctx, def.Name, id))
	return nil
}

// coerceRecord checks every key against the table and converts values to
// their stored form.
func coerceRecord(def *TableDefinition, values map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(values))
	for name, raw := range values {
		if name == "id" {
			continue
		}
		f, ok := def.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		v, err := CoerceValue(f, raw)
		if err != nil {
			return nil, err
		}
		row[name] = v
	}
	return row, nil
}
