package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Repository implements simplecms.Repository using in-memory storage
type Repository struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

type state struct {
	tables       map[string]*table
	fields       map[string][]simplecms.FieldDefinition
	media        map[int64]*simplecms.MediaAsset
	nextMediaID  int64
	languages    map[string]*simplecms.Language
	translations map[translationKey]*simplecms.Translation
}

type table struct {
	columns []simplecms.Column
	rows    map[int64]simplecms.Record
	nextID  int64
}

type translationKey struct {
	table    string
	recordID int64
	field    string
	lang     string
}

// New creates a new in-memory repository
func New() simplecms.Repository {
	return &Repository{
		mu: &sync.RWMutex{},
		st: &state{
			tables:       make(map[string]*table),
			fields:       make(map[string][]simplecms.FieldDefinition),
			media:        make(map[int64]*simplecms.MediaAsset),
			languages:    make(map[string]*simplecms.Language),
			translations: make(map[translationKey]*simplecms.Translation),
		},
	}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. Writers are serialized for the duration.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplecms.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &Repository{mu: r.mu, st: r.st.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	r.st = tx.st
	return nil
}

func (r *Repository) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

func (r *Repository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (s *state) clone() *state {
	out := &state{
		tables:       make(map[string]*table, len(s.tables)),
		fields:       make(map[string][]simplecms.FieldDefinition, len(s.fields)),
		media:        make(map[int64]*simplecms.MediaAsset, len(s.media)),
		nextMediaID:  s.nextMediaID,
		languages:    make(map[string]*simplecms.Language, len(s.languages)),
		translations: make(map[translationKey]*simplecms.Translation, len(s.translations)),
	}
	for name, t := range s.tables {
		rows := make(map[int64]simplecms.Record, len(t.rows))
		for id, row := range t.rows {
			rows[id] = row.Clone()
		}
		out.tables[name] = &table{columns: slices.Clone(t.columns), rows: rows, nextID: t.nextID}
	}
	for name, fields := range s.fields {
		out.fields[name] = slices.Clone(fields)
	}
	for id, m := range s.media {
		out.media[id] = copyMedia(m)
	}
	for code, l := range s.languages {
		lc := *l
		out.languages[code] = &lc
	}
	for k, t := range s.translations {
		tc := *t
		out.translations[k] = &tc
	}
	return out
}

// Schema operations

func (r *Repository) CreateTable(ctx context.Context, name string, columns []simplecms.Column) error {
	defer r.lock()()

	if _, exists := r.st.tables[name]; exists {
		return fmt.Errorf("%w: %q", simplecms.ErrDuplicateTable, name)
	}
	r.st.tables[name] = &table{
		columns: slices.Clone(columns),
		rows:    make(map[int64]simplecms.Record),
	}
	return nil
}

func (r *Repository) AddColumn(ctx context.Context, name string, column simplecms.Column) error {
	defer r.lock()()

	t, exists := r.st.tables[name]
	if !exists {
		return fmt.Errorf("%w: %q", simplecms.ErrTableNotFound, name)
	}
	if t.hasColumn(column.Name) {
		return fmt.Errorf("%w: %s.%s", simplecms.ErrDuplicateField, name, column.Name)
	}
	t.columns = append(t.columns, column)
	for _, row := range t.rows {
		row[column.Name] = nil
	}
	return nil
}

func (r *Repository) TableColumns(ctx context.Context, name string) ([]string, error) {
	defer r.rlock()()

	t, exists := r.st.tables[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", simplecms.ErrTableNotFound, name)
	}
	cols := []string{"id"}
	for _, c := range t.columns {
		cols = append(cols, c.Name)
	}
	return cols, nil
}

func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	defer r.rlock()()

	names := make([]string, 0, len(r.st.fields))
	for name, fields := range r.st.fields {
		if len(fields) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repository) InsertFields(ctx context.Context, fields []simplecms.FieldDefinition) error {
	defer r.lock()()

	for i, f := range fields {
		dup := slices.ContainsFunc(r.st.fields[f.Table], func(e simplecms.FieldDefinition) bool { return e.Name == f.Name }) ||
			slices.ContainsFunc(fields[:i], func(e simplecms.FieldDefinition) bool { return e.Table == f.Table && e.Name == f.Name })
		if dup {
			return fmt.Errorf("%w: %s.%s", simplecms.ErrDuplicateField, f.Table, f.Name)
		}
	}
	for _, f := range fields {
		r.st.fields[f.Table] = append(r.st.fields[f.Table], f)
	}
	return nil
}

func (r *Repository) GetFields(ctx context.Context, name string) ([]simplecms.FieldDefinition, error) {
	defer r.rlock()()

	fields := slices.Clone(r.st.fields[name])
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })
	if fields == nil {
		fields = []simplecms.FieldDefinition{}
	}
	return fields, nil
}

// Record operations

func (r *Repository) InsertRecord(ctx context.Context, name string, values map[string]any) (int64, error) {
	defer r.lock()()

	t, err := r.table(name)
	if err != nil {
		return 0, err
	}
	row := make(simplecms.Record, len(t.columns)+1)
	for _, c := range t.columns {
		row[c.Name] = nil
	}
	for k, v := range values {
		if !t.hasColumn(k) {
			return 0, fmt.Errorf("table %s has no column %s", name, k)
		}
		row[k] = v
	}
	t.nextID++
	row["id"] = t.nextID
	t.rows[t.nextID] = row
	return t.nextID, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, name string, id int64, values map[string]any) error {
	defer r.lock()()

	t, err := r.table(name)
	if err != nil {
		return err
	}
	row, exists := t.rows[id]
	if !exists {
		return simplecms.ErrRecordNotFound
	}
	for k := range values {
		if !t.hasColumn(k) {
			return fmt.Errorf("table %s has no column %s", name, k)
		}
	}
	for k, v := range values {
		row[k] = v
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, name string, id int64) error {
	defer r.lock()()

	t, err := r.table(name)
	if err != nil {
		return err
	}
	if _, exists := t.rows[id]; !exists {
		return simplecms.ErrRecordNotFound
	}
	delete(t.rows, id)
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, name string, id int64) (simplecms.Record, error) {
	defer r.rlock()()

	t, err := r.table(name)
	if err != nil {
		return nil, err
	}
	row, exists := t.rows[id]
	if !exists {
		return nil, simplecms.ErrRecordNotFound
	}
	return row.Clone(), nil
}

func (r *Repository) ListRecords(ctx context.Context, name string, q simplecms.RecordQuery) ([]simplecms.Record, error) {
	defer r.rlock()()

	t, err := r.table(name)
	if err != nil {
		return nil, err
	}
	if q.OrderBy != "id" && !t.hasColumn(q.OrderBy) {
		return nil, fmt.Errorf("table %s has no column %s", name, q.OrderBy)
	}

	// Ties break on id in the same direction, as the SQL stores do.
	rows := t.sortedRows()
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(rows[i][q.OrderBy], rows[j][q.OrderBy])
		if c == 0 {
			c = cmpOrdered(rows[i].ID(), rows[j].ID())
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
	return page(rows, q.Offset, q.Limit), nil
}

func (r *Repository) CountRecords(ctx context.Context, name string) (int64, error) {
	defer r.rlock()()

	t, err := r.table(name)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (r *Repository) SearchRecords(ctx context.Context, name string, q simplecms.SearchQuery) ([]simplecms.Record, error) {
	defer r.rlock()()

	t, err := r.table(name)
	if err != nil {
		return nil, err
	}
	term := strings.ToLower(q.Term)
	var out []simplecms.Record
	for _, row := range t.sortedRows() {
		for _, col := range q.Columns {
			v := row[col]
			if v != nil && strings.Contains(strings.ToLower(fmt.Sprint(v)), term) {
				out = append(out, row)
				break
			}
		}
	}
	return page(out, 0, q.Limit), nil
}

func (r *Repository) table(name string) (*table, error) {
	t, exists := r.st.tables[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", simplecms.ErrTableNotFound, name)
	}
	return t, nil
}

func (t *table) hasColumn(name string) bool {
	return slices.ContainsFunc(t.columns, func(c simplecms.Column) bool { return c.Name == name })
}

// sortedRows returns copies of all rows in id order.
func (t *table) sortedRows() []simplecms.Record {
	rows := make([]simplecms.Record, 0, len(t.rows))
	for _, row := range t.rows {
		rows = append(rows, row.Clone())
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID() < rows[j].ID() })
	return rows
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// compareValues orders stored values; NULL sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmpOrdered(boolInt(x), boolInt(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int64 | float64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Media operations

func (r *Repository) CreateMedia(ctx context.Context, asset *simplecms.MediaAsset) error {
	defer r.lock()()

	r.st.nextMediaID++
	asset.ID = r.st.nextMediaID
	r.st.media[asset.ID] = copyMedia(asset)
	return nil
}

func (r *Repository) GetMedia(ctx context.Context, id int64) (*simplecms.MediaAsset, error) {
	defer r.rlock()()

	m, exists := r.st.media[id]
	if !exists {
		return nil, simplecms.ErrMediaNotFound
	}
	return copyMedia(m), nil
}

func (r *Repository) ListMedia(ctx context.Context, q simplecms.MediaQuery) ([]*simplecms.MediaAsset, int64, error) {
	defer r.rlock()()

	var all []*simplecms.MediaAsset
	for _, m := range r.st.media {
		if q.Tag != "" && !slices.Contains(m.Tags, q.Tag) {
			continue
		}
		all = append(all, copyMedia(m))
	}
	// Newest first
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, q.Offset, q.Limit), int64(len(all)), nil
}

func (r *Repository) DeleteMedia(ctx context.Context, id int64) error {
	defer r.lock()()

	if _, exists := r.st.media[id]; !exists {
		return simplecms.ErrMediaNotFound
	}
	delete(r.st.media, id)
	return nil
}

func copyMedia(m *simplecms.MediaAsset) *simplecms.MediaAsset {
	mc := *m
	mc.Tags = slices.Clone(m.Tags)
	if mc.Tags == nil {
		mc.Tags = []string{}
	}
	return &mc
}

// Language operations

func (r *Repository) CreateLanguage(ctx context.Context, lang *simplecms.Language) error {
	defer r.lock()()

	if _, exists := r.st.languages[lang.Code]; exists {
		return fmt.Errorf("%w: %q", simplecms.ErrDuplicateLanguage, lang.Code)
	}
	lc := *lang
	r.st.languages[lang.Code] = &lc
	return nil
}

func (r *Repository) GetLanguage(ctx context.Context, code string) (*simplecms.Language, error) {
	defer r.rlock()()

	l, exists := r.st.languages[code]
	if !exists {
		return nil, simplecms.ErrLanguageNotFound
	}
	lc := *l
	return &lc, nil
}

func (r *Repository) ListLanguages(ctx context.Context) ([]*simplecms.Language, error) {
	defer r.rlock()()

	out := make([]*simplecms.Language, 0, len(r.st.languages))
	for _, l := range r.st.languages {
		lc := *l
		out = append(out, &lc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (r *Repository) UpdateLanguage(ctx context.Context, lang *simplecms.Language) error {
	defer r.lock()()

	if _, exists := r.st.languages[lang.Code]; !exists {
		return simplecms.ErrLanguageNotFound
	}
	lc := *lang
	r.st.languages[lang.Code] = &lc
	return nil
}

func (r *Repository) DeleteLanguage(ctx context.Context, code string) error {
	defer r.lock()()

	if _, exists := r.st.languages[code]; !exists {
		return simplecms.ErrLanguageNotFound
	}
	delete(r.st.languages, code)
	return nil
}

// Translation operations

func (r *Repository) UpsertTranslation(ctx context.Context, t *simplecms.Translation) error {
	defer r.lock()()

	tc := *t
	r.st.translations[translationKey{t.Table, t.RecordID, t.Field, t.Language}] = &tc
	return nil
}

func (r *Repository) GetTranslation(ctx context.Context, tableName string, recordID int64, field, lang string) (*simplecms.Translation, error) {
	defer r.rlock()()

	t, exists := r.st.translations[translationKey{tableName, recordID, field, lang}]
	if !exists {
		return nil, fmt.Errorf("translation %w", simplecms.ErrNotFound)
	}
	tc := *t
	return &tc, nil
}

func (r *Repository) ListTranslations(ctx context.Context, tableName string, recordID int64, lang string) ([]*simplecms.Translation, error) {
	defer r.rlock()()

	var out []*simplecms.Translation
	for k, t := range r.st.translations {
		if k.table != tableName || k.recordID != recordID || (lang != "" && k.lang != lang) {
			continue
		}
		tc := *t
		out = append(out, &tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].Field < out[j].Field
	})
	return out, nil
}

func (r *Repository) DeleteTranslations(ctx context.Context, f simplecms.TranslationFilter) error {
	defer r.lock()()

	for k := range r.st.translations {
		if f.Table != "" && k.table != f.Table {
			continue
		}
		if f.RecordID != 0 && k.recordID != f.RecordID {
			continue
		}
		if f.Language != "" && k.lang != f.Language {
			continue
		}
		delete(r.st.translations, k)
	}
	return nil
}
