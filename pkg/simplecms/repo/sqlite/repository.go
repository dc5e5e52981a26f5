package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/sqldialect"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements simplecms.Repository using SQLite
type Repository struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

var dialect = sqldialect.SQLite()

// timeLayout is how system timestamps are stored.
const timeLayout = time.RFC3339Nano

// Open opens (or creates) the database at dsn and migrates the system
// tables. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive for the lifetime of db.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the system tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range sqldialect.SystemSchema(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate system tables: %w", err)
		}
	}
	return nil
}

// New creates a new SQLite repository
func New(db *sql.DB) simplecms.Repository {
	return &Repository{db: db, q: db}
}

// WithTx runs fn in one transaction. SQLite DDL is transactional.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplecms.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return handleSQLiteError("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&Repository{db: r.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return handleSQLiteError("commit", err)
	}
	return nil
}

// handleSQLiteError maps driver messages to service errors.
func handleSQLiteError(operation string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: cms_fields"):
		return fmt.Errorf("%w: %s", simplecms.ErrDuplicateField, msg)
	case strings.Contains(msg, "UNIQUE constraint failed: cms_languages"):
		return fmt.Errorf("%w: %s", simplecms.ErrDuplicateLanguage, msg)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: duplicate entry", simplecms.ErrConflict)
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s", simplecms.ErrDuplicateTable, msg)
	case strings.Contains(msg, "duplicate column name"):
		return fmt.Errorf("%w: %s", simplecms.ErrDuplicateField, msg)
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%w: %s", simplecms.ErrTableNotFound, msg)
	case strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s", simplecms.ErrUnknownField, msg)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Schema operations

func (r *Repository) CreateTable(ctx context.Context, table string, columns []simplecms.Column) error {
	if _, err := r.q.ExecContext(ctx, sqldialect.CreateTable(dialect, table, columns)); err != nil {
		return handleSQLiteError("create table", err)
	}
	return nil
}

func (r *Repository) AddColumn(ctx context.Context, table string, column simplecms.Column) error {
	if _, err := r.q.ExecContext(ctx, sqldialect.AddColumn(dialect, table, column)); err != nil {
		return handleSQLiteError("add column", err)
	}
	return nil
}

func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, handleSQLiteError("table columns", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, handleSQLiteError("table columns", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError("table columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %q", simplecms.ErrTableNotFound, table)
	}
	return cols, nil
}

func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, sqldialect.ListTablesQuery)
	if err != nil {
		return nil, handleSQLiteError("list tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, handleSQLiteError("list tables", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (r *Repository) InsertFields(ctx context.Context, fields []simplecms.FieldDefinition) error {
	for _, f := range fields {
		isMedia, arity, isFK, foreignTable, displayColumn := simplecms.RoleColumns(f.Role)
		_, err := r.q.ExecContext(ctx, sqldialect.InsertFieldQuery, bindAll([]any{
			f.Table, f.Name, string(f.Type), isMedia, string(arity),
			isFK, foreignTable, displayColumn, f.Position, f.CreatedAt})...)
		if err != nil {
			return handleSQLiteError("insert field", err)
		}
	}
	return nil
}

func (r *Repository) GetFields(ctx context.Context, table string) ([]simplecms.FieldDefinition, error) {
	rows, err := r.q.QueryContext(ctx, sqldialect.GetFieldsQuery, table)
	if err != nil {
		return nil, handleSQLiteError("get fields", err)
	}
	defer rows.Close()

	fields := []simplecms.FieldDefinition{}
	for rows.Next() {
		var (
			f                           simplecms.FieldDefinition
			fieldType, arity, createdAt string
			isMedia, isFK               bool
			foreignTable, displayColumn string
		)
		if err := rows.Scan(&f.Table, &f.Name, &fieldType, &isMedia, &arity,
			&isFK, &foreignTable, &displayColumn, &f.Position, &createdAt); err != nil {
			return nil, handleSQLiteError("scan field", err)
		}
		f.Type = simplecms.FieldType(fieldType)
		f.Role = simplecms.RoleFromColumns(isMedia, simplecms.MediaArity(arity), isFK, foreignTable, displayColumn)
		f.CreatedAt = parseTime(createdAt)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError("get fields", err)
	}
	return fields, nil
}

// Record operations

func (r *Repository) InsertRecord(ctx context.Context, table string, values map[string]any) (int64, error) {
	query, args := sqldialect.Insert(dialect, table, values)
	var id int64
	if err := r.q.QueryRowContext(ctx, query, bindAll(args)...).Scan(&id); err != nil {
		return 0, handleSQLiteError("insert record", err)
	}
	return id, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, table string, id int64, values map[string]any) error {
	query, args := sqldialect.Update(dialect, table, id, values)
	res, err := r.q.ExecContext(ctx, query, bindAll(args)...)
	if err != nil {
		return handleSQLiteError("update record", err)
	}
	return requireRow(res, simplecms.ErrRecordNotFound)
}

func (r *Repository) DeleteRecord(ctx context.Context, table string, id int64) error {
	res, err := r.q.ExecContext(ctx, sqldialect.DeleteByID(dialect, table), id)
	if err != nil {
		return handleSQLiteError("delete record", err)
	}
	return requireRow(res, simplecms.ErrRecordNotFound)
}

func (r *Repository) GetRecord(ctx context.Context, table string, id int64) (simplecms.Record, error) {
	records, err := r.queryRecords(ctx, "get record", sqldialect.SelectByID(dialect, table), id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, simplecms.ErrRecordNotFound
	}
	return records[0], nil
}

func (r *Repository) ListRecords(ctx context.Context, table string, q simplecms.RecordQuery) ([]simplecms.Record, error) {
	query, args := sqldialect.List(dialect, table, q)
	return r.queryRecords(ctx, "list records", query, args...)
}

func (r *Repository) CountRecords(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, sqldialect.Count(dialect, table)).Scan(&n); err != nil {
		return 0, handleSQLiteError("count records", err)
	}
	return n, nil
}

func (r *Repository) SearchRecords(ctx context.Context, table string, q simplecms.SearchQuery) ([]simplecms.Record, error) {
	query, args := sqldialect.Search(dialect, table, q)
	return r.queryRecords(ctx, "search records", query, args...)
}

// queryRecords reads rows of unknown shape into records keyed by column name.
func (r *Repository) queryRecords(ctx context.Context, op, query string, args ...any) ([]simplecms.Record, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, handleSQLiteError(op, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, handleSQLiteError(op, err)
	}
	records := []simplecms.Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, handleSQLiteError(op, err)
		}
		rec := make(simplecms.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError(op, err)
	}
	return records, nil
}

// bindAll converts values SQLite has no native type for.
func bindAll(args []any) []any {
	for i, a := range args {
		switch v := a.(type) {
		case bool:
			if v {
				args[i] = int64(1)
			} else {
				args[i] = int64(0)
			}
		case time.Time:
			args[i] = formatTime(v)
		}
	}
	return args
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return handleSQLiteError("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Media operations

func (r *Repository) CreateMedia(ctx context.Context, asset *simplecms.MediaAsset) error {
	tags := asset.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	err = r.q.QueryRowContext(ctx, sqldialect.InsertMediaQuery,
		asset.StoredName, asset.OriginalName, asset.Path, asset.MimeType,
		asset.SizeBytes, string(encoded), formatTime(asset.UploadedAt),
	).Scan(&asset.ID)
	if err != nil {
		return handleSQLiteError("create media", err)
	}
	return nil
}

func (r *Repository) GetMedia(ctx context.Context, id int64) (*simplecms.MediaAsset, error) {
	assets, err := r.queryMedia(ctx, "get media", sqldialect.GetMediaQuery, id)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, simplecms.ErrMediaNotFound
	}
	return assets[0], nil
}

func (r *Repository) ListMedia(ctx context.Context, q simplecms.MediaQuery) ([]*simplecms.MediaAsset, int64, error) {
	pattern := sqldialect.TagPattern(q.Tag)

	var total int64
	if err := r.q.QueryRowContext(ctx, sqldialect.CountMediaQuery, q.Tag, pattern).Scan(&total); err != nil {
		return nil, 0, handleSQLiteError("count media", err)
	}
	assets, err := r.queryMedia(ctx, "list media", sqldialect.ListMediaQuery, q.Tag, pattern, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	return assets, total, nil
}

func (r *Repository) DeleteMedia(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, sqldialect.DeleteMediaQuery, id)
	if err != nil {
		return handleSQLiteError("delete media", err)
	}
	return requireRow(res, simplecms.ErrMediaNotFound)
}

func (r *Repository) queryMedia(ctx context.Context, op, query string, args ...any) ([]*simplecms.MediaAsset, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, handleSQLiteError(op, err)
	}
	defer rows.Close()

	var out []*simplecms.MediaAsset
	for rows.Next() {
		var (
			m                simplecms.MediaAsset
			tags, uploadedAt string
		)
		if err := rows.Scan(&m.ID, &m.StoredName, &m.OriginalName, &m.Path, &m.MimeType, &m.SizeBytes, &tags, &uploadedAt); err != nil {
			return nil, handleSQLiteError(op, err)
		}
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil || m.Tags == nil {
			m.Tags = []string{}
		}
		m.UploadedAt = parseTime(uploadedAt)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError(op, err)
	}
	return out, nil
}

// Language operations

func (r *Repository) CreateLanguage(ctx context.Context, lang *simplecms.Language) error {
	_, err := r.q.ExecContext(ctx, sqldialect.InsertLanguageQuery, bindAll([]any{
		lang.Code, lang.Name, lang.NativeName, lang.IsDefault, lang.IsActive, lang.CreatedAt})...)
	if err != nil {
		return handleSQLiteError("create language", err)
	}
	return nil
}

func (r *Repository) GetLanguage(ctx context.Context, code string) (*simplecms.Language, error) {
	var (
		l         simplecms.Language
		createdAt string
	)
	err := r.q.QueryRowContext(ctx, sqldialect.GetLanguageQuery, code).
		Scan(&l.Code, &l.Name, &l.NativeName, &l.IsDefault, &l.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simplecms.ErrLanguageNotFound
	}
	if err != nil {
		return nil, handleSQLiteError("get language", err)
	}
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

func (r *Repository) ListLanguages(ctx context.Context) ([]*simplecms.Language, error) {
	rows, err := r.q.QueryContext(ctx, sqldialect.ListLanguagesQuery)
	if err != nil {
		return nil, handleSQLiteError("list languages", err)
	}
	defer rows.Close()

	langs := []*simplecms.Language{}
	for rows.Next() {
		var (
			l         simplecms.Language
			createdAt string
		)
		if err := rows.Scan(&l.Code, &l.Name, &l.NativeName, &l.IsDefault, &l.IsActive, &createdAt); err != nil {
			return nil, handleSQLiteError("list languages", err)
		}
		l.CreatedAt = parseTime(createdAt)
		langs = append(langs, &l)
	}
	return langs, rows.Err()
}

func (r *Repository) UpdateLanguage(ctx context.Context, lang *simplecms.Language) error {
	res, err := r.q.ExecContext(ctx, sqldialect.UpdateLanguageQuery, bindAll([]any{
		lang.Name, lang.NativeName, lang.IsDefault, lang.IsActive, lang.Code})...)
	if err != nil {
		return handleSQLiteError("update language", err)
	}
	return requireRow(res, simplecms.ErrLanguageNotFound)
}

func (r *Repository) DeleteLanguage(ctx context.Context, code string) error {
	res, err := r.q.ExecContext(ctx, sqldialect.DeleteLanguageQuery, code)
	if err != nil {
		return handleSQLiteError("delete language", err)
	}
	return requireRow(res, simplecms.ErrLanguageNotFound)
}

// Translation operations

func (r *Repository) UpsertTranslation(ctx context.Context, t *simplecms.Translation) error {
	_, err := r.q.ExecContext(ctx, sqldialect.UpsertTranslationQuery,
		t.Table, t.RecordID, t.Field, t.Language, t.Value, formatTime(t.UpdatedAt))
	if err != nil {
		return handleSQLiteError("upsert translation", err)
	}
	return nil
}

func (r *Repository) GetTranslation(ctx context.Context, table string, recordID int64, field, lang string) (*simplecms.Translation, error) {
	rows, err := r.queryTranslations(ctx, "get translation", sqldialect.GetTranslationQuery, table, recordID, field, lang)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("translation %w", simplecms.ErrNotFound)
	}
	return rows[0], nil
}

func (r *Repository) ListTranslations(ctx context.Context, table string, recordID int64, lang string) ([]*simplecms.Translation, error) {
	return r.queryTranslations(ctx, "list translations", sqldialect.ListTranslationsQuery, table, recordID, lang, lang)
}

func (r *Repository) DeleteTranslations(ctx context.Context, f simplecms.TranslationFilter) error {
	_, err := r.q.ExecContext(ctx, sqldialect.DeleteTranslationsQuery,
		f.Table, f.Table, f.RecordID, f.RecordID, f.Language, f.Language)
	if err != nil {
		return handleSQLiteError("delete translations", err)
	}
	return nil
}

func (r *Repository) queryTranslations(ctx context.Context, op, query string, args ...any) ([]*simplecms.Translation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, handleSQLiteError(op, err)
	}
	defer rows.Close()

	var out []*simplecms.Translation
	for rows.Next() {
		var (
			t         simplecms.Translation
			updatedAt string
		)
		if err := rows.Scan(&t.Table, &t.RecordID, &t.Field, &t.Language, &t.Value, &updatedAt); err != nil {
			return nil, handleSQLiteError(op, err)
		}
		t.UpdatedAt = parseTime(updatedAt)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError(op, err)
	}
	return out, nil
}
