package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/sqldialect"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements simplecms.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	inTx bool
}

var dialect = sqldialect.Postgres()

// New creates a new PostgreSQL repository
func New(db DBTX) simplecms.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simplecms.Repository {
	return &Repository{db: pool}
}

// Migrate creates the system tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range sqldialect.SystemSchema(dialect) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate system tables: %w", err)
		}
	}
	return nil
}

// WithTx runs fn in one database transaction. PostgreSQL DDL is
// transactional, so a failed call leaves neither tables nor metadata behind.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplecms.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("commit", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "cms_fields") {
				return fmt.Errorf("%w: %s", simplecms.ErrDuplicateField, pgErr.Detail)
			}
			if strings.Contains(pgErr.ConstraintName, "cms_languages") {
				return fmt.Errorf("%w: %s", simplecms.ErrDuplicateLanguage, pgErr.Detail)
			}
			return fmt.Errorf("%w: duplicate entry", simplecms.ErrConflict)
		case "42P07": // duplicate_table
			return fmt.Errorf("%w: %s", simplecms.ErrDuplicateTable, pgErr.Message)
		case "42701": // duplicate_column
			return fmt.Errorf("%w: %s", simplecms.ErrDuplicateField, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %s", simplecms.ErrTableNotFound, pgErr.Message)
		case "42703": // undefined_column
			return fmt.Errorf("%w: %s", simplecms.ErrUnknownField, pgErr.Message)
		case "22P02", "22007", "22008": // invalid text representation, datetime format/overflow
			return simplecms.Validationf("%s", pgErr.Message)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Schema operations

func (r *Repository) CreateTable(ctx context.Context, table string, columns []simplecms.Column) error {
	if _, err := r.db.Exec(ctx, sqldialect.CreateTable(dialect, table, columns)); err != nil {
		return r.handlePostgresError("create table", err)
	}
	return nil
}

func (r *Repository) AddColumn(ctx context.Context, table string, column simplecms.Column) error {
	if _, err := r.db.Exec(ctx, sqldialect.AddColumn(dialect, table, column)); err != nil {
		return r.handlePostgresError("add column", err)
	}
	return nil
}

func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, r.handlePostgresError("table columns", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, r.handlePostgresError("table columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %q", simplecms.ErrTableNotFound, table)
	}
	return cols, nil
}

func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, sqldialect.ListTablesQuery)
	if err != nil {
		return nil, r.handlePostgresError("list tables", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, r.handlePostgresError("list tables", err)
	}
	return tables, nil
}

func (r *Repository) InsertFields(ctx context.Context, fields []simplecms.FieldDefinition) error {
	query := sqldialect.Rebind(dialect, sqldialect.InsertFieldQuery)
	for _, f := range fields {
		isMedia, arity, isFK, foreignTable, displayColumn := simplecms.RoleColumns(f.Role)
		_, err := r.db.Exec(ctx, query,
			f.Table, f.Name, string(f.Type), isMedia, string(arity),
			isFK, foreignTable, displayColumn, f.Position, f.CreatedAt)
		if err != nil {
			return r.handlePostgresError("insert field", err)
		}
	}
	return nil
}

func (r *Repository) GetFields(ctx context.Context, table string) ([]simplecms.FieldDefinition, error) {
	rows, err := r.db.Query(ctx, sqldialect.Rebind(dialect, sqldialect.GetFieldsQuery), table)
	if err != nil {
		return nil, r.handlePostgresError("get fields", err)
	}
	defer rows.Close()

	fields := []simplecms.FieldDefinition{}
	for rows.Next() {
		var (
			f                           simplecms.FieldDefinition
			fieldType, arity            string
			isMedia, isFK               bool
			foreignTable, displayColumn string
		)
		if err := rows.Scan(&f.Table, &f.Name, &fieldType, &isMedia, &arity,
			&isFK, &foreignTable, &displayColumn, &f.Position, &f.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan field", err)
		}
		f.Type = simplecms.FieldType(fieldType)
		f.Role = simplecms.RoleFromColumns(isMedia, simplecms.MediaArity(arity), isFK, foreignTable, displayColumn)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("get fields", err)
	}
	return fields, nil
}

// Record operations

func (r *Repository) InsertRecord(ctx context.Context, table string, values map[string]any) (int64, error) {
	query, args := sqldialect.Insert(dialect, table, values)
	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, r.handlePostgresError("insert record", err)
	}
	return id, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, table string, id int64, values map[string]any) error {
	query, args := sqldialect.Update(dialect, table, id, values)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, table string, id int64) error {
	tag, err := r.db.Exec(ctx, sqldialect.DeleteByID(dialect, table), id)
	if err != nil {
		return r.handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrRecordNotFound
	}
	return nil
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
	if err := r.db.QueryRow(ctx, sqldialect.Count(dialect, table)).Scan(&n); err != nil {
		return 0, r.handlePostgresError("count records", err)
	}
	return n, nil
}

func (r *Repository) SearchRecords(ctx context.Context, table string, q simplecms.SearchQuery) ([]simplecms.Record, error) {
	query, args := sqldialect.Search(dialect, table, q)
	return r.queryRecords(ctx, "search records", query, args...)
}

// queryRecords reads rows of unknown shape into records keyed by column name.
func (r *Repository) queryRecords(ctx context.Context, op, query string, args ...any) ([]simplecms.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (simplecms.Record, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		rec := make(simplecms.Record, len(values))
		for i, fd := range row.FieldDescriptions() {
			rec[fd.Name] = values[i]
		}
		return rec, nil
	})
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	return records, nil
}

// Media operations

func (r *Repository) CreateMedia(ctx context.Context, asset *simplecms.MediaAsset) error {
	tags, err := json.Marshal(nonNilTags(asset.Tags))
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, sqldialect.Rebind(dialect, sqldialect.InsertMediaQuery),
		asset.StoredName, asset.OriginalName, asset.Path, asset.MimeType,
		asset.SizeBytes, string(tags), asset.UploadedAt,
	).Scan(&asset.ID)
	if err != nil {
		return r.handlePostgresError("create media", err)
	}
	return nil
}

func (r *Repository) GetMedia(ctx context.Context, id int64) (*simplecms.MediaAsset, error) {
	rows, err := r.db.Query(ctx, sqldialect.Rebind(dialect, sqldialect.GetMediaQuery), id)
	if err != nil {
		return nil, r.handlePostgresError("get media", err)
	}
	assets, err := pgx.CollectRows(rows, scanMedia)
	if err != nil {
		return nil, r.handlePostgresError("get media", err)
	}
	if len(assets) == 0 {
		return nil, simplecms.ErrMediaNotFound
	}
	return assets[0], nil
}

func (r *Repository) ListMedia(ctx context.Context, q simplecms.MediaQuery) ([]*simplecms.MediaAsset, int64, error) {
	pattern := sqldialect.TagPattern(q.Tag)

	var total int64
	err := r.db.QueryRow(ctx, sqldialect.Rebind(dialect, sqldialect.CountMediaQuery), q.Tag, pattern).Scan(&total)
	if err != nil {
		return nil, 0, r.handlePostgresError("count media", err)
	}

	rows, err := r.db.Query(ctx, sqldialect.Rebind(dialect, sqldialect.ListMediaQuery), q.Tag, pattern, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, r.handlePostgresError("list media", err)
	}
	assets, err := pgx.CollectRows(rows, scanMedia)
	if err != nil {
		return nil, 0, r.handlePostgresError("list media", err)
	}
	return assets, total, nil
}

func (r *Repository) DeleteMedia(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.DeleteMediaQuery), id)
	if err != nil {
		return r.handlePostgresError("delete media", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrMediaNotFound
	}
	return nil
}

func scanMedia(row pgx.CollectableRow) (*simplecms.MediaAsset, error) {
	var (
		m    simplecms.MediaAsset
		tags string
	)
	if err := row.Scan(&m.ID, &m.StoredName, &m.OriginalName, &m.Path, &m.MimeType, &m.SizeBytes, &tags, &m.UploadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil || m.Tags == nil {
		m.Tags = []string{}
	}
	return &m, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Language operations

func (r *Repository) CreateLanguage(ctx context.Context, lang *simplecms.Language) error {
	_, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.InsertLanguageQuery),
		lang.Code, lang.Name, lang.NativeName, lang.IsDefault, lang.IsActive, lang.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create language", err)
	}
	return nil
}

func (r *Repository) GetLanguage(ctx context.Context, code string) (*simplecms.Language, error) {
	var l simplecms.Language
	err := r.db.QueryRow(ctx, sqldialect.Rebind(dialect, sqldialect.GetLanguageQuery), code).
		Scan(&l.Code, &l.Name, &l.NativeName, &l.IsDefault, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplecms.ErrLanguageNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get language", err)
	}
	return &l, nil
}

func (r *Repository) ListLanguages(ctx context.Context) ([]*simplecms.Language, error) {
	rows, err := r.db.Query(ctx, sqldialect.ListLanguagesQuery)
	if err != nil {
		return nil, r.handlePostgresError("list languages", err)
	}
	langs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*simplecms.Language, error) {
		var l simplecms.Language
		err := row.Scan(&l.Code, &l.Name, &l.NativeName, &l.IsDefault, &l.IsActive, &l.CreatedAt)
		return &l, err
	})
	if err != nil {
		return nil, r.handlePostgresError("list languages", err)
	}
	return langs, nil
}

func (r *Repository) UpdateLanguage(ctx context.Context, lang *simplecms.Language) error {
	tag, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.UpdateLanguageQuery),
		lang.Name, lang.NativeName, lang.IsDefault, lang.IsActive, lang.Code)
	if err != nil {
		return r.handlePostgresError("update language", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrLanguageNotFound
	}
	return nil
}

func (r *Repository) DeleteLanguage(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.DeleteLanguageQuery), code)
	if err != nil {
		return r.handlePostgresError("delete language", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrLanguageNotFound
	}
	return nil
}

// Translation operations

func (r *Repository) UpsertTranslation(ctx context.Context, t *simplecms.Translation) error {
	_, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.UpsertTranslationQuery),
		t.Table, t.RecordID, t.Field, t.Language, t.Value, t.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("upsert translation", err)
	}
	return nil
}

func (r *Repository) GetTranslation(ctx context.Context, table string, recordID int64, field, lang string) (*simplecms.Translation, error) {
	var t simplecms.Translation
	err := r.db.QueryRow(ctx, sqldialect.Rebind(dialect, sqldialect.GetTranslationQuery), table, recordID, field, lang).
		Scan(&t.Table, &t.RecordID, &t.Field, &t.Language, &t.Value, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("translation %w", simplecms.ErrNotFound)
	}
	if err != nil {
		return nil, r.handlePostgresError("get translation", err)
	}
	return &t, nil
}

func (r *Repository) ListTranslations(ctx context.Context, table string, recordID int64, lang string) ([]*simplecms.Translation, error) {
	rows, err := r.db.Query(ctx, sqldialect.Rebind(dialect, sqldialect.ListTranslationsQuery), table, recordID, lang, lang)
	if err != nil {
		return nil, r.handlePostgresError("list translations", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*simplecms.Translation, error) {
		var t simplecms.Translation
		err := row.Scan(&t.Table, &t.RecordID, &t.Field, &t.Language, &t.Value, &t.UpdatedAt)
		t.UpdatedAt = t.UpdatedAt.UTC()
		return &t, err
	})
	if err != nil {
		return nil, r.handlePostgresError("list translations", err)
	}
	return out, nil
}

func (r *Repository) DeleteTranslations(ctx context.Context, f simplecms.TranslationFilter) error {
	_, err := r.db.Exec(ctx, sqldialect.Rebind(dialect, sqldialect.DeleteTranslationsQuery),
		f.Table, f.Table, f.RecordID, f.RecordID, f.Language, f.Language)
	if err != nil {
		return r.handlePostgresError("delete translations", err)
	}
	return nil
}
