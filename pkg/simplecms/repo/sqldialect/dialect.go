// Package sqldialect builds the SQL shared by the relational repositories.
// Identifiers are always quoted and values always bound, so table and column
// names only need to be known to the schema registry, never trusted.
package sqldialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Dialect defines the database-specific parts of the generated SQL.
// Implementations exist for PostgreSQL and SQLite.
type Dialect interface {
	// Name returns the dialect name (postgres, sqlite).
	Name() string

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// Placeholder returns the bind parameter for a 1-based index.
	Placeholder(index int) string

	// ColumnType maps a storage type to a column type.
	ColumnType(t simplecms.StorageType) string

	// IdentityColumn returns the definition of the auto-assigned id column.
	IdentityColumn() string

	// TimestampType is the column type of system timestamps.
	TimestampType() string

	// BooleanType is the column type of system flags.
	BooleanType() string
}

type postgres struct{}

// Postgres returns the PostgreSQL dialect.
func Postgres() Dialect { return postgres{} }

func (postgres) Name() string                 { return "postgres" }
func (postgres) QuoteIdent(name string) string { return quoteIdent(name) }
func (postgres) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (postgres) IdentityColumn() string        { return "id BIGSERIAL PRIMARY KEY" }
func (postgres) TimestampType() string         { return "TIMESTAMPTZ" }
func (postgres) BooleanType() string           { return "BOOLEAN" }

func (postgres) ColumnType(t simplecms.StorageType) string {
	switch t {
	case simplecms.StorageInteger:
		return "BIGINT"
	case simplecms.StorageReal:
		return "DOUBLE PRECISION"
	case simplecms.StorageDate:
		return "DATE"
	case simplecms.StorageDateTime:
		return "TIMESTAMPTZ"
	case simplecms.StorageBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

type sqlite struct{}

// SQLite returns the SQLite dialect.
func SQLite() Dialect { return sqlite{} }

func (sqlite) Name() string                 { return "sqlite" }
func (sqlite) QuoteIdent(name string) string { return quoteIdent(name) }

// SQLite uses ? for all placeholders
func (sqlite) Placeholder(int) string { return "?" }
func (sqlite) IdentityColumn() string { return "id INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqlite) TimestampType() string  { return "TEXT" }

// SQLite has no native BOOLEAN; use INTEGER (0 = false, 1 = true).
func (sqlite) BooleanType() string { return "INTEGER" }

func (sqlite) ColumnType(t simplecms.StorageType) string {
	switch t {
	case simplecms.StorageInteger, simplecms.StorageBoolean:
		return "INTEGER"
	case simplecms.StorageReal:
		return "REAL"
	default:
		// Dates and datetimes are ISO 8601 text.
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTable builds the DDL of a dynamic table.
func CreateTable(d Dialect, table string, columns []simplecms.Column) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, d.IdentityColumn())
	for _, c := range columns {
		defs = append(defs, d.QuoteIdent(c.Name)+" "+d.ColumnType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(defs, ", "))
}

// AddColumn builds the DDL appending one column.
func AddColumn(d Dialect, table string, column simplecms.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		d.QuoteIdent(table), d.QuoteIdent(column.Name), d.ColumnType(column.Type))
}

// Insert builds an INSERT returning the new id. Columns are bound in name
// order.
func Insert(d Dialect, table string, values map[string]any) (string, []any) {
	if len(values) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id", d.QuoteIdent(table)), nil
	}
	names := sortedKeys(values)
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = d.QuoteIdent(name)
		marks[i] = d.Placeholder(i + 1)
		args[i] = values[name]
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		d.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", ")), args
}

// Update builds an UPDATE of one record by id.
func Update(d Dialect, table string, id int64, values map[string]any) (string, []any) {
	names := sortedKeys(values)
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = %s", d.QuoteIdent(name), d.Placeholder(i+1))
		args = append(args, values[name])
	}
	args = append(args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		d.QuoteIdent(table), strings.Join(sets, ", "), d.Placeholder(len(names)+1)), args
}

// SelectByID builds a single-record SELECT.
func SelectByID(d Dialect, table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE id = %s", d.QuoteIdent(table), d.Placeholder(1))
}

// DeleteByID builds a single-record DELETE.
func DeleteByID(d Dialect, table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s", d.QuoteIdent(table), d.Placeholder(1))
}

// Count builds a row count.
func Count(d Dialect, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.QuoteIdent(table))
}

// List builds a sorted page. Ties are broken by id in the same direction.
func List(d Dialect, table string, q simplecms.RecordQuery) (string, []any) {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	order := fmt.Sprintf("%s %s", d.QuoteIdent(q.OrderBy), dir)
	if q.OrderBy != "id" {
		order += ", id " + dir
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %s OFFSET %s",
		d.QuoteIdent(table), order, d.Placeholder(1), d.Placeholder(2)), []any{q.Limit, q.Offset}
}

// Search builds a case-insensitive substring match over q.Columns.
func Search(d Dialect, table string, q simplecms.SearchQuery) (string, []any) {
	pattern := "%" + EscapeLike(strings.ToLower(q.Term)) + "%"
	conds := make([]string, len(q.Columns))
	args := make([]any, 0, len(q.Columns)+1)
	for i, col := range q.Columns {
		conds[i] = fmt.Sprintf(`LOWER(CAST(%s AS TEXT)) LIKE %s ESCAPE '\'`, d.QuoteIdent(col), d.Placeholder(i+1))
		args = append(args, pattern)
	}
	args = append(args, q.Limit)
	return fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY id ASC LIMIT %s",
		d.QuoteIdent(table), strings.Join(conds, " OR "), d.Placeholder(len(q.Columns)+1)), args
}

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortedKeys(values map[string]any) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
