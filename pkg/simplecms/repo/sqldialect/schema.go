package sqldialect

import (
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// SystemSchema returns the idempotent DDL of the system tables.
func SystemSchema(d Dialect) []string {
	ts := d.TimestampType()
	flag := d.BooleanType()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	table_name TEXT NOT NULL,
	field_name TEXT NOT NULL,
	field_type TEXT NOT NULL,
	is_media %[2]s NOT NULL DEFAULT FALSE,
	media_arity TEXT NOT NULL DEFAULT '',
	is_foreign_key %[2]s NOT NULL DEFAULT FALSE,
	foreign_table TEXT NOT NULL DEFAULT '',
	foreign_display_column TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	created_at %[3]s NOT NULL,
	PRIMARY KEY (table_name, field_name)
)`, d.QuoteIdent(simplecms.FieldsTable), flag, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	native_name TEXT NOT NULL DEFAULT '',
	is_default %[2]s NOT NULL DEFAULT FALSE,
	is_active %[2]s NOT NULL DEFAULT FALSE,
	created_at %[3]s NOT NULL
)`, d.QuoteIdent(simplecms.LanguagesTable), flag, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	table_name TEXT NOT NULL,
	record_id BIGINT NOT NULL,
	field_name TEXT NOT NULL,
	language_code TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at %[2]s NOT NULL,
	PRIMARY KEY (table_name, record_id, field_name, language_code)
)`, d.QuoteIdent(simplecms.TranslationsTable), ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%[2]s,
	stored_name TEXT NOT NULL,
	original_name TEXT NOT NULL,
	path TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	uploaded_at %[3]s NOT NULL
)`, d.QuoteIdent(simplecms.MediaTable), d.IdentityColumn(), ts),
	}
}

// Rebind rewrites a query written with ? markers for d.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, d.Placeholder(n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
