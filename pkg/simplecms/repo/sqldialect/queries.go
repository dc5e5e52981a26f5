package sqldialect

// System table queries, written with ? markers; pass them through Rebind.
const (
	InsertFieldQuery = `INSERT INTO cms_fields (
	table_name, field_name, field_type, is_media, media_arity,
	is_foreign_key, foreign_table, foreign_display_column, position, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	GetFieldsQuery = `SELECT table_name, field_name, field_type, is_media, media_arity,
	is_foreign_key, foreign_table, foreign_display_column, position, created_at
FROM cms_fields WHERE table_name = ? ORDER BY position, field_name`

	ListTablesQuery = `SELECT DISTINCT table_name FROM cms_fields ORDER BY table_name`

	InsertLanguageQuery = `INSERT INTO cms_languages (code, name, native_name, is_default, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

	GetLanguageQuery = `SELECT code, name, native_name, is_default, is_active, created_at
FROM cms_languages WHERE code = ?`

	ListLanguagesQuery = `SELECT code, name, native_name, is_default, is_active, created_at
FROM cms_languages ORDER BY is_default DESC, code`

	UpdateLanguageQuery = `UPDATE cms_languages SET name = ?, native_name = ?, is_default = ?, is_active = ?
WHERE code = ?`

	DeleteLanguageQuery = `DELETE FROM cms_languages WHERE code = ?`

	UpsertTranslationQuery = `INSERT INTO cms_translations (table_name, record_id, field_name, language_code, value, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (table_name, record_id, field_name, language_code)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	GetTranslationQuery = `SELECT table_name, record_id, field_name, language_code, value, updated_at
FROM cms_translations
WHERE table_name = ? AND record_id = ? AND field_name = ? AND language_code = ?`

	ListTranslationsQuery = `SELECT table_name, record_id, field_name, language_code, value, updated_at
FROM cms_translations
WHERE table_name = ? AND record_id = ? AND (? = '' OR language_code = ?)
ORDER BY language_code, field_name`

	// DeleteTranslationsQuery treats empty filter values as wildcards.
	DeleteTranslationsQuery = `DELETE FROM cms_translations
WHERE (? = '' OR table_name = ?) AND (? = 0 OR record_id = ?) AND (? = '' OR language_code = ?)`

	InsertMediaQuery = `INSERT INTO cms_media (stored_name, original_name, path, mime_type, size_bytes, tags, uploaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`

	GetMediaQuery = `SELECT id, stored_name, original_name, path, mime_type, size_bytes, tags, uploaded_at
FROM cms_media WHERE id = ?`

	ListMediaQuery = `SELECT id, stored_name, original_name, path, mime_type, size_bytes, tags, uploaded_at
FROM cms_media WHERE (? = '' OR tags LIKE ? ESCAPE '\')
ORDER BY uploaded_at DESC, id DESC LIMIT ? OFFSET ?`

	CountMediaQuery = `SELECT COUNT(*) FROM cms_media WHERE (? = '' OR tags LIKE ? ESCAPE '\')`

	DeleteMediaQuery = `DELETE FROM cms_media WHERE id = ?`
)

// TagPattern returns the LIKE pattern matching tag inside a JSON array.
func TagPattern(tag string) string {
	if tag == "" {
		return ""
	}
	return `%"` + EscapeLike(tag) + `"%`
}
