package simplecms

import (
	"context"
	"io"
)

// SchemaRepository persists physical tables and their field metadata.
type SchemaRepository interface {
	// CreateTable creates a physical table with an auto-assigned id column
	// plus one column per entry. Fails with ErrDuplicateTable if it exists.
	CreateTable(ctx context.Context, table string, columns []Column) error

	// AddColumn appends a column. Fails with ErrDuplicateField if the
	// physical table already has it, ErrTableNotFound if the table is missing.
	AddColumn(ctx context.Context, table string, column Column) error

	// TableColumns returns the physical column names of a table.
	TableColumns(ctx context.Context, table string) ([]string, error)

	// ListTables returns every table that has field metadata, sorted by name.
	ListTables(ctx context.Context) ([]string, error)

	// InsertFields stores field metadata rows. Fails with ErrDuplicateField
	// when a (table, name) pair already exists.
	InsertFields(ctx context.Context, fields []FieldDefinition) error

	// GetFields returns the metadata of a table ordered by position; empty for
	// tables without metadata.
	GetFields(ctx context.Context, table string) ([]FieldDefinition, error)
}

// RecordRepository persists rows of dynamic tables. Column names reaching
// these methods have already been checked against the schema registry.
type RecordRepository interface {
	InsertRecord(ctx context.Context, table string, values map[string]any) (int64, error)
	UpdateRecord(ctx context.Context, table string, id int64, values map[string]any) error
	DeleteRecord(ctx context.Context, table string, id int64) error
	GetRecord(ctx context.Context, table string, id int64) (Record, error)
	ListRecords(ctx context.Context, table string, q RecordQuery) ([]Record, error)
	CountRecords(ctx context.Context, table string) (int64, error)
	SearchRecords(ctx context.Context, table string, q SearchQuery) ([]Record, error)
}

// MediaRepository persists media asset rows.
type MediaRepository interface {
	CreateMedia(ctx context.Context, asset *MediaAsset) error
	GetMedia(ctx context.Context, id int64) (*MediaAsset, error)
	ListMedia(ctx context.Context, q MediaQuery) ([]*MediaAsset, int64, error)
	DeleteMedia(ctx context.Context, id int64) error
}

// LanguageRepository persists languages.
type LanguageRepository interface {
	CreateLanguage(ctx context.Context, lang *Language) error
	GetLanguage(ctx context.Context, code string) (*Language, error)
	ListLanguages(ctx context.Context) ([]*Language, error)
	UpdateLanguage(ctx context.Context, lang *Language) error
	DeleteLanguage(ctx context.Context, code string) error
}

// TranslationRepository persists translation rows.
type TranslationRepository interface {
	// UpsertTranslation replaces any row with the same key.
	UpsertTranslation(ctx context.Context, t *Translation) error
	GetTranslation(ctx context.Context, table string, recordID int64, field, lang string) (*Translation, error)
	// ListTranslations returns the rows of one record, for one language or
	// for every language when lang is empty.
	ListTranslations(ctx context.Context, table string, recordID int64, lang string) ([]*Translation, error)
	DeleteTranslations(ctx context.Context, filter TranslationFilter) error
}

// Repository defines the interface for all persistence of the service
type Repository interface {
	SchemaRepository
	RecordRepository
	MediaRepository
	LanguageRepository
	TranslationRepository

	// WithTx runs fn in a single transaction. The Repository handed to fn is
	// bound to that transaction; a returned error rolls everything back,
	// including DDL.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// BlobStore defines the interface for media byte storage backends
type BlobStore interface {
	// Upload stores the content of reader under objectKey
	Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error

	// Download opens the content stored under objectKey
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the content stored under objectKey
	Delete(ctx context.Context, objectKey string) error

	// GetDownloadURL returns a URL clients can fetch the content from
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)
}

// EventSink receives notifications about schema and content changes.
type EventSink interface {
	TableCreated(ctx context.Context, table TableDefinition) error
	FieldAdded(ctx context.Context, field FieldDefinition) error
	RecordCreated(ctx context.Context, table string, record Record) error
	RecordUpdated(ctx context.Context, table string, record Record) error
	RecordDeleted(ctx context.Context, table string, id int64) error
	TranslationsSaved(ctx context.Context, table string, recordID int64, lang string, fields []string) error
	MediaUploaded(ctx context.Context, asset *MediaAsset) error
	MediaDeleted(ctx context.Context, id int64) error
}

// SchemaCache caches field metadata per table.
//
// Every Invalidate of a table moves its version on. Readers take the
// version before loading fields and pass it to Set, which drops the write
// when the table was invalidated in between, so a slow fill never resurrects
// a schema older than the last change.
type SchemaCache interface {
	Get(ctx context.Context, table string) ([]FieldDefinition, bool)
	// Version reports false when the version cannot be read; callers then
	// skip Set.
	Version(ctx context.Context, table string) (uint64, bool)
	Set(ctx context.Context, table string, version uint64, fields []FieldDefinition)
	Invalidate(ctx context.Context, table string)
}
