package simplecms

import (
	"context"
	"io"
)

// Service defines the main interface for the simple-cms library
type Service interface {
	// Bootstrap prepares a fresh store, creating the default language when no
	// language exists yet.
	Bootstrap(ctx context.Context) error

	// Schema operations
	CreateTable(ctx context.Context, req CreateTableRequest) (*TableDefinition, error)
	AddField(ctx context.Context, table string, spec FieldSpec) (*FieldDefinition, error)
	DescribeTable(ctx context.Context, table string) (*TableDefinition, error)
	ListTables(ctx context.Context) ([]string, error)

	// Query operations
	List(ctx context.Context, req ListRequest) (*ListResult, error)
	GetOne(ctx context.Context, table string, id int64, lang string) (Record, error)
	Search(ctx context.Context, req SearchRequest) ([]Record, error)
	ForeignOptions(ctx context.Context, table, field string) (*OptionList, error)

	// Record write operations
	CreateRecord(ctx context.Context, table string, values map[string]any) (Record, error)
	UpdateRecord(ctx context.Context, table string, id int64, values map[string]any) (Record, error)
	DeleteRecord(ctx context.Context, table string, id int64) error

	// Translation operations
	GetTranslation(ctx context.Context, table string, recordID int64, field, lang string) (string, bool, error)
	GetTranslations(ctx context.Context, table string, recordID int64, lang string) (map[string]string, error)
	GetAllTranslations(ctx context.Context, table string, recordID int64) (map[string]map[string]TranslationValue, error)
	UpsertTranslation(ctx context.Context, table string, recordID int64, field, lang, value string) error
	UpsertTranslations(ctx context.Context, table string, recordID int64, lang string, fields map[string]string) (int, error)

	// Language operations
	CreateLanguage(ctx context.Context, req CreateLanguageRequest) (*Language, error)
	GetLanguage(ctx context.Context, code string) (*Language, error)
	ListLanguages(ctx context.Context, activeOnly bool) ([]*Language, error)
	SelectLanguage(ctx context.Context, requested string) (*LanguageSelection, error)
	SetDefaultLanguage(ctx context.Context, code string) error
	ToggleLanguage(ctx context.Context, code string, active bool) error
	DeleteLanguage(ctx context.Context, code string) error

	// Media operations
	UploadMedia(ctx context.Context, req UploadMediaRequest, reader io.Reader) (*MediaAsset, error)
	GetMedia(ctx context.Context, id int64) (*MediaAsset, error)
	OpenMedia(ctx context.Context, id int64) (*MediaAsset, io.ReadCloser, error)
	MediaURL(ctx context.Context, id int64) (string, error)
	DeleteMedia(ctx context.Context, id int64) error
	ListMedia(ctx context.Context, limit, offset int, tag string) (*MediaPage, error)
}
