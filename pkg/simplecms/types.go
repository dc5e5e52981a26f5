package simplecms

import (
	"strings"
	"time"
)

// Record is one row of a dynamic table: field name to scalar value, keyed by
// the "id" entry.
type Record map[string]any

// ID returns the record's identity, or 0 when absent.
func (r Record) ID() int64 {
	id, _ := asInt64(r["id"])
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MediaAsset is an uploaded file referenced by id from media fields.
type MediaAsset struct {
	ID           int64     `json:"id"`
	StoredName   string    `json:"stored_name"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Tags         []string  `json:"tags"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Language is a content language. Exactly one language is the default and
// the default is always active.
type Language struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	NativeName string    `json:"native_name"`
	IsDefault  bool      `json:"is_default"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Translation is a per-language override of one field of one record.
type Translation struct {
	Table     string    `json:"table"`
	RecordID  int64     `json:"record_id"`
	Field     string    `json:"field"`
	Language  string    `json:"language"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranslationValue is a translated value with its last update time.
type TranslationValue struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Column is a physical column handed to the store for DDL.
type Column struct {
	Name string
	Type StorageType
}

// RecordQuery is a validated page request for a store.
type RecordQuery struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

// SearchQuery is a validated substring search for a store.
type SearchQuery struct {
	Columns []string
	Term    string
	Limit   int
}

// MediaQuery pages through media assets, optionally filtered by tag.
type MediaQuery struct {
	Limit  int
	Offset int
	Tag    string
}

// TranslationFilter selects translation rows to delete. Empty fields match
// anything; RecordID 0 matches every record.
type TranslationFilter struct {
	Table    string
	RecordID int64
	Language string
}

// Sort directions
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// Paging bounds
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListRequest contains parameters for listing records
type ListRequest struct {
	Table    string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
	Language string
}

// ListResult is a page of expanded records.
type ListResult struct {
	Records  []Record `json:"records"`
	Total    int64    `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
	HasMore  bool     `json:"has_more"`
	OrderBy  string   `json:"order_by"`
	OrderDir string   `json:"order_dir"`
	Language string   `json:"language,omitempty"`
}

// SearchRequest contains parameters for a record search
type SearchRequest struct {
	Table string
	Query string
	Field string
	Limit int
}

// CreateTableRequest contains parameters for creating a dynamic table
type CreateTableRequest struct {
	Name   string      `json:"name" yaml:"name"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// CreateLanguageRequest contains parameters for creating a language
type CreateLanguageRequest struct {
	Code       string `json:"code" yaml:"code"`
	Name       string `json:"name" yaml:"name"`
	NativeName string `json:"native_name" yaml:"native_name"`
	Active     bool   `json:"active" yaml:"active"`
	Default    bool   `json:"default" yaml:"default"`
}

// LanguageSelection answers the languages query: active languages, the
// default and the language the caller asked for (falling back to default).
type LanguageSelection struct {
	Languages []*Language `json:"languages"`
	Default   *Language   `json:"default"`
	Current   *Language   `json:"current"`
}

// UploadMediaRequest contains parameters for uploading a media asset
type UploadMediaRequest struct {
	FileName string
	MimeType string
	Size     int64
	Tags     []string
}

// MediaPage is a page of media assets.
type MediaPage struct {
	Assets  []*MediaAsset `json:"assets"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	HasMore bool          `json:"has_more"`
}

// ClampLimit bounds limit to [1, MaxLimit]. Callers without a limit pass
// DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// ClampOffset bounds offset to >= 0.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// NormalizeOrderDir maps anything but "asc" (case-insensitive) to DESC.
func NormalizeOrderDir(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return SortAsc
	}
	return SortDesc
}
