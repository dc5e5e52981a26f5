package simplecms

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldType is the declared type of a dynamic field.
type FieldType string

// Declared field types (typed).
const (
	FieldText          FieldType = "text"
	FieldTextarea      FieldType = "textarea"
	FieldNumber        FieldType = "number"
	FieldDecimal       FieldType = "decimal"
	FieldDate          FieldType = "date"
	FieldDateTime      FieldType = "datetime"
	FieldBoolean       FieldType = "boolean"
	FieldMedia         FieldType = "media"
	FieldMediaMultiple FieldType = "media_multiple"
	FieldForeignKey    FieldType = "foreign_key"
)

var fieldTypeAliases = map[string]FieldType{
	"text":           FieldText,
	"short-text":     FieldText,
	"short_text":     FieldText,
	"string":         FieldText,
	"textarea":       FieldTextarea,
	"long-text":      FieldTextarea,
	"long_text":      FieldTextarea,
	"richtext":       FieldTextarea,
	"number":         FieldNumber,
	"integer":        FieldNumber,
	"int":            FieldNumber,
	"decimal":        FieldDecimal,
	"float":          FieldDecimal,
	"real":           FieldDecimal,
	"date":           FieldDate,
	"datetime":       FieldDateTime,
	"timestamp":      FieldDateTime,
	"boolean":        FieldBoolean,
	"bool":           FieldBoolean,
	"media":          FieldMedia,
	"media-single":   FieldMedia,
	"media_single":   FieldMedia,
	"image":          FieldMedia,
	"file":           FieldMedia,
	"media_multiple": FieldMediaMultiple,
	"media-multiple": FieldMediaMultiple,
	"gallery":        FieldMediaMultiple,
	"foreign_key":    FieldForeignKey,
	"foreign-key":    FieldForeignKey,
	"relation":       FieldForeignKey,
}

// ParseFieldType resolves a declared type or one of its aliases.
func ParseFieldType(s string) (FieldType, error) {
	t, ok := fieldTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFieldType, s)
	}
	return t, nil
}

// StorageType is the physical column type a field is stored as.
type StorageType string

const (
	StorageText     StorageType = "text"
	StorageInteger  StorageType = "integer"
	StorageReal     StorageType = "real"
	StorageDate     StorageType = "date"
	StorageDateTime StorageType = "datetime"
	StorageBoolean  StorageType = "boolean"
)

// StorageType maps the declared type to its physical column type.
func (t FieldType) StorageType() StorageType {
	switch t {
	case FieldNumber, FieldMedia, FieldForeignKey:
		return StorageInteger
	case FieldDecimal:
		return StorageReal
	case FieldDate:
		return StorageDate
	case FieldDateTime:
		return StorageDateTime
	case FieldBoolean:
		return StorageBoolean
	default:
		return StorageText
	}
}

// IsTextual reports whether values of this type are free text.
func (t FieldType) IsTextual() bool {
	return t == FieldText || t == FieldTextarea
}

// MediaArity tells whether a media field references one asset or a list.
type MediaArity string

const (
	MediaSingle   MediaArity = "single"
	MediaMultiple MediaArity = "multiple"
)

// FieldRole is the behavior of a field on read. It is sealed: the only
// implementations are PlainRole, MediaRole and ForeignKeyRole.
type FieldRole interface {
	fieldRole()
}

// PlainRole is a field holding a scalar value.
type PlainRole struct{}

// MediaRole is a field referencing MediaAsset ids.
type MediaRole struct {
	Arity MediaArity
}

// ForeignKeyRole is a field referencing a record id in another dynamic table.
type ForeignKeyRole struct {
	Table         string
	DisplayColumn string
}

func (PlainRole) fieldRole()      {}
func (MediaRole) fieldRole()      {}
func (ForeignKeyRole) fieldRole() {}

// FieldDefinition is the metadata tracked for one dynamic column.
type FieldDefinition struct {
	Table     string
	Name      string
	Type      FieldType
	Role      FieldRole
	Position  int
	CreatedAt time.Time
}

// StorageType returns the physical column type of the field.
func (f FieldDefinition) StorageType() StorageType {
	return f.Type.StorageType()
}

// Media returns the media role of the field, if it has one.
func (f FieldDefinition) Media() (MediaRole, bool) {
	m, ok := f.Role.(MediaRole)
	return m, ok
}

// ForeignKey returns the foreign-key role of the field, if it has one.
func (f FieldDefinition) ForeignKey() (ForeignKeyRole, bool) {
	fk, ok := f.Role.(ForeignKeyRole)
	return fk, ok
}

// fieldJSON is the flat wire and cache representation of FieldDefinition.
type fieldJSON struct {
	Table                string      `json:"table"`
	Name                 string      `json:"name"`
	Type                 FieldType   `json:"type"`
	StorageType          StorageType `json:"storage_type"`
	IsMedia              bool        `json:"is_media"`
	MediaArity           MediaArity  `json:"media_arity,omitempty"`
	IsForeignKey         bool        `json:"is_foreign_key"`
	ForeignTable         string      `json:"foreign_table,omitempty"`
	ForeignDisplayColumn string      `json:"foreign_display_column,omitempty"`
	Position             int         `json:"position"`
	CreatedAt            time.Time   `json:"created_at"`
}

func (f FieldDefinition) MarshalJSON() ([]byte, error) {
	out := fieldJSON{
		Table:       f.Table,
		Name:        f.Name,
		Type:        f.Type,
		StorageType: f.StorageType(),
		Position:    f.Position,
		CreatedAt:   f.CreatedAt,
	}
	switch role := f.Role.(type) {
	case MediaRole:
		out.IsMedia = true
		out.MediaArity = role.Arity
	case ForeignKeyRole:
		out.IsForeignKey = true
		out.ForeignTable = role.Table
		out.ForeignDisplayColumn = role.DisplayColumn
	}
	return json.Marshal(out)
}

func (f *FieldDefinition) UnmarshalJSON(data []byte) error {
	var in fieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = FieldDefinition{
		Table:     in.Table,
		Name:      in.Name,
		Type:      in.Type,
		Position:  in.Position,
		CreatedAt: in.CreatedAt,
	}
	f.Role = RoleFromColumns(in.IsMedia, in.MediaArity, in.IsForeignKey, in.ForeignTable, in.ForeignDisplayColumn)
	return nil
}

// RoleFromColumns rebuilds a FieldRole from its flat persisted columns.
func RoleFromColumns(isMedia bool, arity MediaArity, isForeignKey bool, foreignTable, displayColumn string) FieldRole {
	switch {
	case isMedia:
		if arity != MediaMultiple {
			arity = MediaSingle
		}
		return MediaRole{Arity: arity}
	case isForeignKey:
		return ForeignKeyRole{Table: foreignTable, DisplayColumn: displayColumn}
	default:
		return PlainRole{}
	}
}

// RoleColumns flattens a FieldRole into its persisted columns.
func RoleColumns(role FieldRole) (isMedia bool, arity MediaArity, isForeignKey bool, foreignTable, displayColumn string) {
	switch r := role.(type) {
	case MediaRole:
		return true, r.Arity, false, "", ""
	case ForeignKeyRole:
		return false, "", true, r.Table, r.DisplayColumn
	default:
		return false, "", false, "", ""
	}
}

// FieldSpec is a caller-supplied field declaration.
type FieldSpec struct {
	Name                 string `json:"name" yaml:"name"`
	Type                 string `json:"type" yaml:"type"`
	ForeignTable         string `json:"foreign_table,omitempty" yaml:"foreign_table,omitempty"`
	ForeignDisplayColumn string `json:"foreign_display_column,omitempty" yaml:"foreign_display_column,omitempty"`
}

// TableDefinition is a dynamically declared content type and its fields.
type TableDefinition struct {
	Name   string            `json:"name"`
	Fields []FieldDefinition `json:"fields"`
	// Drift is set by DescribeTable when the metadata and the physical
	// columns disagree.
	Drift *SchemaDrift `json:"drift,omitempty"`
}

// SchemaDrift lists where a table's field metadata and its physical columns
// disagree.
type SchemaDrift struct {
	MissingColumns      []string `json:"missing_columns,omitempty"`
	UnregisteredColumns []string `json:"unregistered_columns,omitempty"`
}

// FieldNames returns the field names in declaration order.
func (t TableDefinition) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (t TableDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

const maxIdentifierLength = 63

// SanitizeIdentifier reduces a table or field name to [a-z0-9_].
func SanitizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxIdentifierLength {
		out = out[:maxIdentifierLength]
	}
	return out
}

// System tables owned by the stores.
const (
	FieldsTable       = "cms_fields"
	LanguagesTable    = "cms_languages"
	TranslationsTable = "cms_translations"
	MediaTable        = "cms_media"
)

var reservedTablePrefixes = []string{"cms_", "sqlite_", "pg_"}

// IsReservedTable reports whether name belongs to the system.
func IsReservedTable(name string) bool {
	for _, p := range reservedTablePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// IsReservedField reports whether name collides with the identity column or
// with keys the read pipeline adds to records.
func IsReservedField(name string) bool {
	switch name {
	case "id", "translations", "language":
		return true
	}
	return strings.HasSuffix(name, mediaSuffix) || strings.HasSuffix(name, dataSuffix)
}
