// Package simplecms provides a library for content tables that are defined at
// runtime rather than at deploy time.
//
// An operator declares a table as an ordered list of fields. The TableFactory
// turns that declaration into a physical table in the configured Repository
// and records one FieldDefinition per column in the SchemaRegistry. Fields
// carry a role: plain values, references to MediaAsset rows (single or
// multiple) or foreign keys into another dynamic table.
//
// Reads go through the query gateway (List, GetOne, Search). Each returned
// record is expanded one level deep by the RelationResolver, which embeds
// referenced media under "<field>_media" and referenced rows under
// "<field>_data", and is optionally overlaid with per-language translations.
// Values of the default language live in the record itself; other languages
// are stored as translation rows keyed by (table, record, field, language).
//
// Referential integrity is deliberately not enforced. A dangling media or
// foreign-key id resolves to null (or is dropped from a media list) and is
// never reported as an error.
package simplecms
