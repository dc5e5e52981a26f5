package simplecms

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) TableCreated(ctx context.Context, table TableDefinition) error { return nil }

func (n *NoopEventSink) FieldAdded(ctx context.Context, field FieldDefinition) error { return nil }

func (n *NoopEventSink) RecordCreated(ctx context.Context, table string, record Record) error {
	return nil
}

func (n *NoopEventSink) RecordUpdated(ctx context.Context, table string, record Record) error {
	return nil
}

func (n *NoopEventSink) RecordDeleted(ctx context.Context, table string, id int64) error { return nil }

func (n *NoopEventSink) TranslationsSaved(ctx context.Context, table string, recordID int64, lang string, fields []string) error {
	return nil
}

func (n *NoopEventSink) MediaUploaded(ctx context.Context, asset *MediaAsset) error { return nil }

func (n *NoopEventSink) MediaDeleted(ctx context.Context, id int64) error { return nil }

// LogEventSink writes every event to a structured logger.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink that logs at info level
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) TableCreated(ctx context.Context, table TableDefinition) error {
	l.logger.InfoContext(ctx, "Table created", "table", table.Name, "fields", len(table.Fields))
	return nil
}

func (l *LogEventSink) FieldAdded(ctx context.Context, field FieldDefinition) error {
	l.logger.InfoContext(ctx, "Field added", "table", field.Table, "field", field.Name, "type", field.Type)
	return nil
}

func (l *LogEventSink) RecordCreated(ctx context.Context, table string, record Record) error {
	l.logger.InfoContext(ctx, "Record created", "table", table, "id", record.ID())
	return nil
}

func (l *LogEventSink) RecordUpdated(ctx context.Context, table string, record Record) error {
	l.logger.InfoContext(ctx, "Record updated", "table", table, "id", record.ID())
	return nil
}

func (l *LogEventSink) RecordDeleted(ctx context.Context, table string, id int64) error {
	l.logger.InfoContext(ctx, "Record deleted", "table", table, "id", id)
	return nil
}

func (l *LogEventSink) TranslationsSaved(ctx context.Context, table string, recordID int64, lang string, fields []string) error {
	l.logger.InfoContext(ctx, "Translations saved", "table", table, "record_id", recordID, "language", lang, "fields", fields)
	return nil
}

func (l *LogEventSink) MediaUploaded(ctx context.Context, asset *MediaAsset) error {
	l.logger.InfoContext(ctx, "Media uploaded", "media_id", asset.ID, "mime_type", asset.MimeType, "size", asset.SizeBytes)
	return nil
}

func (l *LogEventSink) MediaDeleted(ctx context.Context, id int64) error {
	l.logger.InfoContext(ctx, "Media deleted", "media_id", id)
	return nil
}

// noopSchemaCache never hits.
type noopSchemaCache struct{}

func (noopSchemaCache) Get(ctx context.Context, table string) ([]FieldDefinition, bool) {
	return nil, false
}

func (noopSchemaCache) Version(ctx context.Context, table string) (uint64, bool) {
	return 0, false
}

func (noopSchemaCache) Set(ctx context.Context, table string, version uint64, fields []FieldDefinition) {
}

func (noopSchemaCache) Invalidate(ctx context.Context, table string) {}
