// Package kafka publishes content change events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ErrSinkClosed is returned when publishing to a closed sink.
var ErrSinkClosed = errors.New("kafka sink is closed")

// Event types
const (
	EventTableCreated      = "table.created"
	EventFieldAdded        = "field.added"
	EventRecordCreated     = "record.created"
	EventRecordUpdated     = "record.updated"
	EventRecordDeleted     = "record.deleted"
	EventTranslationsSaved = "translations.saved"
	EventMediaUploaded     = "media.uploaded"
	EventMediaDeleted      = "media.deleted"
)

// Event is the JSON message value. Messages are keyed by table so that the
// events of one table keep their order within a partition.
type Event struct {
	Type      string    `json:"type"`
	Table     string    `json:"table,omitempty"`
	RecordID  int64     `json:"record_id,omitempty"`
	Language  string    `json:"language,omitempty"`
	Fields    []string  `json:"fields,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds configuration for the Kafka sink.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int // 0, 1, or -1 (all)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements simplecms.EventSink on a kafka.Writer.
type Sink struct {
	writer messageWriter
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// New creates a synchronous Kafka producer for the sink
func New(config Config) (*Sink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           config.BatchTimeout,
		WriteTimeout:           config.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	return newSink(writer), nil
}

func newSink(w messageWriter) *Sink {
	return &Sink{writer: w, now: time.Now}
}

func (s *Sink) publish(ctx context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	ev.Timestamp = s.now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Table),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}

func (s *Sink) TableCreated(ctx context.Context, table simplecms.TableDefinition) error {
	return s.publish(ctx, Event{Type: EventTableCreated, Table: table.Name, Fields: table.FieldNames(), Data: table.Fields})
}

func (s *Sink) FieldAdded(ctx context.Context, field simplecms.FieldDefinition) error {
	return s.publish(ctx, Event{Type: EventFieldAdded, Table: field.Table, Fields: []string{field.Name}, Data: field})
}

func (s *Sink) RecordCreated(ctx context.Context, table string, record simplecms.Record) error {
	return s.publish(ctx, Event{Type: EventRecordCreated, Table: table, RecordID: record.ID(), Data: record})
}

func (s *Sink) RecordUpdated(ctx context.Context, table string, record simplecms.Record) error {
	return s.publish(ctx, Event{Type: EventRecordUpdated, Table: table, RecordID: record.ID(), Data: record})
}

func (s *Sink) RecordDeleted(ctx context.Context, table string, id int64) error {
	return s.publish(ctx, Event{Type: EventRecordDeleted, Table: table, RecordID: id})
}

func (s *Sink) TranslationsSaved(ctx context.Context, table string, recordID int64, lang string, fields []string) error {
	return s.publish(ctx, Event{Type: EventTranslationsSaved, Table: table, RecordID: recordID, Language: lang, Fields: fields})
}

func (s *Sink) MediaUploaded(ctx context.Context, asset *simplecms.MediaAsset) error {
	return s.publish(ctx, Event{Type: EventMediaUploaded, Table: simplecms.MediaTable, RecordID: asset.ID, Data: asset})
}

func (s *Sink) MediaDeleted(ctx context.Context, id int64) error {
	return s.publish(ctx, Event{Type: EventMediaDeleted, Table: simplecms.MediaTable, RecordID: id})
}

// Close flushes pending messages and closes the writer
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
