package simplecms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms/mediakey"
)

// service implements the Service interface
type service struct {
	repository Repository
	registry   *SchemaRegistry
	factory    *TableFactory
	resolver   *RelationResolver
	overlay    *TranslationOverlay

	blobStores       map[string]BlobStore
	defaultBlobStore string
	keyGenerator     mediakey.Generator
	mediaURLs        MediaURLStrategy
	maxUploadBytes   int64
	allowedMimeTypes []string

	eventSink   EventSink
	schemaCache SchemaCache
	logger      *slog.Logger

	defaultLanguage     string
	defaultLanguageName string
	expandConcurrency   int
	now                 func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a media storage backend. The first backend added
// becomes the default unless WithDefaultBlobStore says otherwise.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultBlobStore == "" {
			s.defaultBlobStore = name
		}
	}
}

// WithDefaultBlobStore selects the backend new uploads go to
func WithDefaultBlobStore(name string) Option {
	return func(s *service) {
		s.defaultBlobStore = name
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithSchemaCache sets the cache consulted for field metadata
func WithSchemaCache(cache SchemaCache) Option {
	return func(s *service) {
		s.schemaCache = cache
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMediaKeyGenerator sets how stored names and object keys are derived
func WithMediaKeyGenerator(gen mediakey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = gen
	}
}

// WithMediaURLStrategy sets how MediaURL builds links; StorageURLs by default
func WithMediaURLStrategy(strategy MediaURLStrategy) Option {
	return func(s *service) {
		s.mediaURLs = strategy
	}
}

// WithMaxUploadBytes limits the size of media uploads; 0 disables the limit
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithAllowedMimeTypes restricts uploads to the given MIME types. Entries
// ending in "/" or "/*" match a whole family, e.g. "image/*".
func WithAllowedMimeTypes(types ...string) Option {
	return func(s *service) {
		s.allowedMimeTypes = types
	}
}

// WithDefaultLanguage sets the language Bootstrap creates on an empty store
func WithDefaultLanguage(code, name string) Option {
	return func(s *service) {
		s.defaultLanguage = code
		s.defaultLanguageName = name
	}
}

// WithExpandConcurrency bounds the parallel relation lookups of a list
func WithExpandConcurrency(n int) Option {
	return func(s *service) {
		s.expandConcurrency = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:          make(map[string]BlobStore),
		defaultLanguage:     "en",
		defaultLanguageName: "English",
		expandConcurrency:   8,
		now:                 func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.schemaCache == nil {
		s.schemaCache = noopSchemaCache{}
	}
	if s.keyGenerator == nil {
		s.keyGenerator = mediakey.NewDatedGenerator()
	}
	if s.mediaURLs == nil {
		s.mediaURLs = StorageURLs{}
	}
	if len(s.blobStores) > 0 {
		if _, ok := s.blobStores[s.defaultBlobStore]; !ok {
			return nil, fmt.Errorf("default blob store %q is not registered", s.defaultBlobStore)
		}
	}

	s.registry = NewSchemaRegistry(s.repository, s.schemaCache)
	s.factory = NewTableFactory(s.repository, s.registry)
	s.resolver = NewRelationResolver(s.repository, s.registry, s.expandConcurrency)
	s.overlay = NewTranslationOverlay(s.repository, s.registry)

	return s, nil
}

// Bootstrap creates the default language on an empty store.
func (s *service) Bootstrap(ctx context.Context) error {
	return s.repository.WithTx(ctx, func(tx Repository) error {
		langs, err := tx.ListLanguages(ctx)
		if err != nil {
			return storageErr("list languages", err)
		}
		if len(langs) > 0 {
			return nil
		}
		lang := &Language{
			Code:       s.defaultLanguage,
			Name:       s.defaultLanguageName,
			NativeName: s.defaultLanguageName,
			IsDefault:  true,
			IsActive:   true,
			CreatedAt:  s.now(),
		}
		if err := tx.CreateLanguage(ctx, lang); err != nil {
			return storageErr("create default language", err)
		}
		s.logger.InfoContext(ctx, "Default language created", "language", lang.Code)
		return nil
	})
}

// notify reports an event failure without failing the operation.
func (s *service) notify(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "event", event, "error", err)
	}
}

// fail logs storage failures and passes every error through.
func (s *service) fail(ctx context.Context, op string, err error) error {
	if KindOf(err) == ErrStorage {
		s.logger.ErrorContext(ctx, "Storage operation failed", "op", op, "error", err)
	}
	return err
}
