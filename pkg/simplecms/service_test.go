package simplecms_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/cache"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
)

// recordingSink remembers the events it receives.
type recordingSink struct {
	simplecms.EventSink
	mu     sync.Mutex
	events []string
	err    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{EventSink: simplecms.NewNoopEventSink()}
}

func (s *recordingSink) add(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
	return s.err
}

func (s *recordingSink) TableCreated(ctx context.Context, table simplecms.TableDefinition) error {
	return s.add("table_created:" + table.Name)
}

func (s *recordingSink) RecordCreated(ctx context.Context, table string, record simplecms.Record) error {
	return s.add("record_created:" + table)
}

func (s *recordingSink) RecordDeleted(ctx context.Context, table string, id int64) error {
	return s.add("record_deleted:" + table)
}

func (s *recordingSink) TranslationsSaved(ctx context.Context, table string, recordID int64, lang string, fields []string) error {
	return s.add("translations_saved:" + lang + ":" + strings.Join(fields, ","))
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type fixture struct {
	svc   simplecms.Service
	blobs *memorystorage.Backend
	sink  *recordingSink
}

func newFixture(t *testing.T, opts ...simplecms.Option) *fixture {
	t.Helper()
	f := &fixture{blobs: memorystorage.New(), sink: newRecordingSink()}
	base := []simplecms.Option{
		simplecms.WithRepository(memory.New()),
		simplecms.WithBlobStore("memory", f.blobs),
		simplecms.WithEventSink(f.sink),
		simplecms.WithSchemaCache(cache.NewMemory(0)),
	}
	svc, err := simplecms.New(append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, svc.Bootstrap(context.Background()))
	f.svc = svc
	return f
}

func (f *fixture) createTable(t *testing.T, name string, fields ...simplecms.FieldSpec) {
	t.Helper()
	_, err := f.svc.CreateTable(context.Background(), simplecms.CreateTableRequest{Name: name, Fields: fields})
	require.NoError(t, err)
}

func (f *fixture) createRecord(t *testing.T, table string, values map[string]any) simplecms.Record {
	t.Helper()
	rec, err := f.svc.CreateRecord(context.Background(), table, values)
	require.NoError(t, err)
	return rec
}

func (f *fixture) upload(t *testing.T, name, body string, tags ...string) *simplecms.MediaAsset {
	t.Helper()
	asset, err := f.svc.UploadMedia(context.Background(), simplecms.UploadMediaRequest{
		FileName: name,
		Size:     int64(len(body)),
		Tags:     tags,
	}, strings.NewReader(body))
	require.NoError(t, err)
	return asset
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplecms.Option
		expectError bool
	}{
		{"no options should fail", nil, true},
		{"with repository should succeed", []simplecms.Option{simplecms.WithRepository(memory.New())}, false},
		{
			"unknown default blob store should fail",
			[]simplecms.Option{
				simplecms.WithRepository(memory.New()),
				simplecms.WithBlobStore("memory", memorystorage.New()),
				simplecms.WithDefaultBlobStore("s3"),
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplecms.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simplecms.WithDefaultLanguage("nl", "Nederlands"))
	require.NoError(t, f.svc.Bootstrap(ctx))

	langs, err := f.svc.ListLanguages(ctx, false)
	require.NoError(t, err)
	require.Len(t, langs, 1)
	assert.Equal(t, "nl", langs[0].Code)
	assert.True(t, langs[0].IsDefault)
	assert.True(t, langs[0].IsActive)
}

func TestCreateTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	def, err := f.svc.CreateTable(ctx, simplecms.CreateTableRequest{
		Name: "Blog Posts",
		Fields: []simplecms.FieldSpec{
			{Name: "Title", Type: "string"},
			{Name: "cover", Type: "image"},
			{Name: "gallery", Type: "gallery"},
			{Name: "", Type: "string"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "blog_posts", def.Name)
	assert.Equal(t, []string{"title", "cover", "gallery"}, def.FieldNames())
	assert.Equal(t, simplecms.MediaRole{Arity: simplecms.MediaMultiple}, def.Fields[2].Role)
	assert.Equal(t, 3, def.Fields[2].Position)
	assert.Contains(t, f.sink.Events(), "table_created:blog_posts")

	tests := []struct {
		name string
		req  simplecms.CreateTableRequest
		kind error
	}{
		{"duplicate table", simplecms.CreateTableRequest{Name: "blog_posts", Fields: []simplecms.FieldSpec{{Name: "a", Type: "text"}}}, simplecms.ErrConflict},
		{"reserved table", simplecms.CreateTableRequest{Name: "cms_users", Fields: []simplecms.FieldSpec{{Name: "a", Type: "text"}}}, simplecms.ErrValidation},
		{"blank table name", simplecms.CreateTableRequest{Name: "!!", Fields: []simplecms.FieldSpec{{Name: "a", Type: "text"}}}, simplecms.ErrValidation},
		{"no fields", simplecms.CreateTableRequest{Name: "empty"}, simplecms.ErrValidation},
		{"reserved field", simplecms.CreateTableRequest{Name: "t1", Fields: []simplecms.FieldSpec{{Name: "id", Type: "text"}}}, simplecms.ErrValidation},
		{"resolver suffix", simplecms.CreateTableRequest{Name: "t2", Fields: []simplecms.FieldSpec{{Name: "cover_media", Type: "text"}}}, simplecms.ErrValidation},
		{"repeated field", simplecms.CreateTableRequest{Name: "t3", Fields: []simplecms.FieldSpec{{Name: "a", Type: "text"}, {Name: "A", Type: "text"}}}, simplecms.ErrConflict},
		{"bad type", simplecms.CreateTableRequest{Name: "t4", Fields: []simplecms.FieldSpec{{Name: "a", Type: "blob"}}}, simplecms.ErrValidation},
		{"foreign key without table", simplecms.CreateTableRequest{Name: "t5", Fields: []simplecms.FieldSpec{{Name: "a", Type: "foreign_key"}}}, simplecms.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTable(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	tables, err := f.svc.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"blog_posts"}, tables)
}

func TestAddField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "pages", simplecms.FieldSpec{Name: "title", Type: "text"})

	// Warm the schema cache so the new field must invalidate it.
	_, err := f.svc.DescribeTable(ctx, "pages")
	require.NoError(t, err)

	field, err := f.svc.AddField(ctx, "pages", simplecms.FieldSpec{Name: "rank", Type: "number"})
	require.NoError(t, err)
	assert.Equal(t, 2, field.Position)

	def, err := f.svc.DescribeTable(ctx, "pages")
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "rank"}, def.FieldNames())

	_, err = f.svc.AddField(ctx, "pages", simplecms.FieldSpec{Name: "rank", Type: "number"})
	assert.ErrorIs(t, err, simplecms.ErrDuplicateField)

	_, err = f.svc.AddField(ctx, "missing", simplecms.FieldSpec{Name: "x", Type: "text"})
	assert.ErrorIs(t, err, simplecms.ErrTableNotFound)

	var tableErr *simplecms.TableError
	assert.True(t, errors.As(err, &tableErr))
}

func TestConcurrentAddField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "wide", simplecms.FieldSpec{Name: "a", Type: "text"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddField(ctx, "wide", simplecms.FieldSpec{Name: fmt.Sprintf("f%d", i), Type: "text"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	def, err := f.svc.DescribeTable(ctx, "wide")
	require.NoError(t, err)
	require.Len(t, def.Fields, 11)
	seen := map[int]bool{}
	for _, fd := range def.Fields {
		assert.False(t, seen[fd.Position], "position %d assigned twice", fd.Position)
		seen[fd.Position] = true
	}
}

// gatedCache holds the next Set after arm until release is closed.
type gatedCache struct {
	simplecms.SchemaCache
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (c *gatedCache) arm() {
	c.reached = make(chan struct{})
	c.release = make(chan struct{})
	c.armed.Store(true)
}

func (c *gatedCache) Set(ctx context.Context, table string, version uint64, fields []simplecms.FieldDefinition) {
	if c.armed.CompareAndSwap(true, false) {
		close(c.reached)
		<-c.release
	}
	c.SchemaCache.Set(ctx, table, version, fields)
}

func TestAddFieldDuringCacheFill(t *testing.T) {
	ctx := context.Background()
	gate := &gatedCache{SchemaCache: cache.NewMemory(0)}
	f := newFixture(t, simplecms.WithSchemaCache(gate))
	f.createTable(t, "articles", simplecms.FieldSpec{Name: "title", Type: "text"})
	gate.Invalidate(ctx, "articles")

	// A reader loads the old field list and stalls before caching it.
	gate.arm()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.DescribeTable(ctx, "articles")
		done <- err
	}()
	select {
	case <-gate.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("reader never filled the cache")
	}

	_, err := f.svc.AddField(ctx, "articles", simplecms.FieldSpec{Name: "body", Type: "textarea"})
	require.NoError(t, err)
	close(gate.release)
	require.NoError(t, <-done)

	def, err := f.svc.DescribeTable(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "body"}, def.FieldNames())

	rec, err := f.svc.CreateRecord(ctx, "articles", map[string]any{"title": "Hi", "body": "World"})
	require.NoError(t, err)
	assert.Equal(t, "World", rec["body"])
}

func TestDescribeTableReportsDrift(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	f := newFixture(t, simplecms.WithRepository(repo), simplecms.WithSchemaCache(nil))
	f.createTable(t, "pages", simplecms.FieldSpec{Name: "title", Type: "text"})

	def, err := f.svc.DescribeTable(ctx, "pages")
	require.NoError(t, err)
	assert.Nil(t, def.Drift)

	require.NoError(t, repo.AddColumn(ctx, "pages", simplecms.Column{Name: "legacy", Type: simplecms.FieldText.StorageType()}))
	require.NoError(t, repo.InsertFields(ctx, []simplecms.FieldDefinition{
		{Table: "pages", Name: "summary", Type: simplecms.FieldTextarea, Role: simplecms.PlainRole{}, Position: 2},
	}))

	def, err = f.svc.DescribeTable(ctx, "pages")
	require.NoError(t, err)
	require.NotNil(t, def.Drift)
	assert.Equal(t, []string{"summary"}, def.Drift.MissingColumns)
	assert.Equal(t, []string{"legacy"}, def.Drift.UnregisteredColumns)
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "products",
		simplecms.FieldSpec{Name: "name", Type: "text"},
		simplecms.FieldSpec{Name: "price", Type: "decimal"},
		simplecms.FieldSpec{Name: "stock", Type: "number"},
		simplecms.FieldSpec{Name: "available", Type: "boolean"},
	)

	rec := f.createRecord(t, "products", map[string]any{
		"name":      "Lamp",
		"price":     "19.90",
		"stock":     float64(3),
		"available": "true",
	})
	assert.Equal(t, int64(1), rec.ID())
	assert.Equal(t, "Lamp", rec["name"])
	assert.Equal(t, 19.9, rec["price"])
	assert.Equal(t, int64(3), rec["stock"])
	assert.Equal(t, true, rec["available"])
	assert.Contains(t, f.sink.Events(), "record_created:products")

	_, err := f.svc.CreateRecord(ctx, "products", map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, simplecms.ErrUnknownField)
	_, err = f.svc.CreateRecord(ctx, "products", map[string]any{"stock": "many"})
	assert.ErrorIs(t, err, simplecms.ErrValidation)

	updated, err := f.svc.UpdateRecord(ctx, "products", rec.ID(), map[string]any{"stock": 0, "id": 99})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated["stock"])
	assert.Equal(t, int64(1), updated.ID())
	assert.Equal(t, "Lamp", updated["name"])

	_, err = f.svc.UpdateRecord(ctx, "products", 42, map[string]any{"stock": 1})
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	got, err := f.svc.GetOne(ctx, "products", rec.ID(), "")
	require.NoError(t, err)
	assert.NotContains(t, got, "translations")
	assert.NotContains(t, got, "language")

	require.NoError(t, f.svc.DeleteRecord(ctx, "products", rec.ID()))
	_, err = f.svc.GetOne(ctx, "products", rec.ID(), "")
	assert.ErrorIs(t, err, simplecms.ErrRecordNotFound)
	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, "products", rec.ID()), simplecms.ErrNotFound)

	next := f.createRecord(t, "products", map[string]any{"name": "Desk"})
	assert.Equal(t, int64(2), next.ID(), "ids are never reused")
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "items", simplecms.FieldSpec{Name: "title", Type: "text"}, simplecms.FieldSpec{Name: "rank", Type: "number"})
	for i, title := range []string{"c", "a", "b"} {
		f.createRecord(t, "items", map[string]any{"title": title, "rank": i})
	}

	res, err := f.svc.List(ctx, simplecms.ListRequest{Table: "items", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, simplecms.SortDesc, res.OrderDir)
	assert.Equal(t, "id", res.OrderBy)
	assert.True(t, res.HasMore)
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(3), res.Records[0].ID())

	res, err = f.svc.List(ctx, simplecms.ListRequest{Table: "items", Limit: 10, OrderBy: "title", OrderDir: "asc"})
	require.NoError(t, err)
	assert.False(t, res.HasMore)
	var titles []string
	for _, r := range res.Records {
		titles = append(titles, r["title"].(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, titles)

	clamps := []struct {
		limit, offset         int
		wantLimit, wantOffset int
		wantRecords           int
	}{
		{limit: 500, offset: -4, wantLimit: simplecms.MaxLimit, wantOffset: 0, wantRecords: 3},
		{limit: 0, offset: 0, wantLimit: 1, wantOffset: 0, wantRecords: 1},
		{limit: -3, offset: 2, wantLimit: 1, wantOffset: 2, wantRecords: 1},
	}
	for _, tt := range clamps {
		t.Run(fmt.Sprintf("limit=%d,offset=%d", tt.limit, tt.offset), func(t *testing.T) {
			res, err := f.svc.List(ctx, simplecms.ListRequest{Table: "items", Limit: tt.limit, Offset: tt.offset})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, res.Limit)
			assert.Equal(t, tt.wantOffset, res.Offset)
			assert.Len(t, res.Records, tt.wantRecords)
		})
	}

	_, err = f.svc.List(ctx, simplecms.ListRequest{Table: "items", OrderBy: "nope"})
	assert.ErrorIs(t, err, simplecms.ErrInvalidSortField)
	_, err = f.svc.List(ctx, simplecms.ListRequest{Table: "ghosts"})
	assert.ErrorIs(t, err, simplecms.ErrTableNotFound)
	_, err = f.svc.List(ctx, simplecms.ListRequest{Table: "items", Language: "xx"})
	assert.ErrorIs(t, err, simplecms.ErrLanguageNotFound)
}

func TestRelations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "authors", simplecms.FieldSpec{Name: "name", Type: "text"})
	f.createTable(t, "posts",
		simplecms.FieldSpec{Name: "title", Type: "text"},
		simplecms.FieldSpec{Name: "cover", Type: "image"},
		simplecms.FieldSpec{Name: "gallery", Type: "gallery"},
		simplecms.FieldSpec{Name: "author", Type: "foreign_key", ForeignTable: "authors"},
	)

	author := f.createRecord(t, "authors", map[string]any{"name": "Ada"})
	img1 := f.upload(t, "one.txt", "first")
	img2 := f.upload(t, "two.txt", "second")

	post := f.createRecord(t, "posts", map[string]any{
		"title":   "Hello",
		"cover":   img1.ID,
		"gallery": []any{img1.ID, float64(999), img2.ID},
		"author":  author.ID(),
	})
	orphan := f.createRecord(t, "posts", map[string]any{"title": "Orphan", "author": 77, "cover": ""})

	got, err := f.svc.GetOne(ctx, "posts", post.ID(), "")
	require.NoError(t, err)

	cover, ok := got["cover_media"].(*simplecms.MediaAsset)
	require.True(t, ok)
	assert.Equal(t, img1.ID, cover.ID)

	gallery, ok := got["gallery_media"].([]*simplecms.MediaAsset)
	require.True(t, ok)
	require.Len(t, gallery, 2, "unknown ids are dropped")
	assert.Equal(t, img2.ID, gallery[1].ID)

	linked, ok := got["author_data"].(simplecms.Record)
	require.True(t, ok)
	assert.Equal(t, "Ada", linked["name"])

	got, err = f.svc.GetOne(ctx, "posts", orphan.ID(), "")
	require.NoError(t, err)
	assert.Nil(t, got["author_data"])
	assert.Nil(t, got["cover_media"])
	assert.Equal(t, []*simplecms.MediaAsset{}, got["gallery_media"])

	// Deleting an asset leaves references that resolve to nothing.
	require.NoError(t, f.svc.DeleteMedia(ctx, img1.ID))
	res, err := f.svc.List(ctx, simplecms.ListRequest{Table: "posts", Limit: 10, OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	var nilAsset *simplecms.MediaAsset
	assert.Equal(t, nilAsset, res.Records[0]["cover_media"])
	assert.Len(t, res.Records[0]["gallery_media"], 1)

	opts, err := f.svc.ForeignOptions(ctx, "posts", "author")
	require.NoError(t, err)
	assert.Equal(t, []simplecms.SelectOption{{ID: author.ID(), Label: "Ada"}}, opts.Options)
	assert.Equal(t, int64(1), opts.Total)
	assert.False(t, opts.HasMore)

	_, err = f.svc.ForeignOptions(ctx, "posts", "title")
	assert.ErrorIs(t, err, simplecms.ErrValidation)
	_, err = f.svc.ForeignOptions(ctx, "posts", "missing")
	assert.ErrorIs(t, err, simplecms.ErrUnknownField)
}

func TestForeignOptionsTruncation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "tags", simplecms.FieldSpec{Name: "name", Type: "text"})
	f.createTable(t, "posts", simplecms.FieldSpec{Name: "tag", Type: "foreign_key", ForeignTable: "tags"})
	for i := 0; i < simplecms.MaxLimit+5; i++ {
		f.createRecord(t, "tags", map[string]any{"name": fmt.Sprintf("tag-%d", i)})
	}

	opts, err := f.svc.ForeignOptions(ctx, "posts", "tag")
	require.NoError(t, err)
	assert.Len(t, opts.Options, simplecms.MaxLimit)
	assert.Equal(t, int64(simplecms.MaxLimit+5), opts.Total)
	assert.True(t, opts.HasMore)
	assert.Equal(t, "tag-0", opts.Options[0].Label)
}

func TestDisplayValue(t *testing.T) {
	rec := simplecms.Record{"id": int64(4), "name": " ", "title": "Titled", "code": "X1"}
	assert.Equal(t, "X1", simplecms.DisplayValue(rec, "code"))
	assert.Equal(t, "Titled", simplecms.DisplayValue(rec, "missing"))
	assert.Equal(t, "#4", simplecms.DisplayValue(simplecms.Record{"id": int64(4)}, ""))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTable(t, "notes",
		simplecms.FieldSpec{Name: "title", Type: "text"},
		simplecms.FieldSpec{Name: "body", Type: "textarea"},
		simplecms.FieldSpec{Name: "rank", Type: "number"},
	)
	f.createTable(t, "counters", simplecms.FieldSpec{Name: "n", Type: "number"})
	f.createRecord(t, "notes", map[string]any{"title": "Groceries", "body": "milk and EGGS"})
	f.createRecord(t, "notes", map[string]any{"title": "Eggplant recipe", "body": "roast it"})
	f.createRecord(t, "notes", map[string]any{"title": "Taxes", "body": "100% due"})

	found, err := f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "egg"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "egg", Field: "title"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Eggplant recipe", found[0]["title"])

	found, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "0%"})
	require.NoError(t, err)
	assert.Len(t, found, 1, "wildcards match literally")

	for _, tt := range []struct {
		limit int
		want  int
	}{
		{limit: 1, want: 1},
		{limit: 0, want: 1},
		{limit: 500, want: 3},
	} {
		found, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "e", Limit: tt.limit})
		require.NoError(t, err)
		assert.Len(t, found, tt.want, "limit %d", tt.limit)
	}

	_, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "  "})
	assert.ErrorIs(t, err, simplecms.ErrEmptyQuery)
	_, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "notes", Query: "x", Field: "nope"})
	assert.ErrorIs(t, err, simplecms.ErrUnknownField)
	_, err = f.svc.Search(ctx, simplecms.SearchRequest{Table: "counters", Query: "1"})
	assert.ErrorIs(t, err, simplecms.ErrNoSearchColumns)
}

func TestTranslations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: "FR", Name: "French", Active: true})
	require.NoError(t, err)
	f.createTable(t, "articles",
		simplecms.FieldSpec{Name: "title", Type: "text"},
		simplecms.FieldSpec{Name: "body", Type: "textarea"},
		simplecms.FieldSpec{Name: "cover", Type: "image"},
	)
	rec := f.createRecord(t, "articles", map[string]any{"title": "Hello", "body": "World"})

	require.NoError(t, f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "fr", "Bonjour"))
	require.NoError(t, f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "fr", "Salut"))

	value, ok, err := f.svc.GetTranslation(ctx, "articles", rec.ID(), "title", "FR")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Salut", value)

	_, ok, err = f.svc.GetTranslation(ctx, "articles", rec.ID(), "body", "fr")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.svc.UpsertTranslations(ctx, "articles", rec.ID(), "fr", map[string]string{"body": "Monde", "title": " "})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.sink.Events(), "translations_saved:fr:body")

	all, err := f.svc.GetTranslations(ctx, "articles", rec.ID(), "fr")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "Salut", "body": "Monde"}, all)

	byLang, err := f.svc.GetAllTranslations(ctx, "articles", rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "Monde", byLang["fr"]["body"].Value)

	// Reading in a language layers translations beside the original values.
	got, err := f.svc.GetOne(ctx, "articles", rec.ID(), "fr")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got["title"])
	assert.Equal(t, "fr", got["language"])
	assert.Equal(t, map[string]string{"title": "Salut", "body": "Monde"}, got["translations"])

	got, err = f.svc.GetOne(ctx, "articles", rec.ID(), "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{}, got["translations"])
	assert.Equal(t, "en", got["language"])

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"default language", f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "en", "x"), simplecms.ErrValidation},
		{"media field", f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "cover", "fr", "x"), simplecms.ErrValidation},
		{"unknown field", f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "nope", "fr", "x"), simplecms.ErrUnknownField},
		{"empty value", f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "fr", ""), simplecms.ErrValidation},
		{"unknown language", f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "de", "x"), simplecms.ErrLanguageNotFound},
		{"missing record", f.svc.UpsertTranslation(ctx, "articles", 99, "title", "fr", "x"), simplecms.ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}

	_, err = f.svc.UpsertTranslations(ctx, "articles", rec.ID(), "fr", map[string]string{"title": "", "body": " "})
	assert.ErrorIs(t, err, simplecms.ErrNothingSaved)
	_, err = f.svc.UpsertTranslations(ctx, "articles", rec.ID(), "fr", map[string]string{"ghost": "", "title": "x"})
	assert.ErrorIs(t, err, simplecms.ErrUnknownField)
	value, _, err = f.svc.GetTranslation(ctx, "articles", rec.ID(), "title", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Salut", value, "a rejected batch writes nothing")

	require.NoError(t, f.svc.DeleteRecord(ctx, "articles", rec.ID()))
	all, err = f.svc.GetTranslations(ctx, "articles", rec.ID(), "fr")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSetDefaultLanguageDropsItsTranslations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, code := range []string{"fr", "de"} {
		_, err := f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: code, Name: code, Active: true})
		require.NoError(t, err)
	}
	f.createTable(t, "articles", simplecms.FieldSpec{Name: "title", Type: "text"})
	rec := f.createRecord(t, "articles", map[string]any{"title": "Hello"})
	require.NoError(t, f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "fr", "Bonjour"))
	require.NoError(t, f.svc.UpsertTranslation(ctx, "articles", rec.ID(), "title", "de", "Hallo"))

	require.NoError(t, f.svc.SetDefaultLanguage(ctx, "fr"))

	byLang, err := f.svc.GetAllTranslations(ctx, "articles", rec.ID())
	require.NoError(t, err)
	assert.NotContains(t, byLang, "fr")
	assert.Equal(t, "Hallo", byLang["de"]["title"].Value, "other languages keep their translations")

	// Demoting fr again does not bring the old rows back.
	require.NoError(t, f.svc.SetDefaultLanguage(ctx, "en"))
	_, ok, err := f.svc.GetTranslation(ctx, "articles", rec.ID(), "title", "fr")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLanguages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	fr, err := f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: " Fr ", Name: "French"})
	require.NoError(t, err)
	assert.Equal(t, "fr", fr.Code)
	assert.Equal(t, "French", fr.NativeName)
	assert.False(t, fr.IsActive)

	_, err = f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: "fr", Name: "Again"})
	assert.ErrorIs(t, err, simplecms.ErrConflict)
	_, err = f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: "f", Name: "Short"})
	assert.ErrorIs(t, err, simplecms.ErrValidation)
	_, err = f.svc.CreateLanguage(ctx, simplecms.CreateLanguageRequest{Code: "de"})
	assert.ErrorIs(t, err, simplecms.ErrValidation)

	active, err := f.svc.ListLanguages(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	sel, err := f.svc.SelectLanguage(ctx, "fr")
	require.NoError(t, err)
	assert.Equal(t, "en", sel.Current.Code, "inactive languages fall back to the default")

	require.NoError(t, f.svc.ToggleLanguage(ctx, "fr", true))
	sel, err = f.svc.SelectLanguage(ctx, "FR")
	require.NoError(t, err)
	assert.Equal(t, "fr", sel.Current.Code)
	assert.Equal(t, "en", sel.Default.Code)
	assert.Len(t, sel.Languages, 2)

	assert.ErrorIs(t, f.svc.ToggleLanguage(ctx, "en", false), simplecms.ErrDefaultLanguage)
	assert.ErrorIs(t, f.svc.DeleteLanguage(ctx, "en"), simplecms.ErrDefaultLanguage)
	assert.ErrorIs(t, f.svc.SetDefaultLanguage(ctx, "zz"), simplecms.ErrLanguageNotFound)

	require.NoError(t, f.svc.ToggleLanguage(ctx, "fr", false))
	require.NoError(t, f.svc.SetDefaultLanguage(ctx, "fr"))
	langs, err := f.svc.ListLanguages(ctx, false)
	require.NoError(t, err)
	defaults := 0
	for _, l := range langs {
		if l.IsDefault {
			defaults++
			assert.Equal(t, "fr", l.Code)
			assert.True(t, l.IsActive, "the default is always active")
		}
	}
	assert.Equal(t, 1, defaults)

	f.createTable(t, "tags", simplecms.FieldSpec{Name: "label", Type: "text"})
	rec := f.createRecord(t, "tags", map[string]any{"label": "red"})
	require.NoError(t, f.svc.UpsertTranslation(ctx, "tags", rec.ID(), "label", "en", "red"))
	require.NoError(t, f.svc.DeleteLanguage(ctx, "en"))
	_, ok, err := f.svc.GetTranslation(ctx, "tags", rec.ID(), "label", "en")
	require.NoError(t, err)
	assert.False(t, ok, "deleting a language drops its translations")
	_, err = f.svc.GetLanguage(ctx, "en")
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
}

func TestMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		simplecms.WithMaxUploadBytes(16),
		simplecms.WithAllowedMimeTypes("image/*", "text/plain"),
	)

	asset := f.upload(t, "../notes.txt", "hello", "Docs", "docs", " ")
	assert.Equal(t, "notes.txt", asset.OriginalName)
	assert.Equal(t, "text/plain", asset.MimeType)
	assert.Equal(t, int64(5), asset.SizeBytes)
	assert.Equal(t, []string{"docs"}, asset.Tags)
	assert.Equal(t, 1, f.blobs.Len())

	_, rc, err := f.svc.OpenMedia(ctx, asset.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(body))

	_, err = f.svc.UploadMedia(ctx, simplecms.UploadMediaRequest{FileName: "a.pdf", MimeType: "application/pdf"}, strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, simplecms.ErrInvalidMedia)
	_, err = f.svc.UploadMedia(ctx, simplecms.UploadMediaRequest{FileName: "big.txt", Size: 17}, strings.NewReader(strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, simplecms.ErrInvalidMedia)
	_, err = f.svc.UploadMedia(ctx, simplecms.UploadMediaRequest{FileName: "liar.txt"}, strings.NewReader(strings.Repeat("x", 64)))
	assert.ErrorIs(t, err, simplecms.ErrInvalidMedia)
	_, err = f.svc.UploadMedia(ctx, simplecms.UploadMediaRequest{FileName: " "}, strings.NewReader("x"))
	assert.ErrorIs(t, err, simplecms.ErrValidation)
	assert.Equal(t, 1, f.blobs.Len(), "rejected uploads leave no blobs")

	f.upload(t, "b.txt", "bravo", "other")
	page, err := f.svc.ListMedia(ctx, 10, 0, "DOCS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, asset.ID, page.Assets[0].ID)

	page, err = f.svc.ListMedia(ctx, 1, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.True(t, page.HasMore)

	require.NoError(t, f.svc.DeleteMedia(ctx, asset.ID))
	assert.Equal(t, 1, f.blobs.Len())
	_, err = f.svc.GetMedia(ctx, asset.ID)
	assert.ErrorIs(t, err, simplecms.ErrMediaNotFound)
	assert.ErrorIs(t, f.svc.DeleteMedia(ctx, asset.ID), simplecms.ErrNotFound)
}

func TestEventSinkFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("broker down")

	f.createTable(t, "logs", simplecms.FieldSpec{Name: "line", Type: "text"})
	rec := f.createRecord(t, "logs", map[string]any{"line": "x"})
	require.NoError(t, f.svc.DeleteRecord(context.Background(), "logs", rec.ID()))

	assert.Equal(t, []string{"table_created:logs", "record_created:logs", "record_deleted:logs"}, f.sink.Events())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, simplecms.ErrNotFound, simplecms.KindOf(simplecms.ErrTableNotFound))
	assert.Equal(t, simplecms.ErrConflict, simplecms.KindOf(simplecms.ErrDuplicateField))
	assert.Equal(t, simplecms.ErrValidation, simplecms.KindOf(simplecms.Validationf("bad %s", "input")))
	assert.Equal(t, simplecms.ErrStorage, simplecms.KindOf(errors.New("disk on fire")))
	assert.Nil(t, simplecms.KindOf(nil))
}
