package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/repotest"
)

func createArticles(t *testing.T, repo simplecms.Repository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateTable(ctx, "articles", []simplecms.Column{
		{Name: "title", Type: simplecms.StorageText},
		{Name: "views", Type: simplecms.StorageInteger},
	}))
	require.NoError(t, repo.InsertFields(ctx, []simplecms.FieldDefinition{
		{Table: "articles", Name: "title", Type: simplecms.FieldText, Role: simplecms.PlainRole{}, Position: 1},
		{Table: "articles", Name: "views", Type: simplecms.FieldNumber, Role: simplecms.PlainRole{}, Position: 2},
	}))
}

func TestMemoryRepository_SchemaOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	createArticles(t, repo)

	t.Run("DuplicateTable", func(t *testing.T) {
		err := repo.CreateTable(ctx, "articles", nil)
		assert.ErrorIs(t, err, simplecms.ErrDuplicateTable)
		assert.ErrorIs(t, err, simplecms.ErrConflict)
	})

	t.Run("TableColumns", func(t *testing.T) {
		cols, err := repo.TableColumns(ctx, "articles")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title", "views"}, cols)

		_, err = repo.TableColumns(ctx, "missing")
		assert.ErrorIs(t, err, simplecms.ErrTableNotFound)
	})

	t.Run("AddColumn", func(t *testing.T) {
		require.NoError(t, repo.AddColumn(ctx, "articles", simplecms.Column{Name: "body", Type: simplecms.StorageText}))
		err := repo.AddColumn(ctx, "articles", simplecms.Column{Name: "body", Type: simplecms.StorageText})
		assert.ErrorIs(t, err, simplecms.ErrDuplicateField)
	})

	t.Run("DuplicateFieldMetadata", func(t *testing.T) {
		err := repo.InsertFields(ctx, []simplecms.FieldDefinition{{Table: "articles", Name: "title", Type: simplecms.FieldText}})
		assert.ErrorIs(t, err, simplecms.ErrDuplicateField)

		fields, err := repo.GetFields(ctx, "articles")
		require.NoError(t, err)
		assert.Len(t, fields, 2)
	})

	t.Run("ListTables", func(t *testing.T) {
		tables, err := repo.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"articles"}, tables)
	})

	t.Run("GetFieldsUnknownTable", func(t *testing.T) {
		fields, err := repo.GetFields(ctx, "cms_languages")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})
}

func TestMemoryRepository_RecordOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	createArticles(t, repo)

	titles := []string{"Banana", "apple", "Cherry"}
	for i, title := range titles {
		id, err := repo.InsertRecord(ctx, "articles", map[string]any{"title": title, "views": int64(10 - i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	t.Run("GetRecord", func(t *testing.T) {
		rec, err := repo.GetRecord(ctx, "articles", 2)
		require.NoError(t, err)
		assert.Equal(t, "apple", rec["title"])

		_, err = repo.GetRecord(ctx, "articles", 99)
		assert.ErrorIs(t, err, simplecms.ErrRecordNotFound)
	})

	t.Run("ListOrdered", func(t *testing.T) {
		recs, err := repo.ListRecords(ctx, "articles", simplecms.RecordQuery{Limit: 10, OrderBy: "views"})
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, []int64{3, 2, 1}, []int64{recs[0].ID(), recs[1].ID(), recs[2].ID()})

		recs, err = repo.ListRecords(ctx, "articles", simplecms.RecordQuery{Limit: 2, Offset: 1, OrderBy: "id", Desc: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 1}, []int64{recs[0].ID(), recs[1].ID()})
	})

	t.Run("Search", func(t *testing.T) {
		recs, err := repo.SearchRecords(ctx, "articles", simplecms.SearchQuery{Columns: []string{"title"}, Term: "AN", Limit: 10})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Banana", recs[0]["title"])
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		require.NoError(t, repo.UpdateRecord(ctx, "articles", 1, map[string]any{"title": "Plantain"}))
		rec, err := repo.GetRecord(ctx, "articles", 1)
		require.NoError(t, err)
		assert.Equal(t, "Plantain", rec["title"])
		assert.Equal(t, int64(10), rec["views"])

		require.NoError(t, repo.DeleteRecord(ctx, "articles", 1))
		assert.ErrorIs(t, repo.DeleteRecord(ctx, "articles", 1), simplecms.ErrRecordNotFound)

		count, err := repo.CountRecords(ctx, "articles")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("IDsAreNotReused", func(t *testing.T) {
		id, err := repo.InsertRecord(ctx, "articles", map[string]any{"title": "Date"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), id)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		rec, err := repo.GetRecord(ctx, "articles", 2)
		require.NoError(t, err)
		rec["title"] = "mutated"

		again, err := repo.GetRecord(ctx, "articles", 2)
		require.NoError(t, err)
		assert.Equal(t, "apple", again["title"])
	})
}

func TestMemoryRepository_WithTx(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(tx simplecms.Repository) error {
			require.NoError(t, tx.CreateTable(ctx, "pages", []simplecms.Column{{Name: "title", Type: simplecms.StorageText}}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.TableColumns(ctx, "pages")
		assert.ErrorIs(t, err, simplecms.ErrTableNotFound)
	})

	t.Run("Commit", func(t *testing.T) {
		err := repo.WithTx(ctx, func(tx simplecms.Repository) error {
			if err := tx.CreateTable(ctx, "pages", []simplecms.Column{{Name: "title", Type: simplecms.StorageText}}); err != nil {
				return err
			}
			return tx.InsertFields(ctx, []simplecms.FieldDefinition{{Table: "pages", Name: "title", Type: simplecms.FieldText, Role: simplecms.PlainRole{}, Position: 1}})
		})
		require.NoError(t, err)

		fields, err := repo.GetFields(ctx, "pages")
		require.NoError(t, err)
		assert.Len(t, fields, 1)
	})
}

func TestMemoryRepository_MediaOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, tags := range [][]string{{"hero"}, {"logo"}, {"hero", "banner"}} {
		asset := &simplecms.MediaAsset{OriginalName: "f.png", Tags: tags, UploadedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, repo.CreateMedia(ctx, asset))
		assert.Equal(t, int64(i+1), asset.ID)
	}

	assets, total, err := repo.ListMedia(ctx, simplecms.MediaQuery{Limit: 10, Tag: "hero"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(3), assets[0].ID, "newest first")

	assets, total, err = repo.ListMedia(ctx, simplecms.MediaQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, assets, 1)
	assert.Equal(t, int64(2), assets[0].ID)

	require.NoError(t, repo.DeleteMedia(ctx, 2))
	_, err = repo.GetMedia(ctx, 2)
	assert.ErrorIs(t, err, simplecms.ErrMediaNotFound)
}

func TestMemoryRepository_Translations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	for _, tr := range []simplecms.Translation{
		{Table: "articles", RecordID: 1, Field: "title", Language: "fr", Value: "Salut"},
		{Table: "articles", RecordID: 1, Field: "title", Language: "de", Value: "Hallo"},
		{Table: "articles", RecordID: 2, Field: "title", Language: "fr", Value: "Bonjour"},
	} {
		require.NoError(t, repo.UpsertTranslation(ctx, &tr))
	}
	require.NoError(t, repo.UpsertTranslation(ctx, &simplecms.Translation{Table: "articles", RecordID: 1, Field: "title", Language: "fr", Value: "Coucou"}))

	got, err := repo.GetTranslation(ctx, "articles", 1, "title", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Coucou", got.Value)

	all, err := repo.ListTranslations(ctx, "articles", 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.DeleteTranslations(ctx, simplecms.TranslationFilter{Table: "articles", RecordID: 1}))
	_, err = repo.GetTranslation(ctx, "articles", 1, "title", "fr")
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	rest, err := repo.ListTranslations(ctx, "articles", 2, "fr")
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestMemoryRepository_Languages(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateLanguage(ctx, &simplecms.Language{Code: "fr", Name: "French"}))
	require.NoError(t, repo.CreateLanguage(ctx, &simplecms.Language{Code: "en", Name: "English", IsDefault: true, IsActive: true}))
	assert.ErrorIs(t, repo.CreateLanguage(ctx, &simplecms.Language{Code: "fr"}), simplecms.ErrDuplicateLanguage)

	langs, err := repo.ListLanguages(ctx)
	require.NoError(t, err)
	require.Len(t, langs, 2)
	assert.Equal(t, "en", langs[0].Code, "default first")

	require.NoError(t, repo.DeleteLanguage(ctx, "fr"))
	_, err = repo.GetLanguage(ctx, "fr")
	assert.ErrorIs(t, err, simplecms.ErrLanguageNotFound)
}

func TestMemoryRepository_Conformance(t *testing.T) {
	repotest.Run(t, memory.New())
}
