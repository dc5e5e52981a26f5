// Package repotest holds the behavior every simplecms.Repository must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Run exercises repo. Names are suffixed so the suite can share a database
// with other runs.
func Run(t *testing.T, repo simplecms.Repository) {
	suffix := fmt.Sprintf("%09d", time.Now().UnixNano()%1_000_000_000)
	ctx := context.Background()

	t.Run("Schema", func(t *testing.T) { testSchema(ctx, t, repo, "posts_"+suffix) })
	t.Run("Records", func(t *testing.T) { testRecords(ctx, t, repo, "items_"+suffix) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(ctx, t, repo, "drafts_"+suffix) })
	t.Run("Media", func(t *testing.T) { testMedia(ctx, t, repo, "tag"+suffix) })
	t.Run("Languages", func(t *testing.T) { testLanguages(ctx, t, repo, "x"+suffix[:4]) })
	t.Run("Translations", func(t *testing.T) { testTranslations(ctx, t, repo, "notes_"+suffix) })
}

func createTable(ctx context.Context, t *testing.T, repo simplecms.Repository, name string) {
	t.Helper()
	require.NoError(t, repo.CreateTable(ctx, name, []simplecms.Column{
		{Name: "title", Type: simplecms.StorageText},
		{Name: "rank", Type: simplecms.StorageInteger},
		{Name: "published", Type: simplecms.StorageBoolean},
	}))
	require.NoError(t, repo.InsertFields(ctx, []simplecms.FieldDefinition{
		{Table: name, Name: "title", Type: simplecms.FieldText, Role: simplecms.PlainRole{}, Position: 1, CreatedAt: time.Now().UTC()},
		{Table: name, Name: "rank", Type: simplecms.FieldNumber, Role: simplecms.PlainRole{}, Position: 2, CreatedAt: time.Now().UTC()},
		{Table: name, Name: "published", Type: simplecms.FieldBoolean, Role: simplecms.PlainRole{}, Position: 3, CreatedAt: time.Now().UTC()},
	}))
}

func testSchema(ctx context.Context, t *testing.T, repo simplecms.Repository, name string) {
	createTable(ctx, t, repo, name)

	err := repo.CreateTable(ctx, name, []simplecms.Column{{Name: "x", Type: simplecms.StorageText}})
	assert.ErrorIs(t, err, simplecms.ErrConflict)

	require.NoError(t, repo.AddColumn(ctx, name, simplecms.Column{Name: "cover", Type: simplecms.StorageInteger}))
	err = repo.AddColumn(ctx, name, simplecms.Column{Name: "cover", Type: simplecms.StorageInteger})
	assert.ErrorIs(t, err, simplecms.ErrDuplicateField)

	cols, err := repo.TableColumns(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "rank", "published", "cover"}, cols)

	require.NoError(t, repo.InsertFields(ctx, []simplecms.FieldDefinition{{
		Table: name, Name: "cover", Type: simplecms.FieldMedia,
		Role: simplecms.MediaRole{Arity: simplecms.MediaSingle}, Position: 4, CreatedAt: time.Now().UTC(),
	}}))
	err = repo.InsertFields(ctx, []simplecms.FieldDefinition{{
		Table: name, Name: "cover", Type: simplecms.FieldMedia, Position: 5, CreatedAt: time.Now().UTC(),
	}})
	assert.ErrorIs(t, err, simplecms.ErrDuplicateField)

	fields, err := repo.GetFields(ctx, name)
	require.NoError(t, err)
	require.Len(t, fields, 4)
	assert.Equal(t, "cover", fields[3].Name)
	assert.Equal(t, simplecms.MediaRole{Arity: simplecms.MediaSingle}, fields[3].Role)
	assert.Equal(t, simplecms.PlainRole{}, fields[0].Role)

	tables, err := repo.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, name)

	none, err := repo.GetFields(ctx, simplecms.LanguagesTable)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.TableColumns(ctx, name+"_missing")
	assert.ErrorIs(t, err, simplecms.ErrTableNotFound)
}

func testRecords(ctx context.Context, t *testing.T, repo simplecms.Repository, name string) {
	createTable(ctx, t, repo, name)

	for i, title := range []string{"Gamma", "alpha", "Beta 100%"} {
		id, err := repo.InsertRecord(ctx, name, map[string]any{"title": title, "rank": int64(i), "published": i%2 == 0})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	rec, err := repo.GetRecord(ctx, name, 2)
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec["title"])

	_, err = repo.GetRecord(ctx, name, 42)
	assert.ErrorIs(t, err, simplecms.ErrRecordNotFound)
	_, err = repo.GetRecord(ctx, name+"_missing", 1)
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	count, err := repo.CountRecords(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	recs, err := repo.ListRecords(ctx, name, simplecms.RecordQuery{Limit: 2, OrderBy: "rank", Desc: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].ID())
	assert.Equal(t, int64(2), recs[1].ID())

	ties := []struct {
		desc bool
		want []int64
	}{
		{desc: true, want: []int64{3, 1, 2}},
		{desc: false, want: []int64{2, 1, 3}},
	}
	for _, tt := range ties {
		recs, err = repo.ListRecords(ctx, name, simplecms.RecordQuery{Limit: 10, OrderBy: "published", Desc: tt.desc})
		require.NoError(t, err)
		ids := make([]int64, len(recs))
		for i, r := range recs {
			ids[i] = r.ID()
		}
		assert.Equal(t, tt.want, ids, "ties on published break on id, desc=%v", tt.desc)
	}

	recs, err = repo.ListRecords(ctx, name, simplecms.RecordQuery{Limit: 10, Offset: 2, OrderBy: "id"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].ID())

	found, err := repo.SearchRecords(ctx, name, simplecms.SearchQuery{Columns: []string{"title"}, Term: "ALPHA", Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(2), found[0].ID())

	found, err = repo.SearchRecords(ctx, name, simplecms.SearchQuery{Columns: []string{"title"}, Term: "0%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1, "wildcards in the term match literally")

	require.NoError(t, repo.UpdateRecord(ctx, name, 1, map[string]any{"title": "Delta"}))
	rec, err = repo.GetRecord(ctx, name, 1)
	require.NoError(t, err)
	assert.Equal(t, "Delta", rec["title"])
	assert.ErrorIs(t, repo.UpdateRecord(ctx, name, 42, map[string]any{"title": "x"}), simplecms.ErrRecordNotFound)

	require.NoError(t, repo.DeleteRecord(ctx, name, 1))
	assert.ErrorIs(t, repo.DeleteRecord(ctx, name, 1), simplecms.ErrRecordNotFound)

	id, err := repo.InsertRecord(ctx, name, map[string]any{"title": "Epsilon"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), id, "ids are never reused")
}

func testTransactions(ctx context.Context, t *testing.T, repo simplecms.Repository, name string) {
	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx simplecms.Repository) error {
		if err := tx.CreateTable(ctx, name, []simplecms.Column{{Name: "title", Type: simplecms.StorageText}}); err != nil {
			return err
		}
		if err := tx.InsertFields(ctx, []simplecms.FieldDefinition{{Table: name, Name: "title", Type: simplecms.FieldText, Role: simplecms.PlainRole{}, Position: 1, CreatedAt: time.Now().UTC()}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.TableColumns(ctx, name)
	assert.ErrorIs(t, err, simplecms.ErrTableNotFound, "DDL rolled back")
	fields, err := repo.GetFields(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, fields, "metadata rolled back")

	err = repo.WithTx(ctx, func(tx simplecms.Repository) error {
		return tx.CreateTable(ctx, name, []simplecms.Column{{Name: "title", Type: simplecms.StorageText}})
	})
	require.NoError(t, err)
	_, err = repo.TableColumns(ctx, name)
	assert.NoError(t, err)
}

func testMedia(ctx context.Context, t *testing.T, repo simplecms.Repository, tag string) {
	base := time.Now().UTC().Truncate(time.Second)
	var ids []int64
	for i := 0; i < 3; i++ {
		tags := []string{"other"}
		if i != 1 {
			tags = []string{tag, "other"}
		}
		asset := &simplecms.MediaAsset{
			StoredName:   fmt.Sprintf("s%d.png", i),
			OriginalName: fmt.Sprintf("o%d.png", i),
			Path:         fmt.Sprintf("uploads/s%d.png", i),
			MimeType:     "image/png",
			SizeBytes:    int64(100 + i),
			Tags:         tags,
			UploadedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.CreateMedia(ctx, asset))
		require.NotZero(t, asset.ID)
		ids = append(ids, asset.ID)
	}

	got, err := repo.GetMedia(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "o0.png", got.OriginalName)
	assert.Equal(t, []string{tag, "other"}, got.Tags)
	assert.True(t, base.Equal(got.UploadedAt))

	assets, total, err := repo.ListMedia(ctx, simplecms.MediaQuery{Limit: 10, Tag: tag})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, assets, 2)
	assert.Equal(t, ids[2], assets[0].ID, "newest first")

	require.NoError(t, repo.DeleteMedia(ctx, ids[1]))
	_, err = repo.GetMedia(ctx, ids[1])
	assert.ErrorIs(t, err, simplecms.ErrMediaNotFound)
	assert.ErrorIs(t, repo.DeleteMedia(ctx, ids[1]), simplecms.ErrMediaNotFound)
}

func testLanguages(ctx context.Context, t *testing.T, repo simplecms.Repository, code string) {
	lang := &simplecms.Language{Code: code, Name: "Test", NativeName: "Test", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateLanguage(ctx, lang))
	assert.ErrorIs(t, repo.CreateLanguage(ctx, lang), simplecms.ErrDuplicateLanguage)

	lang.IsActive = true
	require.NoError(t, repo.UpdateLanguage(ctx, lang))
	got, err := repo.GetLanguage(ctx, code)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsDefault)

	langs, err := repo.ListLanguages(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, langs)

	require.NoError(t, repo.DeleteLanguage(ctx, code))
	_, err = repo.GetLanguage(ctx, code)
	assert.ErrorIs(t, err, simplecms.ErrLanguageNotFound)
	assert.ErrorIs(t, repo.UpdateLanguage(ctx, lang), simplecms.ErrLanguageNotFound)
}

func testTranslations(ctx context.Context, t *testing.T, repo simplecms.Repository, table string) {
	now := time.Now().UTC().Truncate(time.Second)
	put := func(id int64, field, lang, value string) {
		require.NoError(t, repo.UpsertTranslation(ctx, &simplecms.Translation{
			Table: table, RecordID: id, Field: field, Language: lang, Value: value, UpdatedAt: now,
		}))
	}
	put(1, "title", "fr", "Salut")
	put(1, "body", "fr", "Monde")
	put(1, "title", "de", "Hallo")
	put(2, "title", "fr", "Bonjour")
	put(1, "title", "fr", "Coucou")

	got, err := repo.GetTranslation(ctx, table, 1, "title", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Coucou", got.Value)
	assert.True(t, now.Equal(got.UpdatedAt))

	_, err = repo.GetTranslation(ctx, table, 1, "title", "es")
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	fr, err := repo.ListTranslations(ctx, table, 1, "fr")
	require.NoError(t, err)
	assert.Len(t, fr, 2)

	all, err := repo.ListTranslations(ctx, table, 1, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "de", all[0].Language)

	require.NoError(t, repo.DeleteTranslations(ctx, simplecms.TranslationFilter{Table: table, RecordID: 1}))
	left, err := repo.ListTranslations(ctx, table, 1, "")
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := repo.ListTranslations(ctx, table, 2, "fr")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	require.NoError(t, repo.DeleteTranslations(ctx, simplecms.TranslationFilter{Language: "fr", Table: table}))
	other, err = repo.ListTranslations(ctx, table, 2, "")
	require.NoError(t, err)
	assert.Empty(t, other)
}
