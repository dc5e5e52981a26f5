package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

func newTestService(t *testing.T) simplecms.Service {
	t.Helper()
	svc, err := simplecms.New(simplecms.WithRepository(memory.New()))
	require.NoError(t, err)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc
}

// run executes cmsctl with args against svc and returns stdout.
func run(t *testing.T, svc simplecms.Service, args ...string) (string, error) {
	t.Helper()
	open := func(ctx context.Context, c *cli) (simplecms.Service, func() error, error) {
		return svc, func() error { return nil }, nil
	}
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseFieldSpec(t *testing.T) {
	tests := []struct {
		raw     string
		want    simplecms.FieldSpec
		wantErr bool
	}{
		{"title:string", simplecms.FieldSpec{Name: "title", Type: "string"}, false},
		{"author:foreign_key:authors", simplecms.FieldSpec{Name: "author", Type: "foreign_key", ForeignTable: "authors"}, false},
		{"author:foreign_key:authors:name", simplecms.FieldSpec{Name: "author", Type: "foreign_key", ForeignTable: "authors", ForeignDisplayColumn: "name"}, false},
		{"title", simplecms.FieldSpec{}, true},
		{":string", simplecms.FieldSpec{}, true},
		{"a:b:c:d:e", simplecms.FieldSpec{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseFieldSpec(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTablesCommands(t *testing.T) {
	svc := newTestService(t)

	out, err := run(t, svc, "tables", "create", "authors", "--field", "name:string")
	require.NoError(t, err)
	assert.Contains(t, out, "Table: authors")

	out, err = run(t, svc, "tables", "create", "posts", "-f", "title:string", "-f", "cover:image", "-f", "author:foreign_key:authors:name")
	require.NoError(t, err)
	assert.Contains(t, out, "media (single)")
	assert.Contains(t, out, "-> authors.name")

	_, err = run(t, svc, "tables", "add-field", "posts", "published:boolean")
	require.NoError(t, err)

	out, err = run(t, svc, "tables", "list")
	require.NoError(t, err)
	assert.Equal(t, "authors\nposts\n", out)

	out, err = run(t, svc, "--json", "tables", "describe", "posts")
	require.NoError(t, err)
	var def struct {
		Name   string `json:"name"`
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &def))
	assert.Equal(t, "posts", def.Name)
	assert.Len(t, def.Fields, 4)

	_, err = run(t, svc, "tables", "describe", "missing")
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	_, err = run(t, svc, "tables", "create", "authors", "--field", "name:string")
	assert.ErrorIs(t, err, simplecms.ErrConflict)
}

func TestLanguagesCommands(t *testing.T) {
	svc := newTestService(t)

	_, err := run(t, svc, "languages", "add", "fr", "French", "--native", "Français")
	require.NoError(t, err)
	_, err = run(t, svc, "languages", "add", "de", "German", "--inactive")
	require.NoError(t, err)

	out, err := run(t, svc, "languages", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Français")
	assert.NotContains(t, out, "German")

	out, err = run(t, svc, "langs", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "German")

	_, err = run(t, svc, "languages", "default", "fr")
	require.NoError(t, err)
	lang, err := svc.GetLanguage(context.Background(), "fr")
	require.NoError(t, err)
	assert.True(t, lang.IsDefault)

	_, err = run(t, svc, "languages", "toggle", "de", "--active=true")
	require.NoError(t, err)
	lang, err = svc.GetLanguage(context.Background(), "de")
	require.NoError(t, err)
	assert.True(t, lang.IsActive)

	_, err = run(t, svc, "languages", "delete", "de")
	require.NoError(t, err)
	_, err = svc.GetLanguage(context.Background(), "de")
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
}

func TestSeedCommand(t *testing.T) {
	svc := newTestService(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
languages:
  - code: es
    name: Spanish
    active: true
tables:
  - name: pages
    fields:
      - name: title
        type: string
`), 0o644))

	out, err := run(t, svc, "seed", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tables created: 1")

	out, err = run(t, svc, "seed", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tables created: 0")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("CMS_JWT_SECRET", "test-secret")
	t.Setenv("CMS_CONFIG_FILE", "")

	out, err := run(t, nil, "token", "--subject", "ops")
	require.NoError(t, err)

	token, err := api.NewAdminAuth("test-secret").Decode(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", token.Subject())
	admin, ok := token.Get(api.AdminClaim)
	assert.True(t, ok)
	assert.Equal(t, true, admin)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	t.Setenv("CMS_JWT_SECRET", "")
	t.Setenv("CMS_CONFIG_FILE", "")

	_, err := run(t, nil, "token")
	assert.Error(t, err)
}
