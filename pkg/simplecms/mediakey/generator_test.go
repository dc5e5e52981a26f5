package mediakey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatedGenerator(t *testing.T) {
	gen := NewDatedGenerator()
	at := time.Date(2024, time.May, 3, 10, 0, 0, 0, time.UTC)

	key := gen.Generate("Holiday Photo.JPG", at)

	assert.True(t, strings.HasPrefix(key.ObjectKey, "uploads/2024/05/"), key.ObjectKey)
	assert.True(t, strings.HasSuffix(key.StoredName, ".jpg"), key.StoredName)
	assert.Len(t, key.StoredName, 32+len(".jpg"))
	assert.Equal(t, "uploads/2024/05/"+key.StoredName, key.ObjectKey)
}

func TestDatedGenerator_Unique(t *testing.T) {
	gen := NewDatedGenerator()
	at := time.Now()

	a := gen.Generate("a.png", at)
	b := gen.Generate("a.png", at)
	assert.NotEqual(t, a.ObjectKey, b.ObjectKey)
}

func TestGitLikeGenerator(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		contains []string
	}{
		{name: "plain", file: "document.pdf", contains: []string{"media/objects/", "_document.pdf"}},
		{name: "unsafe characters", file: "a/b:c?.txt", contains: []string{"_a_b_c_.txt"}},
		{name: "no filename", file: "", contains: []string{"media/objects/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewGitLikeGenerator().Generate(tt.file, time.Now())
			for _, part := range tt.contains {
				assert.Contains(t, key.ObjectKey, part)
			}
			parts := strings.Split(key.ObjectKey, "/")
			require.Len(t, parts, 4)
			assert.Len(t, parts[2], 2)
		})
	}
}

func TestFuncGenerator(t *testing.T) {
	gen := FuncGenerator(func(name string, at time.Time) Key {
		return Key{StoredName: name, ObjectKey: "custom/" + name}
	})
	assert.Equal(t, Key{StoredName: "x.txt", ObjectKey: "custom/x.txt"}, gen.Generate("x.txt", time.Now()))
}

func TestNew(t *testing.T) {
	gen, err := New("git-like")
	require.NoError(t, err)
	assert.IsType(t, &GitLikeGenerator{}, gen)

	gen, err = New("")
	require.NoError(t, err)
	assert.IsType(t, &DatedGenerator{}, gen)

	_, err = New("bogus")
	assert.Error(t, err)
}
