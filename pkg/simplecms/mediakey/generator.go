package mediakey

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key names an uploaded file: the name it is stored under and the full object
// key handed to the blob store.
type Key struct {
	StoredName string
	ObjectKey  string
}

// Generator defines the interface for media key generation strategies
type Generator interface {
	// Generate derives a fresh key for a file uploaded at uploadedAt
	Generate(originalName string, uploadedAt time.Time) Key
}

// storedName returns a random name keeping the original extension.
func storedName(id uuid.UUID, originalName string) string {
	ext := strings.ToLower(path.Ext(sanitizeFilename(originalName)))
	if len(ext) > 10 {
		ext = ""
	}
	return strings.ReplaceAll(id.String(), "-", "") + ext
}

// DatedGenerator lays uploads out by upload month:
// uploads/2024/05/3f2a...e1.jpg
type DatedGenerator struct {
	Prefix string
}

func NewDatedGenerator() *DatedGenerator {
	return &DatedGenerator{Prefix: "uploads"}
}

func (g *DatedGenerator) Generate(originalName string, uploadedAt time.Time) Key {
	name := storedName(uuid.New(), originalName)
	return Key{
		StoredName: name,
		ObjectKey:  fmt.Sprintf("%s/%04d/%02d/%s", g.Prefix, uploadedAt.Year(), int(uploadedAt.Month()), name),
	}
}

// GitLikeGenerator provides Git-style sharded storage
// media/objects/ab/cd1234ef5678_filename.jpg
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{ShardLength: 2}
}

func (g *GitLikeGenerator) Generate(originalName string, uploadedAt time.Time) Key {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")

	shard := g.ShardLength
	if shard <= 0 || shard > len(hex) {
		shard = 2
	}
	filename := hex[shard:]
	if clean := sanitizeFilename(originalName); clean != "" {
		filename = fmt.Sprintf("%s_%s", filename, clean)
	}
	return Key{
		StoredName: storedName(id, originalName),
		ObjectKey:  fmt.Sprintf("media/objects/%s/%s", hex[:shard], filename),
	}
}

// FuncGenerator allows users to provide their own key generation function
type FuncGenerator func(originalName string, uploadedAt time.Time) Key

func (f FuncGenerator) Generate(originalName string, uploadedAt time.Time) Key {
	return f(originalName, uploadedAt)
}

// New returns the generator registered under name: "dated" or "git-like".
func New(name string) (Generator, error) {
	switch strings.ToLower(name) {
	case "", "dated":
		return NewDatedGenerator(), nil
	case "git-like", "gitlike":
		return NewGitLikeGenerator(), nil
	}
	return nil, fmt.Errorf("unknown media key generator: %s", name)
}

// sanitizeFilename replaces characters that are unsafe in object keys
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(strings.TrimSpace(filename))
}
