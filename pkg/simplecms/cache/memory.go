// Package cache provides SchemaCache implementations.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

type entry struct {
	fields  []simplecms.FieldDefinition
	expires time.Time
}

// Memory is an in-process schema cache. Entries expire after ttl; a zero
// ttl keeps them until invalidated.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]entry
	versions map[string]uint64
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory creates an in-process schema cache
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]entry),
		versions: make(map[string]uint64),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, table string) ([]simplecms.FieldDefinition, bool) {
	m.mu.RLock()
	e, ok := m.entries[table]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[table]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, table)
		}
		m.mu.Unlock()
		return nil, false
	}
	return slices.Clone(e.fields), true
}

func (m *Memory) Version(ctx context.Context, table string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[table], true
}

// Set is a no-op when table was invalidated after version was taken.
func (m *Memory) Set(ctx context.Context, table string, version uint64, fields []simplecms.FieldDefinition) {
	e := entry{fields: slices.Clone(fields)}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[table] != version {
		return
	}
	m.entries[table] = e
}

func (m *Memory) Invalidate(ctx context.Context, table string) {
	m.mu.Lock()
	delete(m.entries, table)
	m.versions[table]++
	m.mu.Unlock()
}
