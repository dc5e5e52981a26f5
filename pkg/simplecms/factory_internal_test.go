package simplecms

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("articles")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)

	// Distinct keys do not block each other.
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()

	k.mu.Lock()
	assert.Empty(t, k.locks)
	k.mu.Unlock()
}

func TestBuildField(t *testing.T) {
	now := time.Now()

	def, err := buildField("posts", FieldSpec{Name: "Author", Type: "relation", ForeignTable: "People", ForeignDisplayColumn: "Full Name"}, 4, now)
	require.NoError(t, err)
	assert.Equal(t, "author", def.Name)
	assert.Equal(t, FieldForeignKey, def.Type)
	assert.Equal(t, ForeignKeyRole{Table: "people", DisplayColumn: "full_name"}, def.Role)
	assert.Equal(t, 4, def.Position)
	assert.Equal(t, StorageInteger, def.StorageType())

	_, err = buildField("posts", FieldSpec{Name: "owner", Type: "foreign_key", ForeignTable: "cms_fields"}, 1, now)
	assert.ErrorIs(t, err, ErrReservedTable)

	for _, name := range []string{"id", "translations", "language", "cover_media", "author_data"} {
		_, err := buildField("posts", FieldSpec{Name: name, Type: "text"}, 1, now)
		assert.ErrorIs(t, err, ErrInvalidFieldName, name)
	}
}
