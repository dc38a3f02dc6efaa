package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludex-app/ludex/internal/core/domain"
)

func newTestCatalog(t *testing.T) (*Catalog, *Registry) {
	t.Helper()
	r := NewRegistry(memoryOpener, testPaths, nil)
	t.Cleanup(func() { r.CloseAll() })
	return NewCatalog(r, &recordingNotifier{}), r
}

func TestCatalog_SetValue_CreatesDocumentWithNestedPath(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "metadata.name", "Foo"))

	v, err := c.GetValue(ctx, domain.DBGame, "g1", "metadata.name", "")
	require.NoError(t, err)
	assert.Equal(t, "Foo", v)

	whole, err := c.GetValue(ctx, domain.DBGame, "g1", "#all", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":       "g1",
		"metadata": map[string]any{"name": "Foo"},
	}, whole)
}

func TestCatalog_GetValue_DefaultWritesThrough(t *testing.T) {
	c, r := newTestCatalog(t)
	ctx := context.Background()

	v, err := c.GetValue(ctx, domain.DBConfig, "settings", "theme.mode", "dark")
	require.NoError(t, err)
	assert.Equal(t, "dark", v)

	// The default was persisted, not just returned.
	store, err := r.Store(domain.DBConfig)
	require.NoError(t, err)
	doc, err := store.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": map[string]any{"mode": "dark"}}, doc.Body)

	// A second read with a different default sees the stored value.
	v, err = c.GetValue(ctx, domain.DBConfig, "settings", "theme.mode", "light")
	require.NoError(t, err)
	assert.Equal(t, "dark", v)
}

func TestCatalog_GetValue_AllMissingDocPersistsShell(t *testing.T) {
	c, r := newTestCatalog(t)
	ctx := context.Background()

	// A whole-document read with a non-object default returns the default
	// and leaves an empty shell behind.
	v, err := c.GetValue(ctx, domain.DBGame, "g1", "#all", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	store, err := r.Store(domain.DBGame)
	require.NoError(t, err)
	doc, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, doc.Body)

	// The shell is a real document now.
	whole, err := c.GetValue(ctx, domain.DBGame, "g1", "#all", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "g1"}, whole)

	// An object default seeds the new document's fields.
	whole, err = c.GetValue(ctx, domain.DBGame, "g2", "#all", map[string]any{"name": "Foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Foo"}, whole)
	doc, err = store.Get(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Foo"}, doc.Body)
}

func TestCatalog_SetValue_AllReplacesBody(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "#all", map[string]any{"a": 1}))
	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "#all", map[string]any{"b": 2}))

	whole, err := c.GetValue(ctx, domain.DBGame, "g1", "#all", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "g1", "a": 1, "b": 2}, whole)
}

func TestCatalog_DeleteSentinel_Tombstones(t *testing.T) {
	c, r := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "name", "Foo"))
	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "#all", "#delete"))

	store, err := r.Store(domain.DBGame)
	require.NoError(t, err)
	_, err = store.Get(ctx, "g1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	docs, err := c.GetAllDocs(ctx, domain.DBGame)
	require.NoError(t, err)
	assert.NotContains(t, docs, "g1")
}

func TestCatalog_SetValue_WholeDatabase(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	payload := map[string]any{
		"g1": map[string]any{"name": "Foo"},
		"g2": map[string]any{"name": "Bar"},
	}
	require.NoError(t, c.SetValue(ctx, domain.DBGame, "#all", "#all", payload))

	docs, err := c.GetAllDocs(ctx, domain.DBGame)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Foo", docs["g1"]["name"])
	assert.Equal(t, "Bar", docs["g2"]["name"])
}

func TestCatalog_SetAllDocs_MergeAndCreate(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, domain.DBGame, "a", "keep", true))
	require.NoError(t, c.SetAllDocs(ctx, domain.DBGame, []map[string]any{
		{"id": "a", "x": 1},
		{"y": 2},
	}))

	docs, err := c.GetAllDocs(ctx, domain.DBGame)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Existing document merged, prior fields preserved.
	assert.Equal(t, true, docs["a"]["keep"])
	assert.Equal(t, 1, docs["a"]["x"])

	// The id-less entry got a fresh ID.
	for id, doc := range docs {
		if id == "a" {
			continue
		}
		assert.Equal(t, 2, doc["y"])
		assert.Equal(t, id, doc["id"])
	}
}

func TestCatalog_Upsert_ConcurrentIncrements(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Upsert(ctx, domain.DBGame, "counter", func(doc *domain.Document) error {
				n, _ := doc.Body["count"].(int)
				doc.Body["count"] = n + 1
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	v, err := c.GetValue(ctx, domain.DBGame, "counter", "count", 0)
	require.NoError(t, err)
	assert.Equal(t, writers, v)
}

func TestCatalog_RemoveDoc_Idempotent(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	assert.NoError(t, c.RemoveDoc(ctx, domain.DBGame, "never-existed"))

	require.NoError(t, c.SetValue(ctx, domain.DBGame, "g1", "name", "Foo"))
	assert.NoError(t, c.RemoveDoc(ctx, domain.DBGame, "g1"))
	assert.NoError(t, c.RemoveDoc(ctx, domain.DBGame, "g1"))
}

func TestCatalog_UnknownDatabase(t *testing.T) {
	c, _ := newTestCatalog(t)

	err := c.SetValue(context.Background(), "nope", "g1", "a", 1)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestCatalog_Attachments(t *testing.T) {
	r := NewRegistry(memoryOpener, testPaths, nil)
	t.Cleanup(func() { r.CloseAll() })
	notifier := &recordingNotifier{}
	c := NewCatalog(r, notifier)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	require.NoError(t, c.PutAttachment(ctx, domain.DBGame, "g1", "cover", png, ""))

	att, err := c.GetAttachment(ctx, domain.DBGame, "g1", "cover")
	require.NoError(t, err)
	assert.Equal(t, png, att.Data)
	assert.Equal(t, "image/png", att.ContentType)

	names, err := c.ListAttachmentNames(ctx, domain.DBGame, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cover"}, names)

	ok, err := c.CheckAttachment(ctx, domain.DBGame, "g1", "cover")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.RemoveAttachment(ctx, domain.DBGame, "g1", "cover"))
	ok, err = c.CheckAttachment(ctx, domain.DBGame, "g1", "cover")
	require.NoError(t, err)
	assert.False(t, ok)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.attachments, 2)
	assert.Equal(t, "cover", notifier.attachments[0].AttachmentID)
}
