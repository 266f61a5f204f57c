package highlightcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "highlights.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestStore_AddAndHas(t *testing.T) {
	store, _ := newTestStore(t)

	has, err := store.Has("abc123")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Add("abc123", "trial.epub", "page-1"))

	has, err = store.Has("abc123")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_AddIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Add("abc123", "trial.epub", "page-1"))
	require.NoError(t, store.Add("abc123", "trial.epub", "page-2"))

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_ForBookAndClearBook(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Add("h1", "trial.epub", "page-1"))
	require.NoError(t, store.Add("h2", "trial.epub", "page-1"))
	require.NoError(t, store.Add("h3", "castle.epub", "page-2"))

	hashes, err := store.ForBook("trial.epub")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h1", "h2"}, hashes)

	require.NoError(t, store.ClearBook("trial.epub"))

	hashes, err = store.ForBook("trial.epub")
	require.NoError(t, err)
	assert.Empty(t, hashes)

	// Other books are untouched.
	hashes, err = store.ForBook("castle.epub")
	require.NoError(t, err)
	assert.Equal(t, []string{"h3"}, hashes)
}

func TestStore_ApplyBatch(t *testing.T) {
	store, _ := newTestStore(t)

	entries := []Entry{
		{HighlightHash: "h1", BookID: "trial.epub", NotionPageID: "page-1"},
		{HighlightHash: "h2", BookID: "trial.epub", NotionPageID: "page-1"},
	}
	require.NoError(t, store.ApplyBatch(entries))

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.NoError(t, store.ApplyBatch(nil), "empty batch is a no-op")
}

func TestValidate_MissingDatabaseIsValid(t *testing.T) {
	result := Validate(filepath.Join(t.TempDir(), "nope.db"))
	assert.True(t, result.Valid)
	assert.Zero(t, result.EntryCount)
}

func TestValidate_HealthyCache(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.Add("h1", "trial.epub", "page-1"))
	require.NoError(t, store.Close())

	result := Validate(path)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(1), result.EntryCount)
	assert.Greater(t, result.SizeBytes, int64(0))
}

func TestValidate_DetectsGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "highlights.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database at all"), 0644))

	result := Validate(path)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Reason)
}

func TestRebuild_ReplacesCorruptedCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "highlights.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	store, err := Rebuild(path)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.True(t, Validate(path).Valid)
}
