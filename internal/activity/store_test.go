package activity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all_sessions_activity.json")
	store := NewStore(path)

	entries := map[string]time.Time{
		"u1": time.Now().Add(-time.Hour).Truncate(time.Second),
		"u2": time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Write(entries))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for user, ts := range entries {
		assert.True(t, loaded[user].Equal(ts), "timestamp for %s must survive the round trip", user)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))

	loaded, err := store.Load()
	require.NoError(t, err, "a missing snapshot is not an error")
	assert.Empty(t, loaded)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestStoreWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.json")
	store := NewStore(path)

	require.NoError(t, store.Write(map[string]time.Time{"u1": time.Now()}))
	require.NoError(t, store.Write(map[string]time.Time{"u2": time.Now()}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.NotContains(t, loaded, "u1")
	assert.Contains(t, loaded, "u2")
}

func TestStoreWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "activity.json"))

	require.NoError(t, store.Write(map[string]time.Time{"u1": time.Now()}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "activity.json", files[0].Name())
}

// TestRestartMerge models a launcher restart: a snapshot written by the
// previous process is visible through a fresh tracker after the merge.
func TestRestartMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.json")

	t1 := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	t2 := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, NewStore(path).Write(map[string]time.Time{"u1": t1, "u2": t2}))

	// "Restart": new tracker, new store over the same file.
	tracker := NewTracker()
	loaded, err := NewStore(path).Load()
	require.NoError(t, err)
	tracker.Merge(loaded)

	ts, ok := tracker.Get("u1")
	require.True(t, ok)
	assert.True(t, ts.Equal(t1))
	ts, ok = tracker.Get("u2")
	require.True(t, ok)
	assert.True(t, ts.Equal(t2))
}
