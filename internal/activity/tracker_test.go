package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndGet(t *testing.T) {
	tracker := NewTracker()

	_, ok := tracker.Get("abc12345")
	assert.False(t, ok, "untouched user should be absent")

	before := time.Now()
	tracker.Touch("abc12345")
	after := time.Now()

	ts, ok := tracker.Get("abc12345")
	require.True(t, ok)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}

func TestTouchUpdatesTimestamp(t *testing.T) {
	tracker := NewTracker()

	tracker.Touch("abc12345")
	first, _ := tracker.Get("abc12345")

	time.Sleep(10 * time.Millisecond)
	tracker.Touch("abc12345")
	second, _ := tracker.Get("abc12345")

	assert.True(t, second.After(first), "second touch must be newer")
	assert.Equal(t, 1, tracker.Len(), "at most one entry per fedid")
}

func TestRemove(t *testing.T) {
	tracker := NewTracker()
	tracker.Touch("abc12345")

	tracker.Remove("abc12345")
	_, ok := tracker.Get("abc12345")
	assert.False(t, ok)

	// Removing an absent entry is not an error.
	tracker.Remove("abc12345")
	tracker.Remove("neverexisted")
}

func TestSnapshotIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Touch("u1")
	tracker.Touch("u2")

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)

	// Mutating the snapshot must not affect the tracker.
	delete(snapshot, "u1")
	_, ok := tracker.Get("u1")
	assert.True(t, ok)
}

func TestMergePrefersPersistedValues(t *testing.T) {
	tracker := NewTracker()
	tracker.Touch("u1")

	persisted := time.Now().Add(-48 * time.Hour)
	tracker.Merge(map[string]time.Time{
		"u1": persisted,
		"u2": persisted,
	})

	ts, ok := tracker.Get("u1")
	require.True(t, ok)
	assert.True(t, ts.Equal(persisted), "persisted value wins on collision")

	ts, ok = tracker.Get("u2")
	require.True(t, ok)
	assert.True(t, ts.Equal(persisted))
}

// TestConcurrentAccess exercises the tracker from many goroutines; run with
// the race detector this verifies that every operation goes through the
// mutex and observes a total order.
func TestConcurrentAccess(t *testing.T) {
	tracker := NewTracker()
	users := []string{"u1", "u2", "u3", "u4"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				user := users[(n+j)%len(users)]
				switch j % 4 {
				case 0:
					tracker.Touch(user)
				case 1:
					tracker.Get(user)
				case 2:
					tracker.Snapshot()
				case 3:
					if j%40 == 3 {
						tracker.Remove(user)
					} else {
						tracker.Touch(user)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	// A final touch must always be observable afterwards.
	tracker.Touch("u1")
	_, ok := tracker.Get("u1")
	assert.True(t, ok)
}
