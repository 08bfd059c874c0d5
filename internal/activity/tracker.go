// Package activity tracks the last sign of life of every running session.
//
// The tracker is the shared state between the heartbeat broadcaster (whose
// broadcasts cause clients to reply), the event channel (which absorbs the
// replies), and the reaper (which destroys sessions whose last-seen
// timestamp has lapsed beyond the inactivity threshold). All access goes
// through a single mutex, so any two touches are totally ordered and a reap
// check always observes the most recent touch.
//
// Presence in the map does not imply the workload exists: after a launcher
// restart the map is restored from the snapshot and may lead the cluster
// state. Absence is tolerated by the reaper - it means "no signal yet", not
// inactivity.
package activity

import (
	"sync"
	"time"
)

// Tracker is the process-wide map of fedid to last-seen timestamp.
//
// The zero value is not usable; construct with NewTracker. The mutex is part
// of the tracker, not a process global, so tests run against isolated
// instances.
type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewTracker creates an empty activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
	}
}

// Touch records activity for fedid at the current wall-clock time.
func (t *Tracker) Touch(fedid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[fedid] = time.Now()
}

// Get returns the last-seen timestamp for fedid. The second return value
// reports presence; absence means no signal has been observed yet.
func (t *Tracker) Get(fedid string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastSeen[fedid]
	return ts, ok
}

// Remove deletes the entry for fedid if present. Removing an absent entry is
// not an error.
func (t *Tracker) Remove(fedid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, fedid)
}

// Snapshot returns a shallow copy of the map for persistence.
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[string]time.Time, len(t.lastSeen))
	for fedid, ts := range t.lastSeen {
		snapshot[fedid] = ts
	}
	return snapshot
}

// Merge restores entries from a persisted snapshot. On key collision the
// persisted value wins: the in-memory map starts empty after a restart, so
// anything already present is newer only by accident of ordering during
// startup, and the restore runs before the event channel accepts clients.
func (t *Tracker) Merge(entries map[string]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fedid, ts := range entries {
		t.lastSeen[fedid] = ts
	}
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}
