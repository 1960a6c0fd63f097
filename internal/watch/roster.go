package watch

import (
	"sort"
	"sync/atomic"
)

// Snapshot maps member name to level. A captured Snapshot is never mutated.
type Snapshot map[string]int

// LevelChange is a strict level increase of a member present in two snapshots.
type LevelChange struct {
	Name string
	From int
	To   int
}

// Diff reports members whose level went up between prev and cur, sorted by name.
// New members, departed members and level decreases produce nothing.
func Diff(prev, cur Snapshot) []LevelChange {
	var out []LevelChange
	for name, to := range cur {
		from, ok := prev[name]
		if ok && to > from {
			out = append(out, LevelChange{Name: name, From: from, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SnapshotStore holds the last known roster. Load and Replace are safe for
// concurrent use; the levels task replaces while the events task reads.
type SnapshotStore struct {
	p atomic.Pointer[Snapshot]
}

// Load returns the current snapshot, or an empty one before the first Replace.
func (s *SnapshotStore) Load() Snapshot {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

func (s *SnapshotStore) Replace(snap Snapshot) {
	if snap == nil {
		snap = Snapshot{}
	}
	s.p.Store(&snap)
}

// Has reports whether name is a member of the current snapshot.
func (s *SnapshotStore) Has(name string) bool {
	_, ok := s.Load()[name]
	return ok
}
