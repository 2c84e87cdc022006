package snapshot

import "sort"

// Change classifies one identity across two snapshots.
type Change int

// Classification of an identity present in either snapshot.
const (
	Unchanged Change = iota
	Added
	Modified
	Removed
)

// String returns the lowercase name of the change.
func (c Change) String() string {
	switch c {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Entry is the classification of one identity. Record is the current
// record (nil for Removed); Prev is the previous record (nil for Added).
type Entry struct {
	Key    string
	Change Change
	Record *Record
	Prev   *Record
}

// Result is the full classification of two snapshots. Entries are sorted
// by identity key; every identity present in either snapshot appears
// exactly once.
type Result struct {
	Entries []Entry
}

// Diff compares a previous snapshot to a current one. It is pure: both
// snapshots are read only, and the result is deterministic given the
// inputs.
func Diff(previous, current *Snapshot) *Result {
	res := &Result{}

	for _, key := range current.Keys() {
		cur, _ := current.Get(key)
		prev, ok := previous.Get(key)
		switch {
		case !ok:
			res.Entries = append(res.Entries, Entry{Key: key, Change: Added, Record: cur})
		case prev.Hash != cur.Hash:
			res.Entries = append(res.Entries, Entry{Key: key, Change: Modified, Record: cur, Prev: prev})
		default:
			res.Entries = append(res.Entries, Entry{Key: key, Change: Unchanged, Record: cur, Prev: prev})
		}
	}

	for _, key := range previous.Keys() {
		if _, ok := current.Get(key); !ok {
			prev, _ := previous.Get(key)
			res.Entries = append(res.Entries, Entry{Key: key, Change: Removed, Prev: prev})
		}
	}

	sort.Slice(res.Entries, func(i, j int) bool { return res.Entries[i].Key < res.Entries[j].Key })
	return res
}

// WriteSet returns the records that require a DDL write: Added and
// Modified only. Unchanged objects are never rewritten.
func (r *Result) WriteSet() []*Record {
	var recs []*Record
	for _, e := range r.Entries {
		if e.Change == Added || e.Change == Modified {
			recs = append(recs, e.Record)
		}
	}
	return recs
}

// RemovedSet returns the previous records no longer present.
func (r *Result) RemovedSet() []*Record {
	var recs []*Record
	for _, e := range r.Entries {
		if e.Change == Removed {
			recs = append(recs, e.Prev)
		}
	}
	return recs
}

// Counts returns the number of entries per classification.
func (r *Result) Counts() (added, modified, removed, unchanged int) {
	for _, e := range r.Entries {
		switch e.Change {
		case Added:
			added++
		case Modified:
			modified++
		case Removed:
			removed++
		case Unchanged:
			unchanged++
		}
	}
	return
}

