// Package index provides the ordered OID → value table served to SNMP
// managers.
//
// The table is a slice kept sorted by oid.Compare, so exact and successor
// lookups are binary searches. All access goes through one mutex; readers
// and the writer exclude each other. Methods ending in Locked assume the
// mutex is held, which lets ReplaceSubtree remove and insert inside a single
// critical section without re-acquiring it.
package index

import (
	"sort"
	"sync"

	"github.com/xtxerr/statbridge/internal/oid"
)

// Entry is one OID and its value.
type Entry struct {
	OID   oid.OID
	Value int64
}

// Index is a sorted OID → int64 mapping. The zero value is not usable; use New.
type Index struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

// Get returns the value stored at id.
func (x *Index) Get(id oid.OID) (int64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i, found := x.searchLocked(id)
	if !found {
		return 0, false
	}
	return x.entries[i].Value, true
}

// GetNext returns the smallest entry strictly greater than id. When id is
// stored the following entry is returned; when id is an ancestor of stored
// entries the first of its descendants is returned. ok is false past the
// end of the table.
func (x *Index) GetNext(id oid.OID) (Entry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i, found := x.searchLocked(id)
	if found {
		i++
	}
	if i >= len(x.entries) {
		return Entry{}, false
	}
	e := x.entries[i]
	return Entry{OID: e.OID.Clone(), Value: e.Value}, true
}

// Set inserts or overwrites a single entry.
func (x *Index) Set(id oid.OID, value int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.setLocked(id, value)
}

// RemoveSubtree deletes every entry within root's subtree.
func (x *Index) RemoveSubtree(root oid.OID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeSubtreeLocked(root)
}

// ReplaceSubtree removes root's subtree and inserts updates as one
// indivisible step. No reader observes the table between the two.
// When updates repeats an OID the last occurrence wins.
func (x *Index) ReplaceSubtree(root oid.OID, updates []Entry) {
	batch := normalize(updates)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeSubtreeLocked(root)
	x.mergeLocked(batch)
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Entries returns a copy of the whole table in ascending order.
func (x *Index) Entries() []Entry {
	return x.Subtree(nil)
}

// Subtree returns a copy of the entries within root's subtree in ascending
// order. A nil root selects everything.
func (x *Index) Subtree(root oid.OID) []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()

	start, _ := x.searchLocked(root)
	var out []Entry
	for i := start; i < len(x.entries); i++ {
		e := x.entries[i]
		if !oid.Contains(root, e.OID) {
			break
		}
		out = append(out, Entry{OID: e.OID.Clone(), Value: e.Value})
	}
	return out
}

// =============================================================================
// Lock-held helpers
// =============================================================================

// searchLocked returns the position of the first entry >= id and whether
// that entry equals id.
func (x *Index) searchLocked(id oid.OID) (int, bool) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return oid.Compare(x.entries[i].OID, id) >= 0
	})
	return i, i < len(x.entries) && oid.Equal(x.entries[i].OID, id)
}

func (x *Index) setLocked(id oid.OID, value int64) {
	i, found := x.searchLocked(id)
	if found {
		x.entries[i].Value = value
		return
	}
	x.entries = append(x.entries, Entry{})
	copy(x.entries[i+1:], x.entries[i:])
	x.entries[i] = Entry{OID: id.Clone(), Value: value}
}

// removeSubtreeLocked deletes the contiguous run of entries under root.
// Descendants of root sort immediately after it, so the run starts at the
// first entry >= root.
func (x *Index) removeSubtreeLocked(root oid.OID) {
	start, _ := x.searchLocked(root)
	end := start
	for end < len(x.entries) && oid.Contains(root, x.entries[end].OID) {
		end++
	}
	if end == start {
		return
	}
	n := copy(x.entries[start:], x.entries[end:])
	tail := x.entries[start+n:]
	for i := range tail {
		tail[i] = Entry{}
	}
	x.entries = x.entries[:start+n]
}

// mergeLocked merges a sorted, duplicate-free batch into the table. Batch
// values overwrite existing entries with the same OID.
func (x *Index) mergeLocked(batch []Entry) {
	if len(batch) == 0 {
		return
	}

	merged := make([]Entry, 0, len(x.entries)+len(batch))
	i, j := 0, 0
	for i < len(x.entries) && j < len(batch) {
		switch c := oid.Compare(x.entries[i].OID, batch[j].OID); {
		case c < 0:
			merged = append(merged, x.entries[i])
			i++
		case c > 0:
			merged = append(merged, batch[j])
			j++
		default:
			merged = append(merged, batch[j])
			i++
			j++
		}
	}
	merged = append(merged, x.entries[i:]...)
	merged = append(merged, batch[j:]...)
	x.entries = merged
}

// normalize copies updates, sorts them and drops earlier duplicates.
func normalize(updates []Entry) []Entry {
	if len(updates) == 0 {
		return nil
	}

	batch := make([]Entry, len(updates))
	for i, e := range updates {
		batch[i] = Entry{OID: e.OID.Clone(), Value: e.Value}
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return oid.Compare(batch[i].OID, batch[j].OID) < 0
	})

	out := batch[:0]
	for i := range batch {
		if i+1 < len(batch) && oid.Equal(batch[i].OID, batch[i+1].OID) {
			continue
		}
		out = append(out, batch[i])
	}
	return out
}
