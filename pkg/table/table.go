// Package table implements the open-addressing, linear-probing hash table
// used by the virtual machine for globals and for string interning. Keys
// are always *value.ObjString, compared by pointer identity, which is
// correct only because every string the VM ever sees has been interned
// first (see (*Table).FindString, the one place content equality is
// checked at all).
package table

import "github.com/kristofer/loxvm/pkg/value"

const (
	initialCapacity = 8
	maxLoadFactor   = 0.75
)

// entry is one table slot. A nil Key with a Nil value is empty; a nil Key
// with a non-nil value (by convention Bool(true)) is a tombstone: still
// counted against the load factor so probe sequences through it stay
// correct, but available for reuse on insert.
type entry struct {
	key   *value.ObjString
	value value.Value
}

// Table is an open-addressing hash table keyed by interned string identity.
type Table struct {
	count   int // live entries + tombstones, for the load-factor bound
	entries []entry
}

// New returns an empty table. Capacity is allocated lazily on first Set.
func New() *Table {
	return &Table{}
}

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	live := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			live++
		}
	}
	return live
}

// findEntry scans from key's hash modulo len(entries), returning the slot
// that terminates the probe: for a successful search, the live slot whose
// key matches by identity; for an unsuccessful search, the first tombstone
// seen (if any), else the first truly empty slot.
func findEntry(entries []entry, key *value.ObjString) *entry {
	capacity := len(entries)
	index := int(key.Hash) % capacity
	var tombstone *entry
	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				// Truly empty: unsuccessful search ends here.
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) % capacity
	}
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value. It returns true iff key was not
// already present; callers (e.g. SetGlobal) use this to distinguish a
// fresh definition from an update.
func (t *Table) Set(key *value.ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoadFactor {
		t.grow(growCapacity(len(t.entries)))
	}
	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		// Only a brand new (never-tombstoned) slot grows the probe-sequence
		// count; reusing a tombstone does not, since it was already counted.
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes that
// passed through this slot still find entries placed after it.
func (t *Table) Delete(key *value.ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true) // tombstone marker
	return true
}

// FindString is the only way to test deep string equality: it probes by
// (length, hash, byte equality) rather than by identity, so the VM can
// decide whether a freshly scanned or concatenated string already has an
// interned instance.
func (t *Table) FindString(s string, hash uint32) *value.ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
			// Tombstone: keep scanning.
		} else if e.key.Hash == hash && len(e.key.Chars) == len(s) && e.key.Chars == s {
			return e.key
		}
		index = (index + 1) % capacity
	}
}

func growCapacity(capacity int) int {
	if capacity < initialCapacity {
		return initialCapacity
	}
	return capacity * 2
}

// grow reallocates to newCapacity, rehashing every live entry and dropping
// tombstones; count is recomputed from live entries only.
func (t *Table) grow(newCapacity int) {
	fresh := make([]entry, newCapacity)
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dst := findEntry(fresh, e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
	t.entries = fresh
}
