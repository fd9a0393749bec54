package vm

// ---------------------------------------------------------------------------
// Table: open-addressed hash table keyed by interned Strings
// ---------------------------------------------------------------------------

// tableMaxLoad is the load factor that triggers growth. Tombstones count
// toward it.
const tableMaxLoad = 0.75

const tableMinCapacity = 8

// entry is a table slot. A slot is empty when key is nil and value is nil,
// and a tombstone when key is nil and value is true.
type entry struct {
	key   *String
	value Value
}

func (e *entry) isTombstone() bool {
	return e.key == nil && !e.value.IsNil()
}

// Table maps String identity to Value with linear probing.
//
// count includes tombstones and is only recomputed when the table grows, so
// probe sequences always terminate on a never-used slot.
type Table struct {
	count   int
	entries []entry
}

// NewTable creates an empty table. The zero Table is also ready to use.
func NewTable() *Table {
	return &Table{}
}

// Count returns live entries plus tombstones.
func (t *Table) Count() int { return t.count }

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.entries) }

// Len returns the number of live keys.
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

// findEntry returns the slot holding key, or the slot an insert of key
// should use: the first tombstone passed, else the empty slot that ended the
// probe. entries must have at least one empty slot.
func findEntry(entries []entry, key *String) *entry {
	capacity := uint32(len(entries))
	index := key.Hash % capacity
	var tombstone *entry

	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.IsNil() {
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

// Get returns the value stored for key.
func (t *Table) Get(key *String) (Value, bool) {
	if t.count == 0 {
		return Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set stores value under key, growing first if the insert would push the
// load past tableMaxLoad. Returns true if key was not present.
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && e.value.IsNil() {
		// A reused tombstone is already counted.
		t.count++
	}

	e.key = key
	e.value = value
	return isNewKey
}

// Delete replaces key's entry with a tombstone.
func (t *Table) Delete(key *String) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = True
	return true
}

// AddAll copies every live entry of from into t.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// AddAll copies every live entry of from into to.
func AddAll(from, to *Table) {
	to.AddAll(from)
}

// FindString looks up an interned string by content. It is the only lookup
// that compares characters rather than identity.
func (t *Table) FindString(chars string, hash uint32) *String {
	if t.count == 0 {
		return nil
	}
	capacity := uint32(len(t.entries))
	index := hash % capacity
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) % capacity
	}
}

// Each calls fn for every live entry in slot order.
func (t *Table) Each(fn func(key *String, value Value)) {
	for i := range t.entries {
		if e := &t.entries[i]; e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// adjustCapacity rehashes the live entries into a fresh slot array. Tombstones
// are dropped, so count is recomputed.
func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}
	t.entries = entries
}

func growCapacity(capacity int) int {
	if capacity < tableMinCapacity {
		return tableMinCapacity
	}
	return capacity * 2
}
