package vm

import (
	"fmt"
	"testing"
)

// key builds an uninterned String with a chosen hash so tests can force
// probe collisions.
func key(chars string, hash uint32) *String {
	return &String{Chars: chars, Hash: hash}
}

func TestTableSetGet(t *testing.T) {
	var tbl Table
	k := key("answer", HashString("answer"))

	if _, ok := tbl.Get(k); ok {
		t.Fatal("Get on empty table found a value")
	}
	if !tbl.Set(k, NumberValue(42)) {
		t.Error("Set of a new key returned false")
	}
	v, ok := tbl.Get(k)
	if !ok || v.AsNumber() != 42 {
		t.Errorf("Get = %v, %v; want 42, true", v, ok)
	}
	if tbl.Set(k, NumberValue(7)) {
		t.Error("Set of an existing key returned true")
	}
	if v, _ := tbl.Get(k); v.AsNumber() != 7 {
		t.Errorf("Get after overwrite = %v, want 7", v)
	}
	if tbl.Capacity() != tableMinCapacity {
		t.Errorf("Capacity = %d, want %d", tbl.Capacity(), tableMinCapacity)
	}
}

func TestTableDeleteKeepsProbeChain(t *testing.T) {
	var tbl Table
	// Both hash to slot 1 in an 8-slot table.
	a := key("a", 1)
	b := key("b", 9)
	tbl.Set(a, NumberValue(1))
	tbl.Set(b, NumberValue(2))

	if !tbl.Delete(a) {
		t.Fatal("Delete(a) returned false")
	}
	if _, ok := tbl.Get(a); ok {
		t.Error("deleted key still present")
	}
	v, ok := tbl.Get(b)
	if !ok || v.AsNumber() != 2 {
		t.Errorf("Get(b) after deleting a = %v, %v; want 2, true", v, ok)
	}
	if tbl.Delete(a) {
		t.Error("second Delete(a) returned true")
	}
	if !tbl.entries[1].isTombstone() {
		t.Error("slot 1 is not a tombstone")
	}
}

func TestTableTombstoneReuse(t *testing.T) {
	var tbl Table
	a := key("a", 3)
	tbl.Set(a, True)
	tbl.Delete(a)

	if tbl.Count() != 1 {
		t.Errorf("Count after delete = %d, want 1 (tombstone counted)", tbl.Count())
	}
	if tbl.Len() != 0 {
		t.Errorf("Len after delete = %d, want 0", tbl.Len())
	}

	if !tbl.Set(a, False) {
		t.Error("re-inserting a deleted key should report a new key")
	}
	if tbl.Count() != 1 {
		t.Errorf("Count after reusing tombstone = %d, want 1", tbl.Count())
	}
}

func TestTableLoadFactor(t *testing.T) {
	var tbl Table
	for i := 0; i < 200; i++ {
		k := key(fmt.Sprintf("k%d", i), HashString(fmt.Sprintf("k%d", i)))
		tbl.Set(k, NumberValue(float64(i)))
		if float64(tbl.Count()) > float64(tbl.Capacity())*tableMaxLoad {
			t.Fatalf("after %d inserts count=%d exceeds %.2f of capacity %d",
				i+1, tbl.Count(), tableMaxLoad, tbl.Capacity())
		}
		if c := tbl.Capacity(); c&(c-1) != 0 {
			t.Fatalf("capacity %d is not a power of two", c)
		}
	}
}

func TestTableGrowthKeepsEveryKey(t *testing.T) {
	var tbl Table
	keys := make([]*String, 100)
	for i := range keys {
		keys[i] = key(fmt.Sprintf("key-%d", i), HashString(fmt.Sprintf("key-%d", i)))
		tbl.Set(keys[i], NumberValue(float64(i)))
	}
	// Tombstones are dropped by the next growth.
	for i := 0; i < 10; i++ {
		tbl.Delete(keys[i])
	}
	for i := 100; i < 200; i++ {
		tbl.Set(key(fmt.Sprintf("key-%d", i), HashString(fmt.Sprintf("key-%d", i))), Nil)
	}

	for i := 10; i < 100; i++ {
		v, ok := tbl.Get(keys[i])
		if !ok || v.AsNumber() != float64(i) {
			t.Errorf("Get(%s) = %v, %v; want %d", keys[i].Chars, v, ok, i)
		}
	}
	if got := tbl.Len(); got != 190 {
		t.Errorf("Len = %d, want 190", got)
	}

	seen := make(map[*String]int)
	tbl.Each(func(k *String, _ Value) { seen[k]++ })
	for k, n := range seen {
		if n != 1 {
			t.Errorf("key %s visited %d times", k.Chars, n)
		}
	}
}

func TestTableAddAll(t *testing.T) {
	var from, to Table
	a := key("a", HashString("a"))
	b := key("b", HashString("b"))
	from.Set(a, NumberValue(1))
	from.Set(b, NumberValue(2))
	from.Delete(b)

	AddAll(&from, &to)

	if v, ok := to.Get(a); !ok || v.AsNumber() != 1 {
		t.Errorf("to.Get(a) = %v, %v", v, ok)
	}
	if _, ok := to.Get(b); ok {
		t.Error("AddAll copied a deleted entry")
	}
}

func TestTableFindString(t *testing.T) {
	var tbl Table
	s := key("hello", HashString("hello"))
	tbl.Set(s, Nil)

	if got := tbl.FindString("hello", HashString("hello")); got != s {
		t.Errorf("FindString(hello) = %p, want %p", got, s)
	}
	if got := tbl.FindString("world", HashString("world")); got != nil {
		t.Errorf("FindString(world) = %v, want nil", got)
	}
}
