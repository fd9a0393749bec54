package vm

import (
	"hash/fnv"
)

// Heap owns every object the compiler and VM allocate. Objects live in an
// arena indexed by ObjectID, which doubles as the allocation list: the newest
// object is the last element. Strings are interned through a Table so equal
// content always yields the same *String.
type Heap struct {
	objects []Object
	strings Table
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{objects: make([]Object, 0, 64)}
}

// allocate stamps obj's header and links it into the allocation list.
func (h *Heap) allocate(obj Object, kind ObjectKind) {
	hdr := obj.header()
	hdr.kind = kind
	hdr.id = ObjectID(len(h.objects))
	h.objects = append(h.objects, obj)
}

// Len returns the number of allocated objects.
func (h *Heap) Len() int { return len(h.objects) }

// Get returns the object with the given handle, or nil.
func (h *Heap) Get(id ObjectID) Object {
	if int(id) >= len(h.objects) {
		return nil
	}
	return h.objects[id]
}

// Objects returns every live object, newest first.
func (h *Heap) Objects() []Object {
	out := make([]Object, len(h.objects))
	for i, obj := range h.objects {
		out[len(h.objects)-1-i] = obj
	}
	return out
}

// Strings exposes the interning table.
func (h *Heap) Strings() *Table { return &h.strings }

// HashString is the 32-bit FNV-1a hash used for interning.
func HashString(chars string) uint32 {
	f := fnv.New32a()
	f.Write([]byte(chars))
	return f.Sum32()
}

// CopyString interns chars, allocating only if no equal String exists.
func (h *Heap) CopyString(chars string) *String {
	return h.intern(chars)
}

// TakeString interns a string the caller built and no longer needs, such as
// a concatenation result. Go strings are immutable so ownership transfer
// costs nothing; it is kept distinct for call-site clarity.
func (h *Heap) TakeString(chars string) *String {
	return h.intern(chars)
}

func (h *Heap) intern(chars string) *String {
	hash := HashString(chars)
	if s := h.strings.FindString(chars, hash); s != nil {
		return s
	}
	s := &String{Chars: chars, Hash: hash}
	h.allocate(s, KindString)
	h.strings.Set(s, Nil)
	return s
}

// NewFunction allocates an empty function with a fresh chunk.
func (h *Heap) NewFunction() *Function {
	fn := &Function{Chunk: NewChunk()}
	h.allocate(fn, KindFunction)
	return fn
}

// NewClosure wraps fn with room for its upvalues.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.allocate(c, KindClosure)
	return c
}

// NewNative wraps a host function.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *Native {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.allocate(n, KindNative)
	return n
}

// NewUpvalue allocates an open upvalue pointing at slot.
func (h *Heap) NewUpvalue(slot *Value) *Upvalue {
	u := &Upvalue{Location: slot}
	h.allocate(u, KindUpvalue)
	return u
}

// Mark returns the current allocation point for a later Rollback.
func (h *Heap) Mark() int { return len(h.objects) }

// Rollback frees every object allocated since mark and un-interns the
// strings among them. Nothing outside the heap may still reference them.
func (h *Heap) Rollback(mark int) {
	if mark < 0 || mark >= len(h.objects) {
		return
	}
	for _, obj := range h.objects[mark:] {
		if s, ok := obj.(*String); ok {
			h.strings.Delete(s)
		}
	}
	clear(h.objects[mark:])
	h.objects = h.objects[:mark]
}

// CountByKind tallies live objects per kind.
func (h *Heap) CountByKind() map[ObjectKind]int {
	counts := make(map[ObjectKind]int)
	for _, obj := range h.objects {
		counts[obj.Kind()]++
	}
	return counts
}
