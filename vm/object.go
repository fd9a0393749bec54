package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// ObjectKind tags the concrete variant of a heap object.
type ObjectKind uint8

const (
	KindString ObjectKind = iota
	KindFunction
	KindClosure
	KindNative
	KindUpvalue
)

var objectKindNames = [...]string{
	KindString:   "string",
	KindFunction: "function",
	KindClosure:  "closure",
	KindNative:   "native",
	KindUpvalue:  "upvalue",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", k)
}

// ObjectID is an object's handle: its index in the owning Heap's arena.
type ObjectID uint32

// Object is implemented by the five heap-resident variants. The set is
// closed; use a type switch to recover the concrete type.
type Object interface {
	Kind() ObjectKind
	ID() ObjectID
	String() string

	header() *objectHeader
}

// objectHeader is embedded in every heap object.
type objectHeader struct {
	kind ObjectKind
	id   ObjectID
}

func (h *objectHeader) Kind() ObjectKind      { return h.kind }
func (h *objectHeader) ID() ObjectID          { return h.id }
func (h *objectHeader) header() *objectHeader { return h }

// String is an immutable, interned byte string. Two Strings with equal
// content are always the same object.
type String struct {
	objectHeader
	Chars string
	Hash  uint32
}

// Len returns the cached byte length.
func (s *String) Len() int { return len(s.Chars) }

func (s *String) String() string { return s.Chars }

// Function is a compiled function body. The top-level script is a Function
// with a nil Name.
type Function struct {
	objectHeader
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *String
}

// DisplayName returns the name used in stack traces and listings.
func (f *Function) DisplayName() string {
	if f.Name == nil {
		return "script"
	}
	return f.Name.Chars
}

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// Closure pairs a Function with the upvalues it captured.
type Closure struct {
	objectHeader
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return c.Function.String() }

// NativeFn is a host function callable from Lox.
type NativeFn func(args []Value) (Value, error)

// Native wraps a NativeFn. Arity -1 accepts any number of arguments.
type Native struct {
	objectHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *Native) String() string { return "<native fn>" }

// Upvalue is a closure's reference to a variable of an enclosing function.
// While open, Location points into the VM stack; closing copies the value into
// Closed and re-points Location at it.
type Upvalue struct {
	objectHeader
	Location *Value
	Closed   Value
	slot     int      // stack index while open
	next     *Upvalue // open upvalue list, sorted by descending slot
}

// IsOpen reports whether the upvalue still refers to a live stack slot.
func (u *Upvalue) IsOpen() bool { return u.Location != &u.Closed }

// Close moves the captured value off the stack.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

func (u *Upvalue) String() string { return "upvalue" }
