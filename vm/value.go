package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueType tags the variant held by a Value.
type ValueType uint8

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObject
)

func (t ValueType) String() string {
	switch t {
	case ValNil:
		return "nil"
	case ValBool:
		return "bool"
	case ValNumber:
		return "number"
	case ValObject:
		return "object"
	default:
		return fmt.Sprintf("ValueType(%d)", t)
	}
}

// Value is a Lox value: nil, a boolean, a double or a reference to a heap
// object. Values are copied freely; an object variant never owns the object,
// the Heap does.
//
// The zero Value is nil.
type Value struct {
	typ ValueType
	num float64 // number payload, or 1/0 for booleans
	obj Object
}

// Pre-defined values.
var (
	Nil   = Value{}
	True  = Value{typ: ValBool, num: 1}
	False = Value{typ: ValBool}
)

// BoolValue wraps a Go bool.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// NumberValue wraps a float64.
func NumberValue(n float64) Value {
	return Value{typ: ValNumber, num: n}
}

// ObjectValue wraps a heap object reference.
func ObjectValue(o Object) Value {
	if o == nil {
		return Nil
	}
	return Value{typ: ValObject, obj: o}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsNil() bool     { return v.typ == ValNil }
func (v Value) IsBool() bool    { return v.typ == ValBool }
func (v Value) IsNumber() bool  { return v.typ == ValNumber }
func (v Value) IsObject() bool  { return v.typ == ValObject }

// IsObjectKind reports whether v references an object of the given kind.
func (v Value) IsObjectKind(kind ObjectKind) bool {
	return v.typ == ValObject && v.obj.Kind() == kind
}

// IsString reports whether v references a String.
func (v Value) IsString() bool { return v.IsObjectKind(KindString) }

// IsFalsey implements Lox truthiness: nil and false are falsey, everything
// else is truthy.
func (v Value) IsFalsey() bool {
	return v.typ == ValNil || (v.typ == ValBool && v.num == 0)
}

// ---------------------------------------------------------------------------
// Unchecked accessors. Callers test the type first.
// ---------------------------------------------------------------------------

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.num != 0 }

// AsNumber returns the number payload.
func (v Value) AsNumber() float64 { return v.num }

// AsObject returns the referenced object, or nil for non-object values.
func (v Value) AsObject() Object { return v.obj }

// ---------------------------------------------------------------------------
// Checked object accessors
// ---------------------------------------------------------------------------

// AsString returns the referenced String or a *TypeMismatchError.
func (v Value) AsString() (*String, error) {
	if s, ok := v.obj.(*String); ok {
		return s, nil
	}
	return nil, v.mismatch(KindString)
}

// AsFunction returns the referenced Function or a *TypeMismatchError.
func (v Value) AsFunction() (*Function, error) {
	if f, ok := v.obj.(*Function); ok {
		return f, nil
	}
	return nil, v.mismatch(KindFunction)
}

// AsClosure returns the referenced Closure or a *TypeMismatchError.
func (v Value) AsClosure() (*Closure, error) {
	if c, ok := v.obj.(*Closure); ok {
		return c, nil
	}
	return nil, v.mismatch(KindClosure)
}

// AsNative returns the referenced Native or a *TypeMismatchError.
func (v Value) AsNative() (*Native, error) {
	if n, ok := v.obj.(*Native); ok {
		return n, nil
	}
	return nil, v.mismatch(KindNative)
}

// AsUpvalue returns the referenced Upvalue or a *TypeMismatchError.
func (v Value) AsUpvalue() (*Upvalue, error) {
	if u, ok := v.obj.(*Upvalue); ok {
		return u, nil
	}
	return nil, v.mismatch(KindUpvalue)
}

func (v Value) mismatch(want ObjectKind) error {
	got := v.typ.String()
	if v.typ == ValObject {
		got = v.obj.Kind().String()
	}
	return &TypeMismatchError{Want: want.String(), Got: got}
}

// ---------------------------------------------------------------------------
// Equality and formatting
// ---------------------------------------------------------------------------

// Equal compares two values. Objects compare by identity, which is value
// equality for strings because strings are interned.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case ValNil:
		return true
	case ValBool, ValNumber:
		return v.num == other.num
	case ValObject:
		return v.obj == other.obj
	}
	return false
}

// String renders a value the way the print statement does.
func (v Value) String() string {
	switch v.typ {
	case ValNil:
		return "nil"
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValNumber:
		return FormatNumber(v.num)
	case ValObject:
		return v.obj.String()
	}
	return "<invalid>"
}

// FormatNumber renders a double using the shortest representation that
// round-trips, so 3 prints as "3" and 0.1 as "0.1". Non-finite values print
// as inf, -inf and nan.
func FormatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "nan"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
