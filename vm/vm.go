package vm

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lox.vm")

const (
	// DefaultFramesMax is the call depth used when no option overrides it.
	DefaultFramesMax = 64

	// MaxFramesMax bounds WithFramesMax.
	MaxFramesMax = 1024

	// FrameSlots is the number of stack slots reserved per call frame, the
	// most locals a single function can address with a one-byte operand.
	FrameSlots = 256
)

// CompileFunc compiles source into a top-level script function, allocating
// through heap. It returns a *CompileError on failure.
type CompileFunc func(source string, heap *Heap) (*Function, error)

// CallFrame represents an active function invocation.
type CallFrame struct {
	closure *Closure
	ip      int
	base    int // stack index of the callee slot
}

// VM executes compiled Lox functions on a fixed-capacity value stack.
//
// A VM is not safe for concurrent use. The heap and globals persist across
// calls to Interpret so definitions survive between REPL submissions.
type VM struct {
	ID uuid.UUID

	// Debug/trace mode
	Trace bool

	heap    *Heap
	compile CompileFunc

	// The stack is allocated once and never grown: open upvalues hold
	// pointers into it.
	stack []Value
	sp    int

	frames     []CallFrame
	frameCount int

	globals      Table
	openUpvalues *Upvalue

	out    io.Writer
	errOut io.Writer
	start  time.Time

	framesMax int
}

// Option configures a VM at construction.
type Option func(*VM)

// WithFramesMax sets the maximum call depth, clamped to 1..MaxFramesMax.
func WithFramesMax(n int) Option {
	return func(vm *VM) {
		if n < 1 {
			n = 1
		}
		if n > MaxFramesMax {
			n = MaxFramesMax
		}
		vm.framesMax = n
	}
}

// WithOutput directs print statements to w.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithErrorOutput directs the reports Interpret writes to w.
func WithErrorOutput(w io.Writer) Option {
	return func(vm *VM) { vm.errOut = w }
}

// WithTrace enables instruction tracing.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.Trace = on }
}

// WithCompiler installs the compiler used by Interpret and Evaluate.
func WithCompiler(fn CompileFunc) Option {
	return func(vm *VM) { vm.compile = fn }
}

// New creates a VM with its own heap and globals and the standard natives
// defined.
func New(opts ...Option) *VM {
	vm := &VM{
		ID:        uuid.New(),
		heap:      NewHeap(),
		out:       os.Stdout,
		errOut:    os.Stderr,
		start:     time.Now(),
		framesMax: DefaultFramesMax,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.frames = make([]CallFrame, vm.framesMax)
	vm.stack = make([]Value, vm.framesMax*FrameSlots)
	vm.defineNatives()

	log.Debug("vm created", "id", vm.ID.String(), "framesMax", vm.framesMax)
	return vm
}

// UseCompiler installs the compiler used by Interpret and Evaluate.
func (vm *VM) UseCompiler(fn CompileFunc) {
	vm.compile = fn
}

// Compiler returns the installed compiler, or nil.
func (vm *VM) Compiler() CompileFunc {
	return vm.compile
}

// SetOutput directs print statements to w.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetErrorOutput directs the reports Interpret writes to w.
func (vm *VM) SetErrorOutput(w io.Writer) {
	vm.errOut = w
}

// Heap returns the VM's object heap.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// FramesMax returns the maximum call depth.
func (vm *VM) FramesMax() int {
	return vm.framesMax
}

// Globals returns the names of all defined globals, sorted.
func (vm *VM) Globals() []string {
	names := make([]string, 0, vm.globals.Len())
	vm.globals.Each(func(key *String, _ Value) {
		names = append(names, key.Chars)
	})
	sort.Strings(names)
	return names
}

// Global returns the value of a global by name.
func (vm *VM) Global(name string) (Value, bool) {
	key := vm.heap.Strings().FindString(name, HashString(name))
	if key == nil {
		return Nil, false
	}
	return vm.globals.Get(key)
}

// DefineNative binds a host function to a global name.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	key := vm.heap.CopyString(name)
	native := vm.heap.NewNative(name, arity, fn)
	vm.globals.Set(key, ObjectValue(native))
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

// stackOverflow is the panic value push uses when the stack is full; run
// recovers it into a runtime error.
type stackOverflow struct{}

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		panic(stackOverflow{})
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

// resetStack abandons every frame. Open upvalues are closed first so
// closures that escaped into globals keep their captured values.
func (vm *VM) resetStack() {
	vm.closeUpvalues(0)
	for i := 0; i < vm.sp; i++ {
		vm.stack[i] = Nil
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.frames[i] = CallFrame{}
	}
	vm.sp = 0
	vm.frameCount = 0
}

// StackDepth returns the number of values on the stack.
func (vm *VM) StackDepth() int {
	return vm.sp
}

// runtimeError builds a RuntimeError with a trace of the active frames and
// resets the stack.
func (vm *VM) runtimeError(format string, args ...any) error {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		tf := TraceFrame{Line: fn.Chunk.Line(frame.ip - 1)}
		if fn.Name != nil {
			tf.Function = fn.Name.Chars
		}
		err.Trace = append(err.Trace, tf)
	}
	log.Debug("runtime error", "vm", vm.ID.String(), "message", err.Message)
	vm.resetStack()
	return err
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (vm *VM) run() (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackOverflow); !ok {
				panic(r)
			}
			result, err = Nil, vm.runtimeError("Stack overflow.")
		}
	}()

	frame := &vm.frames[vm.frameCount-1]
	chunk := frame.closure.Function.Chunk

	readByte := func() byte {
		b := chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		v := chunk.readUint16(frame.ip)
		frame.ip += 2
		return v
	}
	readConstant := func() Value {
		return chunk.Constants[readByte()]
	}
	readString := func() (*String, error) {
		s, err := readConstant().AsString()
		if err != nil {
			return nil, vm.runtimeError("Corrupt chunk: %v.", err)
		}
		return s, nil
	}

	for {
		if vm.Trace {
			vm.traceInstruction(chunk, frame.ip)
		}

		op := Opcode(readByte())
		switch op {
		// ============ Constants ============
		case OpConstant:
			vm.push(readConstant())

		case OpNil:
			vm.push(Nil)

		case OpTrue:
			vm.push(True)

		case OpFalse:
			vm.push(False)

		case OpPop:
			vm.pop()

		// ============ Variables ============
		case OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.base+slot])

		case OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.base+slot] = vm.peek(0)

		case OpGetGlobal:
			name, err := readString()
			if err != nil {
				return Nil, err
			}
			value, ok := vm.globals.Get(name)
			if !ok {
				return Nil, vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)

		case OpDefineGlobal:
			name, err := readString()
			if err != nil {
				return Nil, err
			}
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpSetGlobal:
			name, err := readString()
			if err != nil {
				return Nil, err
			}
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return Nil, vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)

		case OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		// ============ Comparison ============
		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(a.Equal(b)))

		case OpGreater, OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return Nil, vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if op == OpGreater {
				vm.push(BoolValue(a > b))
			} else {
				vm.push(BoolValue(a < b))
			}

		// ============ Arithmetic ============
		case OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				b, _ := vm.pop().AsString()
				a, _ := vm.pop().AsString()
				vm.push(ObjectValue(vm.heap.TakeString(a.Chars + b.Chars)))
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(NumberValue(a + b))
			default:
				return Nil, vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case OpSubtract, OpMultiply, OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return Nil, vm.runtimeError("Operands must be numbers.")
			}
			// Right operand is on top.
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			switch op {
			case OpSubtract:
				vm.push(NumberValue(a - b))
			case OpMultiply:
				vm.push(NumberValue(a * b))
			default:
				vm.push(NumberValue(a / b))
			}

		case OpNot:
			vm.push(BoolValue(vm.pop().IsFalsey()))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return Nil, vm.runtimeError("Operand must be a number.")
			}
			vm.push(NumberValue(-vm.pop().AsNumber()))

		// ============ Statements and control flow ============
		case OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())

		case OpJump:
			offset := readShort()
			frame.ip += offset

		case OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case OpLoop:
			offset := readShort()
			frame.ip -= offset

		// ============ Calls and closures ============
		case OpCall:
			argc := int(readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return Nil, err
			}
			frame = &vm.frames[vm.frameCount-1]
			chunk = frame.closure.Function.Chunk

		case OpClosure:
			fn, err := readConstant().AsFunction()
			if err != nil {
				return Nil, vm.runtimeError("Corrupt chunk: %v.", err)
			}
			closure := vm.heap.NewClosure(fn)
			vm.push(ObjectValue(closure))
			for i := range closure.Upvalues {
				isLocal := readByte()
				index := int(readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return result, nil
			}
			vm.sp = frame.base
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			chunk = frame.closure.Function.Chunk

		default:
			return Nil, vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) traceInstruction(chunk *Chunk, ip int) {
	if !log.AllowLevel(commonlog.Debug) {
		return
	}
	var sb strings.Builder
	sb.WriteString("          ")
	for i := 0; i < vm.sp; i++ {
		sb.WriteString("[ ")
		sb.WriteString(vm.stack[i].String())
		sb.WriteString(" ]")
	}
	line, _ := chunk.DisassembleInstruction(ip)
	log.Debugf("%s\n%s", sb.String(), line)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) callValue(callee Value, argc int) error {
	switch obj := callee.AsObject().(type) {
	case *Closure:
		return vm.call(obj, argc)
	case *Native:
		if obj.Arity >= 0 && argc != obj.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argc)
		}
		args := make([]Value, argc)
		copy(args, vm.stack[vm.sp-argc:vm.sp])
		result, err := obj.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.sp -= argc + 1
		vm.push(result)
		return nil
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = CallFrame{
		closure: closure,
		base:    vm.sp - argc - 1,
	}
	vm.frameCount++
	return nil
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for slot, creating it if needed.
// At most one open upvalue exists per slot so closures share the variable.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	up := vm.openUpvalues
	for up != nil && up.slot > slot {
		prev = up
		up = up.next
	}
	if up != nil && up.slot == slot {
		return up
	}

	created := vm.heap.NewUpvalue(&vm.stack[slot])
	created.slot = slot
	created.next = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index last.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.slot >= last {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.next
		up.next = nil
	}
}

// OpenUpvalues returns the number of upvalues still pointing into the stack.
func (vm *VM) OpenUpvalues() int {
	n := 0
	for up := vm.openUpvalues; up != nil; up = up.next {
		n++
	}
	return n
}
