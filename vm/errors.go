package vm

import (
	"errors"
	"fmt"
	"strings"
)

// InterpretResult is the outcome of one compile-and-run cycle.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "OK"
	case InterpretCompileError:
		return "COMPILE_ERROR"
	case InterpretRuntimeError:
		return "RUNTIME_ERROR"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// ExitCode maps a result to the conventional process exit status.
func (r InterpretResult) ExitCode() int {
	switch r {
	case InterpretCompileError:
		return 65
	case InterpretRuntimeError:
		return 70
	default:
		return 0
	}
}

// ResultOf maps an error returned by Evaluate to its result code. Errors that
// are neither compile nor runtime errors count as runtime errors.
func ResultOf(err error) InterpretResult {
	if err == nil {
		return InterpretOK
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return InterpretCompileError
	}
	return InterpretRuntimeError
}

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

// Diagnostic is one compile error.
type Diagnostic struct {
	Line    int
	Where   string // " at 'x'", " at end", or "" for scanner errors
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[line %d] Error%s: %s", d.Line, d.Where, d.Message)
}

// CompileError carries every diagnostic reported during one compilation.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

// TraceFrame is one call frame active when a runtime error was raised.
type TraceFrame struct {
	Line     int
	Function string // function name, or "" for the top-level script
}

func (f TraceFrame) String() string {
	if f.Function == "" {
		return fmt.Sprintf("[line %d] in script", f.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", f.Line, f.Function)
}

// RuntimeError aborts execution. Trace lists frames innermost first.
type RuntimeError struct {
	Message string
	Trace   []TraceFrame
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Report renders the message followed by the stack trace.
func (e *RuntimeError) Report() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, f := range e.Trace {
		sb.WriteString("\n")
		sb.WriteString(f.String())
	}
	return sb.String()
}

// Line returns the line of the innermost frame, or 0 if there is none.
func (e *RuntimeError) Line() int {
	if len(e.Trace) == 0 {
		return 0
	}
	return e.Trace[0].Line
}

// TypeMismatchError reports a checked accessor applied to the wrong variant.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.Want, e.Got)
}

// ErrNoCompiler is returned when Interpret is called before UseCompiler.
var ErrNoCompiler = errors.New("vm: no compiler installed")
