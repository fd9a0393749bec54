package vm_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chazu/lox/compiler"
	"github.com/chazu/lox/vm"
)

func newVM(t *testing.T) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(
		vm.WithOutput(&out),
		vm.WithErrorOutput(io.Discard),
		vm.WithCompiler(compiler.Compile),
	)
	return machine, &out
}

func TestEvaluateExpressions(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"1 + 2", "3"},
		{"(1 + 2) * 3", "9"},
		{"5 - 2", "3"},
		{"-3", "-3"},
		{"1 + 2 * 3 - 4 / 2", "5"},
		{"10 - 4 - 3", "3"},
		{"!nil", "true"},
		{"1 < 2 == true", "true"},
		{"3 >= 4", "false"},
		{"1 != 2", "true"},
		{`"lo" + "x"`, "lox"},
		{`"a" + "b" == "ab"`, "true"},
		{"nil or 4", "4"},
		{"false and 1", "false"},
		{"print 1;", "nil"},
		{"clock() >= 0", "true"},
		{"clock", "<native fn>"},
		{"1 / 0", "inf"},
		{"-1 / 0", "-inf"},
		{"0 / 0", "nan"},
		{"1234567", "1234567"},
	}

	for _, tc := range tests {
		machine, _ := newVM(t)
		got, err := machine.Evaluate(tc.source)
		if err != nil {
			t.Errorf("Evaluate(%q) error: %v", tc.source, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("Evaluate(%q) = %s, want %s", tc.source, got, tc.want)
		}
	}
}

func TestInterpretResults(t *testing.T) {
	tests := []struct {
		source string
		want   vm.InterpretResult
	}{
		{"1 + 2", vm.InterpretOK},
		{"print 1 + 2;", vm.InterpretOK},
		{"1 +", vm.InterpretCompileError},
		{"var;", vm.InterpretCompileError},
		{"1 + nil", vm.InterpretRuntimeError},
		{"-\"x\"", vm.InterpretRuntimeError},
	}
	for _, tc := range tests {
		machine, _ := newVM(t)
		if got := machine.Interpret(tc.source); got != tc.want {
			t.Errorf("Interpret(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
	if vm.InterpretCompileError.ExitCode() != 65 || vm.InterpretRuntimeError.ExitCode() != 70 {
		t.Error("exit code mapping wrong")
	}
}

func TestInterpretPrintsResult(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"1 + 2", "3\n"},
		{"(1 + 2) * 3", "9\n"},
		{"-3", "-3\n"},
		{"print 1 + 2;", "3\n"},
		{"nil", ""},
		{"1 + nil", ""},
	}
	for _, tc := range tests {
		machine, out := newVM(t)
		machine.Interpret(tc.source)
		if out.String() != tc.want {
			t.Errorf("Interpret(%q) output = %q, want %q", tc.source, out.String(), tc.want)
		}
	}
}

func TestCompileErrorNeverExecutes(t *testing.T) {
	machine, out := newVM(t)
	before := machine.Heap().CountByKind()[vm.KindClosure]

	_, err := machine.Evaluate("print 99;\n1 +")
	var ce *vm.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *vm.CompileError", err)
	}
	if vm.ResultOf(err) != vm.InterpretCompileError {
		t.Errorf("ResultOf = %v", vm.ResultOf(err))
	}
	if got := ce.Diagnostics[0].String(); got != "[line 2] Error at end: Expect expression." {
		t.Errorf("diagnostic = %q", got)
	}
	if out.Len() != 0 {
		t.Errorf("output %q produced by a program that failed to compile", out.String())
	}
	if after := machine.Heap().CountByKind()[vm.KindClosure]; after != before {
		t.Errorf("closures allocated: %d -> %d", before, after)
	}
}

func TestFailedCompileReleasesObjects(t *testing.T) {
	machine, _ := newVM(t)
	if _, err := machine.Evaluate(`var kept = "kept";`); err != nil {
		t.Fatal(err)
	}
	before := machine.Heap().Len()
	interned := machine.Heap().Strings().Len()

	for i := 0; i < 3; i++ {
		if _, err := machine.Evaluate(`fun typo(a) { return "fresh" + a; } typo(`); err == nil {
			t.Fatal("expected a compile error")
		}
	}
	if after := machine.Heap().Len(); after != before {
		t.Errorf("heap grew from %d to %d objects across failed compiles", before, after)
	}
	if got := machine.Heap().Strings().Len(); got != interned {
		t.Errorf("interned strings %d -> %d", interned, got)
	}
	if v, err := machine.Evaluate("kept"); err != nil || v.String() != "kept" {
		t.Errorf("kept = %v (%v)", v, err)
	}
}

func TestPrintOutput(t *testing.T) {
	machine, out := newVM(t)
	src := `
var greeting = "hello";
print greeting + " world";
print 1.5;
print nil;
print true;
`
	if res := machine.Interpret(src); res != vm.InterpretOK {
		t.Fatalf("Interpret = %v", res)
	}
	want := "hello world\n1.5\nnil\ntrue\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"while", "var i = 0; var sum = 0; while (i < 5) { sum = sum + i; i = i + 1; } sum", "10"},
		{"for", "var s = 0; for (var i = 0; i < 4; i = i + 1) s = s + i; s", "6"},
		{"if else", "var r; if (1 > 2) r = \"a\"; else r = \"b\"; r", "b"},
		{"block locals", "var x = 1; { var x = 2; { var y = x + 1; x = y; } } x", "1"},
		{"shadowed assign", "var out; { var a = 1; { a = a + 10; } out = a; } out", "11"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			machine, _ := newVM(t)
			got, err := machine.Evaluate(tc.source)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if got.String() != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFunctionsAndClosures(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			"recursion",
			"fun fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); } fib(10)",
			"55",
		},
		{
			"counter",
			`fun makeCounter() {
			   var i = 0;
			   fun count() { i = i + 1; return i; }
			   return count;
			 }
			 var c = makeCounter();
			 c();
			 c()`,
			"2",
		},
		{
			"shared upvalue",
			`var get; var set;
			 {
			   var x = 1;
			   fun g() { return x; }
			   fun s(v) { x = v; }
			   get = g; set = s;
			 }
			 set(5);
			 get()`,
			"5",
		},
		{
			"nested capture",
			`fun outer() {
			   var a = "outer";
			   fun middle() {
			     fun inner() { return a; }
			     return inner;
			   }
			   return middle();
			 }
			 outer()()`,
			"outer",
		},
		{
			"function value",
			"fun add(a, b) { return a + b; } add",
			"<fn add>",
		},
		{
			"implicit nil return",
			"fun f() {} f()",
			"nil",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			machine, _ := newVM(t)
			got, err := machine.Evaluate(tc.source)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if got.String() != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
			if machine.OpenUpvalues() != 0 {
				t.Errorf("%d upvalues left open", machine.OpenUpvalues())
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		source  string
		message string
	}{
		{"1 + nil", "Operands must be two numbers or two strings."},
		{`1 - "a"`, "Operands must be numbers."},
		{`"a" < 1`, "Operands must be numbers."},
		{"-nil", "Operand must be a number."},
		{"undefined", "Undefined variable 'undefined'."},
		{"missing = 1;", "Undefined variable 'missing'."},
		{"nil()", "Can only call functions and classes."},
		{"fun f(a) {} f()", "Expected 1 arguments but got 0."},
		{"clock(1)", "Expected 0 arguments but got 1."},
		{"fun f() { f(); } f();", "Stack overflow."},
	}
	for _, tc := range tests {
		machine, _ := newVM(t)
		_, err := machine.Evaluate(tc.source)
		var re *vm.RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("Evaluate(%q) err = %v, want *vm.RuntimeError", tc.source, err)
			continue
		}
		if re.Message != tc.message {
			t.Errorf("Evaluate(%q) message = %q, want %q", tc.source, re.Message, tc.message)
		}
		if machine.StackDepth() != 0 {
			t.Errorf("Evaluate(%q) left %d values on the stack", tc.source, machine.StackDepth())
		}
	}
}

func TestRuntimeErrorTrace(t *testing.T) {
	machine, _ := newVM(t)
	src := "fun inner() { return -nil; }\nfun outer() { inner(); }\nouter();"
	_, err := machine.Evaluate(src)

	var re *vm.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v", err)
	}
	want := "Operand must be a number.\n" +
		"[line 1] in inner()\n" +
		"[line 2] in outer()\n" +
		"[line 3] in script"
	if re.Report() != want {
		t.Errorf("Report:\n%s\nwant:\n%s", re.Report(), want)
	}
	if re.Line() != 1 {
		t.Errorf("Line = %d, want 1", re.Line())
	}
}

func TestStateSurvivesSubmissions(t *testing.T) {
	machine, _ := newVM(t)

	if _, err := machine.Evaluate("var a = 1;"); err != nil {
		t.Fatal(err)
	}
	if _, err := machine.Evaluate("nil();"); err == nil {
		t.Fatal("expected runtime error")
	}
	got, err := machine.Evaluate("a + 1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 2 {
		t.Errorf("a + 1 = %v, want 2", got)
	}

	globals := strings.Join(machine.Globals(), ",")
	if globals != "a,clock" {
		t.Errorf("Globals = %s, want a,clock", globals)
	}
	if v, ok := machine.Global("a"); !ok || v.AsNumber() != 1 {
		t.Errorf("Global(a) = %v, %v", v, ok)
	}
}

func TestClosureSurvivesRuntimeError(t *testing.T) {
	machine, _ := newVM(t)
	src := `var get;
{
  var x = "kept";
  fun g() { return x; }
  get = g;
  nil();
}`
	if _, err := machine.Evaluate(src); err == nil {
		t.Fatal("expected runtime error")
	}
	if machine.OpenUpvalues() != 0 {
		t.Errorf("%d upvalues still open after reset", machine.OpenUpvalues())
	}
	if _, err := machine.Evaluate("var pad1 = 1; var pad2 = 2; var pad3 = 3;"); err != nil {
		t.Fatal(err)
	}
	got, err := machine.Evaluate("get()")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "kept" {
		t.Errorf("get() = %s, want kept", got)
	}
}

func TestRoots(t *testing.T) {
	machine, _ := newVM(t)
	if _, err := machine.Evaluate(`var s = "rooted"; fun f() { return "inner"; }`); err != nil {
		t.Fatal(err)
	}

	found := make(map[string]bool)
	for _, obj := range machine.Roots() {
		found[obj.Kind().String()+":"+obj.String()] = true
	}
	for _, want := range []string{"string:rooted", "string:inner", "closure:<fn f>", "function:<fn f>", "native:<native fn>"} {
		if !found[want] {
			t.Errorf("Roots missing %s", want)
		}
	}
	if len(machine.Roots()) > machine.Heap().Len() {
		t.Error("more roots than objects")
	}
}

func TestIndependentVMs(t *testing.T) {
	a, _ := newVM(t)
	b, _ := newVM(t)
	if _, err := a.Evaluate("var only = 1;"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Evaluate("only"); err == nil {
		t.Error("global leaked between VMs")
	}
	if a.ID == b.ID {
		t.Error("VMs share an ID")
	}
}

func TestNoCompiler(t *testing.T) {
	machine := vm.New(vm.WithOutput(io.Discard))
	if _, err := machine.Evaluate("1"); !errors.Is(err, vm.ErrNoCompiler) {
		t.Errorf("err = %v, want ErrNoCompiler", err)
	}
}

func TestFramesMax(t *testing.T) {
	machine := vm.New(vm.WithFramesMax(4), vm.WithCompiler(compiler.Compile))
	if machine.FramesMax() != 4 {
		t.Fatalf("FramesMax = %d", machine.FramesMax())
	}
	src := "fun d(n) { if (n == 0) return 0; return d(n - 1); } d(%d)"
	if _, err := machine.Evaluate(strings.Replace(src, "%d", "2", 1)); err != nil {
		t.Errorf("depth 3 failed: %v", err)
	}
	_, err := machine.Evaluate(strings.Replace(src, "%d", "10", 1))
	var re *vm.RuntimeError
	if !errors.As(err, &re) || re.Message != "Stack overflow." {
		t.Errorf("err = %v, want stack overflow", err)
	}
}
