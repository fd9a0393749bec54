package repl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/lox/compiler"
	"github.com/chazu/lox/vm"
)

func run(t *testing.T, input string, opts ...Option) (string, string) {
	t.Helper()
	v := vm.New(vm.WithCompiler(compiler.Compile))
	var out, errOut bytes.Buffer
	if err := New(v, opts...).Run(context.Background(), strings.NewReader(input), &out, &errOut); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), errOut.String()
}

func TestRunEchoesResults(t *testing.T) {
	out, errOut := run(t, "var a = 1;\na + 2\nprint \"hi\";\n\nnil\n")
	if out != "3\nhi\n" {
		t.Errorf("out = %q", out)
	}
	if errOut != "" {
		t.Errorf("errOut = %q", errOut)
	}
}

func TestRunReportsErrors(t *testing.T) {
	out, errOut := run(t, "1 +\n-nil\nprint 7;\n")
	if out != "7\n" {
		t.Errorf("out = %q", out)
	}
	want := "[line 1] Error at end: Expect expression.\n" +
		"Operand must be a number.\n[line 1] in script\n"
	if errOut != want {
		t.Errorf("errOut = %q, want %q", errOut, want)
	}
}

func TestRunKeepsStateAfterRuntimeError(t *testing.T) {
	out, _ := run(t, "var n = 10;\nn + nil\nn * 2\n")
	if out != "20\n" {
		t.Errorf("out = %q", out)
	}
}

func TestRunNoPromptWithoutTerminal(t *testing.T) {
	out, _ := run(t, "1\n")
	if strings.Contains(out, ">") {
		t.Errorf("prompt printed for non-terminal input: %q", out)
	}

	out, _ = run(t, "1\n", WithForcePrompt(true), WithPrompt("lox> "))
	if out != "lox> 1\nlox> \n" {
		t.Errorf("forced prompt out = %q", out)
	}
}

func TestCommands(t *testing.T) {
	out, errOut := run(t, "var b = 1;\nvar a = 2;\n:globals\n:bogus\n:quit\nprint 99;\n")
	if out != "a\nb\nclock\n" {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(errOut, "Unknown command: :bogus") {
		t.Errorf("errOut = %q", errOut)
	}
}

func TestHeapCommand(t *testing.T) {
	out, _ := run(t, "fun f() {}\n:heap\n")
	if !strings.Contains(out, "objects: ") || !strings.Contains(out, "function=") {
		t.Errorf("heap output = %q", out)
	}
	if !strings.Contains(out, "roots: ") {
		t.Errorf("heap output missing roots: %q", out)
	}
}

func TestHistoryCommandWithoutHistory(t *testing.T) {
	_, errOut := run(t, ":history\n")
	if errOut != "History is not enabled.\n" {
		t.Errorf("errOut = %q", errOut)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	out, _ := run(t, "1 + 1\n1 +\n:history 5\n", WithHistory(h))
	if !strings.Contains(out, "1 + 1 => 2") {
		t.Errorf("history listing missing result: %q", out)
	}
	if !strings.Contains(out, "1 + => COMPILE_ERROR") {
		t.Errorf("history listing missing error: %q", out)
	}

	entries, err := h.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Session != h.Session() {
		t.Errorf("session = %q, want %q", entries[0].Session, h.Session())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := vm.New(vm.WithCompiler(compiler.Compile))
	var out bytes.Buffer
	err := New(v).Run(ctx, strings.NewReader("print 1;\n"), &out, &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("out = %q", out.String())
	}
}
