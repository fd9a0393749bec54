package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/lox/server"
)

func writeScript(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lox")
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunScriptExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"ok", "print 1 + 2;", exitOK, "3\n", ""},
		{"result", "1 + 2", exitOK, "3\n", ""},
		{"negative result", "-3", exitOK, "-3\n", ""},
		{"nil result", "nil", exitOK, "", ""},
		{"compile error", "print 1 +;", exitDataErr, "", "[line 1] Error at ';': Expect expression.\n"},
		{"runtime error", "print 1;\n-nil;", exitSoftErr, "1\n", "Operand must be a number.\n[line 2] in script\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, "", writeScript(t, tc.source))
			if code != tc.wantCode {
				t.Errorf("exit code = %d, want %d", code, tc.wantCode)
			}
			if stdout != tc.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tc.wantStdout)
			}
			if stderr != tc.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr, tc.wantStderr)
			}
		})
	}
}

func TestRunUsageAndIOErrors(t *testing.T) {
	if code, _, _ := runCLI(t, "", "a.lox", "b.lox"); code != exitUsage {
		t.Errorf("two scripts: exit code = %d, want %d", code, exitUsage)
	}
	if code, _, _ := runCLI(t, "", "-no-such-flag"); code != exitUsage {
		t.Errorf("bad flag: exit code = %d, want %d", code, exitUsage)
	}
	missing := filepath.Join(t.TempDir(), "missing.lox")
	code, _, stderr := runCLI(t, "", missing)
	if code != exitIOErr {
		t.Errorf("missing file: exit code = %d, want %d", code, exitIOErr)
	}
	if !strings.Contains(stderr, "Could not read file") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunDisassemble(t *testing.T) {
	code, stdout, _ := runCLI(t, "", "-disassemble", writeScript(t, "print 1;"))
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout, "== <script> ==\n") || !strings.Contains(stdout, "OP_PRINT") {
		t.Errorf("listing = %q", stdout)
	}

	code, _, stderr := runCLI(t, "", "-disassemble", writeScript(t, "1 +"))
	if code != exitDataErr || !strings.Contains(stderr, "Expect expression.") {
		t.Errorf("invalid source: code %d stderr %q", code, stderr)
	}
}

func TestRunREPL(t *testing.T) {
	code, stdout, stderr := runCLI(t, "var x = 20;\nx + 1\nx +\n", "-history", "off")
	if code != exitOK {
		t.Fatalf("exit code = %d (stderr %q)", code, stderr)
	}
	if stdout != "21\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if stderr != "[line 1] Error at end: Expect expression.\n" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunRemote(t *testing.T) {
	srv := server.New()
	defer srv.Stop()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, stdout, _ := runCLI(t, "", "-remote", ts.URL, writeScript(t, "print \"remote\";"))
	if code != exitOK || stdout != "remote\n" {
		t.Errorf("code %d stdout %q", code, stdout)
	}

	code, _, stderr := runCLI(t, "", "-remote", ts.URL, writeScript(t, "undefined;"))
	if code != exitSoftErr {
		t.Errorf("exit code = %d, want %d", code, exitSoftErr)
	}
	if stderr != "Undefined variable 'undefined'.\n[line 1] in script\n" {
		t.Errorf("stderr = %q", stderr)
	}

	code, stdout, _ = runCLI(t, "", "-remote", ts.URL, writeScript(t, "(1 + 2) * 3"))
	if code != exitOK || stdout != "9\n" {
		t.Errorf("result: code %d stdout %q", code, stdout)
	}
}

func TestFlagsNeedingScript(t *testing.T) {
	for _, flag := range [][]string{{"-disassemble"}, {"-remote", "localhost:1"}} {
		code, stdout, stderr := runCLI(t, "print 1;\n", append([]string{"-history", "off"}, flag...)...)
		if code != exitUsage {
			t.Errorf("%v: exit code = %d, want %d", flag, code, exitUsage)
		}
		if stdout != "" || !strings.Contains(stderr, "need a script") {
			t.Errorf("%v: stdout %q stderr %q", flag, stdout, stderr)
		}
	}
}
