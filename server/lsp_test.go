package server

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/lox/vm"
)

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"var count", protocol.Position{Line: 0, Character: 9}, "count"},
		{"fu", protocol.Position{Line: 0, Character: 2}, "fu"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"first\nsecond\nprint my_v", protocol.Position{Line: 2, Character: 10}, "my_v"},
		{"a + b", protocol.Position{Line: 0, Character: 4}, ""},
		{"single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"short", protocol.Position{Line: 0, Character: 99}, "short"},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestDiagnosticsFor(t *testing.T) {
	if d := diagnosticsFor("var a = 1;\nprint a;\n"); len(d) != 0 {
		t.Errorf("valid source produced %v", d)
	}

	d := diagnosticsFor("var a = 1;\nprint a\n")
	if len(d) != 1 {
		t.Fatalf("diagnostics = %+v", d)
	}
	// Reported at end of input, which is the empty third line.
	if d[0].Range.Start.Line != 2 || d[0].Range.End.Character != 0 {
		t.Errorf("range = %+v", d[0].Range)
	}
	if d[0].Message != "Error at end: Expect ';' after value." {
		t.Errorf("message = %q", d[0].Message)
	}
	if d[0].Severity == nil || *d[0].Severity != protocol.DiagnosticSeverityError {
		t.Error("severity not set to error")
	}

	d = diagnosticsFor("var x = 1;\nvar = 2;")
	if len(d) != 1 || d[0].Range.Start.Line != 1 || d[0].Range.End.Character != 8 {
		t.Errorf("diagnostics = %+v", d)
	}
}

func TestComplete(t *testing.T) {
	v := NewVM(vm.DefaultFramesMax, false)
	if _, err := v.Evaluate("var counter = 0; fun compute() {}"); err != nil {
		t.Fatal(err)
	}

	labels := map[string]protocol.CompletionItemKind{}
	for _, item := range complete(v, "c") {
		labels[item.Label] = *item.Kind
	}

	want := map[string]protocol.CompletionItemKind{
		"class":   protocol.CompletionItemKindKeyword,
		"clock":   protocol.CompletionItemKindFunction,
		"counter": protocol.CompletionItemKindVariable,
		"compute": protocol.CompletionItemKindFunction,
	}
	if len(labels) != len(want) {
		t.Errorf("completions = %v", labels)
	}
	for label, kind := range want {
		if labels[label] != kind {
			t.Errorf("%s kind = %v, want %v", label, labels[label], kind)
		}
	}
}
