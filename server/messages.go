package server

import "github.com/chazu/lox/vm"

// Procedure paths for the evaluation service.
const (
	EvalServiceName = "lox.v1.EvalService"

	EvaluateProcedure       = "/" + EvalServiceName + "/Evaluate"
	CheckProcedure          = "/" + EvalServiceName + "/Check"
	DisassembleProcedure    = "/" + EvalServiceName + "/Disassemble"
	CreateSessionProcedure  = "/" + EvalServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + EvalServiceName + "/DestroySession"
)

// Diagnostic is a compile error as sent over the wire.
type Diagnostic struct {
	Line    int    `cbor:"line"`
	Where   string `cbor:"where,omitempty"`
	Message string `cbor:"message"`
}

func (d Diagnostic) String() string {
	return vm.Diagnostic{Line: d.Line, Where: d.Where, Message: d.Message}.String()
}

func toDiagnostics(ds []vm.Diagnostic) []Diagnostic {
	if len(ds) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(ds))
	for i, d := range ds {
		out[i] = Diagnostic{Line: d.Line, Where: d.Where, Message: d.Message}
	}
	return out
}

type EvaluateRequest struct {
	Source  string `cbor:"source"`
	Session string `cbor:"session,omitempty"`
}

// EvaluateResponse reports the outcome of one submission. Status is the
// interpret result name (OK, COMPILE_ERROR or RUNTIME_ERROR).
type EvaluateResponse struct {
	Status      string       `cbor:"status"`
	Result      string       `cbor:"result,omitempty"`
	Output      string       `cbor:"output,omitempty"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
	Error       string       `cbor:"error,omitempty"`
	Trace       []string     `cbor:"trace,omitempty"`
}

type CheckRequest struct {
	Source string `cbor:"source"`
}

type CheckResponse struct {
	Valid       bool         `cbor:"valid"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

type DisassembleRequest struct {
	Source string `cbor:"source"`
}

type DisassembleResponse struct {
	Listing     string       `cbor:"listing,omitempty"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

type CreateSessionRequest struct {
	Name string `cbor:"name,omitempty"`
}

type CreateSessionResponse struct {
	Session string `cbor:"session"`
}

type DestroySessionRequest struct {
	Session string `cbor:"session"`
}

type DestroySessionResponse struct{}
