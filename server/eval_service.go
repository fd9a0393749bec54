package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/lox/compiler"
	"github.com/chazu/lox/vm"
)

// EvalService implements the lox.v1.EvalService Connect handlers.
type EvalService struct {
	sessions *SessionStore
}

// NewEvalService creates an EvalService.
func NewEvalService(sessions *SessionStore) *EvalService {
	return &EvalService{sessions: sessions}
}

// Evaluate compiles and runs source on a session's VM. Compile and runtime
// errors are reported in the response, not as RPC errors.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	session, ok := s.sessions.Get(req.Msg.Session)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.Session))
	}

	result, err := session.Worker.Do(func(v *vm.VM) interface{} {
		return evaluate(v, source)
	})
	if errors.Is(err, ErrWorkerStopped) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q was destroyed", req.Msg.Session))
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(result.(*EvaluateResponse)), nil
}

// Check compiles source without running it.
func (s *EvalService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	diags := compiler.Check(source)
	return connect.NewResponse(&CheckResponse{
		Valid:       len(diags) == 0,
		Diagnostics: toDiagnostics(diags),
	}), nil
}

// Disassemble compiles source on a scratch heap and returns the listing of
// the script and every nested function.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	fn, err := compiler.Compile(source, vm.NewHeap())
	if err != nil {
		var ce *vm.CompileError
		if errors.As(err, &ce) {
			return connect.NewResponse(&DisassembleResponse{Diagnostics: toDiagnostics(ce.Diagnostics)}), nil
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&DisassembleResponse{Listing: vm.DisassembleFunction(fn)}), nil
}

// CreateSession starts a new independent interpreter.
func (s *EvalService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	return connect.NewResponse(&CreateSessionResponse{Session: session.ID}), nil
}

// DestroySession stops a session created with CreateSession.
func (s *EvalService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	id := req.Msg.Session
	if id == "" || id == DefaultSession {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("the default session cannot be destroyed"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// evaluate runs source and captures print output. Must be called on the VM
// worker goroutine.
func evaluate(v *vm.VM, source string) *EvaluateResponse {
	var out bytes.Buffer
	v.SetOutput(&out)

	value, err := v.Evaluate(source)
	resp := &EvaluateResponse{
		Status: vm.ResultOf(err).String(),
		Output: out.String(),
	}

	var ce *vm.CompileError
	var re *vm.RuntimeError
	switch {
	case err == nil:
		resp.Result = value.String()
	case errors.As(err, &ce):
		resp.Diagnostics = toDiagnostics(ce.Diagnostics)
		resp.Error = ce.Error()
	case errors.As(err, &re):
		resp.Error = re.Message
		for _, f := range re.Trace {
			resp.Trace = append(resp.Trace, f.String())
		}
	default:
		resp.Error = err.Error()
	}
	return resp
}
