// Package server exposes Lox interpreters over the network: a Connect
// evaluation service encoded with CBOR, and a language server over stdio.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/lox/compiler"
	"github.com/chazu/lox/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("lox.server")

// LoxServer hosts the evaluation service. Each session owns a VM behind
// its own worker.
type LoxServer struct {
	sessions *SessionStore
	mux      *http.ServeMux
	http     *http.Server
}

// ServerOption configures a LoxServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	framesMax int
	trace     bool
}

// WithFramesMax sets the call depth limit of every session VM.
func WithFramesMax(n int) ServerOption {
	return func(c *serverConfig) { c.framesMax = n }
}

// WithTrace enables instruction tracing on every session VM.
func WithTrace(on bool) ServerOption {
	return func(c *serverConfig) { c.trace = on }
}

// New creates a LoxServer with its default session.
func New(opts ...ServerOption) *LoxServer {
	cfg := &serverConfig{framesMax: vm.DefaultFramesMax}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &LoxServer{
		sessions: NewSessionStore(func() *vm.VM { return NewVM(cfg.framesMax, cfg.trace) }),
		mux:      http.NewServeMux(),
	}
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	svc := NewEvalService(s.sessions)
	codec := connect.WithCodec(defaultCodec)

	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, svc.Evaluate, codec))
	s.mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, svc.Check, codec))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble, codec))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, svc.DestroySession, codec))

	return s
}

// NewVM creates an interpreter wired to the compiler.
func NewVM(framesMax int, trace bool) *vm.VM {
	return vm.New(
		vm.WithCompiler(compiler.Compile),
		vm.WithFramesMax(framesMax),
		vm.WithTrace(trace),
	)
}

// Handler returns the HTTP handler serving every procedure.
func (s *LoxServer) Handler() http.Handler {
	return s.mux
}

// Sessions returns the session store.
func (s *LoxServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
// Shutdown may be called from another goroutine at any time.
func (s *LoxServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Noticef("lox evaluation service listening on %s", ln.Addr())
	log.Infof("  Connect (CBOR): http://%s%s", ln.Addr(), EvaluateProcedure)

	err = s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// every session.
func (s *LoxServer) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.sessions.StopAll()
	return err
}

// Stop stops every session without waiting for the listener.
func (s *LoxServer) Stop() {
	s.sessions.StopAll()
}
