// Lox CLI - runs scripts, the REPL, the evaluation service and the language server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/lox/compiler"
	"github.com/chazu/lox/manifest"
	"github.com/chazu/lox/repl"
	"github.com/chazu/lox/server"
	"github.com/chazu/lox/vm"

	_ "github.com/tliron/commonlog/simple"
)

// Exit codes (sysexits.h).
const (
	exitOK      = 0
	exitUsage   = 64
	exitDataErr = 65
	exitSoftErr = 70
	exitIOErr   = 74
)

var log = commonlog.GetLogger("lox.cmd")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	verbosity   int
	logFile     string
	trace       bool
	disassemble bool
	serve       bool
	addr        string
	lsp         bool
	history     string
	remote      string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lox", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0 notice, 1 info, 2 debug)")
	fs.StringVar(&opts.logFile, "log", "", "Log to file instead of stderr")
	fs.BoolVar(&opts.trace, "trace", false, "Trace every executed instruction (needs -v 2)")
	fs.BoolVar(&opts.disassemble, "disassemble", false, "Print bytecode listings instead of running")
	fs.BoolVar(&opts.serve, "serve", false, "Start the evaluation service (Connect over CBOR)")
	fs.StringVar(&opts.addr, "addr", "", "Evaluation service address (used with -serve)")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&opts.history, "history", "", "REPL history database path, or \"off\"")
	fs.StringVar(&opts.remote, "remote", "", "Evaluate the script through the service at this address")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lox [options] [script]\n\n")
		fmt.Fprintf(stderr, "Runs a Lox script, or starts the REPL when no script is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  lox                          # Start REPL\n")
		fmt.Fprintf(stderr, "  lox hello.lox                # Run a script\n")
		fmt.Fprintf(stderr, "  lox -disassemble hello.lox   # Show bytecode\n")
		fmt.Fprintf(stderr, "  lox -serve -addr :4567       # Start evaluation service\n")
		fmt.Fprintf(stderr, "  lox -remote localhost:4567 hello.lox\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitUsage
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	applyFlags(fs, &opts, m)

	commonlog.Configure(m.Log.Verbosity, m.LogPath())

	script := fs.Arg(0)
	if script == "" {
		script = m.EntryPath()
	}

	switch {
	case opts.lsp:
		return runLSP(m, stderr)
	case opts.serve:
		return runServer(m, stderr)
	case script == "" && (opts.disassemble || opts.remote != ""):
		fmt.Fprintf(stderr, "Error: -disassemble and -remote need a script\n")
		return exitUsage
	case script == "":
		return runREPL(m, stdin, stdout, stderr)
	}

	source, err := os.ReadFile(script)
	if err != nil {
		fmt.Fprintf(stderr, "Could not read file \"%s\": %v\n", script, err)
		return exitIOErr
	}

	switch {
	case opts.disassemble:
		return runDisassemble(string(source), stdout, stderr)
	case opts.remote != "":
		return runRemote(opts.remote, string(source), stdout, stderr)
	default:
		return runFile(m, string(source), stdout, stderr)
	}
}

func loadManifest() (*manifest.Manifest, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	for _, key := range m.Unknown {
		log.Warningf("%s: unknown key %q", manifest.FileName, key)
	}
	return m, nil
}

// applyFlags lets explicitly set flags override the manifest.
func applyFlags(fs *flag.FlagSet, opts *options, m *manifest.Manifest) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			m.Log.Verbosity = opts.verbosity
		case "log":
			m.Log.File = opts.logFile
		case "trace":
			m.VM.Trace = opts.trace
		case "addr":
			m.Server.Addr = opts.addr
		case "history":
			m.REPL.History = opts.history
		}
	})
}

func newVM(m *manifest.Manifest, stdout, stderr io.Writer) *vm.VM {
	return vm.New(
		vm.WithCompiler(compiler.Compile),
		vm.WithFramesMax(m.VM.FramesMax),
		vm.WithTrace(m.VM.Trace),
		vm.WithOutput(stdout),
		vm.WithErrorOutput(stderr),
	)
}

func runFile(m *manifest.Manifest, source string, stdout, stderr io.Writer) int {
	v := newVM(m, stdout, stderr)
	result := v.Interpret(source)
	log.Debug("script finished", "result", result.String())
	return result.ExitCode()
}

func runDisassemble(source string, stdout, stderr io.Writer) int {
	fn, err := compiler.Compile(source, vm.NewHeap())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitDataErr
	}
	fmt.Fprint(stdout, vm.DisassembleFunction(fn))
	return exitOK
}

func runRemote(addr, source string, stdout, stderr io.Writer) int {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	client := server.NewClient(&http.Client{Timeout: 30 * time.Second}, addr)

	resp, err := client.Evaluate(context.Background(), source, "")
	if err != nil {
		fmt.Fprintf(stderr, "Remote error: %v\n", err)
		return exitIOErr
	}

	fmt.Fprint(stdout, resp.Output)
	switch resp.Status {
	case vm.InterpretCompileError.String():
		for _, d := range resp.Diagnostics {
			fmt.Fprintln(stderr, d.String())
		}
		return exitDataErr
	case vm.InterpretRuntimeError.String():
		fmt.Fprintln(stderr, resp.Error)
		for _, line := range resp.Trace {
			fmt.Fprintln(stderr, line)
		}
		return exitSoftErr
	}
	if resp.Result != "" && resp.Result != "nil" {
		fmt.Fprintln(stdout, resp.Result)
	}
	return exitOK
}

func runREPL(m *manifest.Manifest, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	replOpts := []repl.Option{repl.WithPrompt(m.REPL.Prompt)}
	if m.REPL.History != "off" {
		h, err := repl.OpenHistory(m.HistoryPath())
		if err != nil {
			log.Warningf("history disabled: %v", err)
		} else {
			defer h.Close()
			replOpts = append(replOpts, repl.WithHistory(h))
		}
	}

	v := newVM(m, stdout, stderr)
	if err := repl.New(v, replOpts...).Run(ctx, stdin, stdout, stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOErr
	}
	return exitOK
}

func runServer(m *manifest.Manifest, stderr io.Writer) int {
	srv := server.New(server.WithFramesMax(m.VM.FramesMax), server.WithTrace(m.VM.Trace))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(m.Server.Addr); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return exitIOErr
	}
	return exitOK
}

func runLSP(m *manifest.Manifest, stderr io.Writer) int {
	// stdout carries the protocol; program output is discarded.
	lsp := server.NewLSP(newVM(m, io.Discard, io.Discard))
	if err := lsp.Run(); err != nil {
		fmt.Fprintf(stderr, "LSP error: %v\n", err)
		return exitIOErr
	}
	return exitOK
}
