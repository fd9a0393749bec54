// Package repl implements the interactive read-eval-print loop.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/lox/vm"
)

var log = commonlog.GetLogger("lox.repl")

const defaultHistoryLimit = 10

// REPL evaluates one line at a time on a single VM, so definitions persist
// between submissions.
type REPL struct {
	vm          *vm.VM
	prompt      string
	history     *History
	forcePrompt bool
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets the prompt printed before each line.
func WithPrompt(prompt string) Option {
	return func(r *REPL) { r.prompt = prompt }
}

// WithHistory records every submission in h.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// WithForcePrompt prints the prompt even when input is not a terminal.
func WithForcePrompt(force bool) Option {
	return func(r *REPL) { r.forcePrompt = force }
}

// New creates a REPL driving v.
func New(v *vm.VM, opts ...Option) *REPL {
	r := &REPL{vm: v, prompt: "> "}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines from in until EOF, :quit or ctx is cancelled. Print output
// and echoed results go to out; diagnostics and runtime errors to errOut.
func (r *REPL) Run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	interactive := r.forcePrompt || isTerminal(in)
	r.vm.SetOutput(out)

	session := ""
	if r.history != nil {
		session = r.history.Session()
	}
	log.Info("repl started", "vm", r.vm.ID.String(), "session", session)

	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if interactive {
			fmt.Fprint(out, r.prompt)
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if r.command(line, out, errOut) {
				return nil
			}
			continue
		}
		r.eval(line, out, errOut)
	}

	if interactive {
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// eval runs one submission and records it.
func (r *REPL) eval(source string, out, errOut io.Writer) {
	value, err := r.vm.Evaluate(source)

	var result string
	switch {
	case err == nil:
		result = value.String()
		if !value.IsNil() {
			fmt.Fprintln(out, result)
		}
	default:
		result = vm.ResultOf(err).String()
		writeError(errOut, err)
	}

	if r.history != nil {
		if herr := r.history.Append(source, result); herr != nil {
			log.Warning("history append failed", "error", herr.Error())
		}
	}
}

// writeError renders a compile or runtime error the way the CLI does.
func writeError(w io.Writer, err error) {
	var ce *vm.CompileError
	var re *vm.RuntimeError
	switch {
	case errors.As(err, &ce):
		for _, d := range ce.Diagnostics {
			fmt.Fprintln(w, d.String())
		}
	case errors.As(err, &re):
		fmt.Fprintln(w, re.Report())
	default:
		fmt.Fprintln(w, err)
	}
}

// command handles a ':' meta command and reports whether the loop should
// stop.
func (r *REPL) command(line string, out, errOut io.Writer) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true

	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :heap             Show heap object counts and roots")
		fmt.Fprintln(out, "  :globals          List defined globals")
		fmt.Fprintln(out, "  :history [n]      Show the last n submissions")
		fmt.Fprintln(out, "  :quit, :q         Exit REPL")

	case ":heap":
		r.printHeap(out)

	case ":globals":
		for _, name := range r.vm.Globals() {
			fmt.Fprintln(out, name)
		}

	case ":history":
		r.printHistory(fields[1:], out, errOut)

	default:
		fmt.Fprintf(errOut, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}

func (r *REPL) printHeap(out io.Writer) {
	heap := r.vm.Heap()
	counts := heap.CountByKind()

	kinds := make([]vm.ObjectKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	fmt.Fprintf(out, "objects: %d (%s)\n", heap.Len(), strings.Join(parts, ", "))
	fmt.Fprintf(out, "roots: %d\n", len(r.vm.Roots()))
	fmt.Fprintf(out, "interned strings: %d\n", heap.Strings().Len())
}

func (r *REPL) printHistory(args []string, out, errOut io.Writer) {
	if r.history == nil {
		fmt.Fprintln(errOut, "History is not enabled.")
		return
	}
	n := defaultHistoryLimit
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			fmt.Fprintf(errOut, "Invalid count: %s\n", args[0])
			return
		}
		n = parsed
	}

	entries, err := r.history.Recent(n)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%5d  %s => %s\n", e.ID, e.Source, e.Result)
	}
}
