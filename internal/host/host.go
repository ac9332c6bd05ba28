// Package host evaluates instrumented programs inside an embedded
// JavaScript engine and hands back the raw snapshots the recorder left
// behind. Every run gets its own isolated engine context: no state crosses
// runs, and nothing in the VM can reach the filesystem or network.
package host

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
)

// ErrEmptyTrace reports that evaluation succeeded but the program produced
// no snapshots, e.g. source with no executable statements on the taken path.
var ErrEmptyTrace = errors.New("program produced no observable steps")

// EvalError reports that the instrumented program failed to parse or threw
// inside the engine. Message carries the engine's exception text verbatim.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "script evaluation failed: " + e.Message
}

// DefaultTimeout bounds a single evaluation. Learner programs are tiny;
// anything longer than this is a runaway loop.
const DefaultTimeout = 5 * time.Second

// Host runs instrumented programs. The zero value is not usable; construct
// with New.
type Host struct {
	stdout  io.Writer
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithStdout sets the real output sink that captured console output is
// forwarded to.
func WithStdout(w io.Writer) Option {
	return func(h *Host) { h.stdout = w }
}

// WithTimeout bounds evaluation wall-clock time. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) { h.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// New creates a Host. By default console output is discarded, evaluation is
// bounded by DefaultTimeout, and logging is off.
func New(opts ...Option) *Host {
	h := &Host{
		stdout:  io.Discard,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run evaluates one instrumented program in a fresh engine context and
// returns the recorder's snapshot list. An uncaught exception yields an
// *EvalError and no snapshots (partial state from a failed run is
// discarded); a clean run with an empty list yields ErrEmptyTrace.
func (h *Host) Run(source string) ([]any, error) {
	vm := goja.New()

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{h}))
	registry.Enable(vm)
	console.Enable(vm)

	if h.timeout > 0 {
		timer := time.AfterFunc(h.timeout, func() {
			vm.Interrupt(fmt.Sprintf("execution exceeded %v", h.timeout))
		})
		defer timer.Stop()
	}

	prg, err := goja.Compile("trace.js", source, false)
	if err != nil {
		h.logger.Debug().Err(err).Msg("compilation failed")
		return nil, &EvalError{Message: err.Error()}
	}

	if _, err := vm.RunProgram(prg); err != nil {
		msg := evalMessage(err)
		h.logger.Debug().Str("error", msg).Msg("evaluation failed")
		return nil, &EvalError{Message: msg}
	}

	val, err := vm.RunString("__tr.list")
	if err != nil {
		return nil, &EvalError{Message: evalMessage(err)}
	}
	snapshots, ok := val.Export().([]any)
	if !ok || len(snapshots) == 0 {
		return nil, ErrEmptyTrace
	}
	return snapshots, nil
}

// evalMessage extracts the thrown value's own text so callers see
// "ReferenceError: x is not defined" rather than an engine stack dump.
func evalMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}

// printer forwards console module output to the host's real sink. The
// recorder's shim has already captured the text by the time it lands here.
type printer struct {
	h *Host
}

func (p printer) Log(msg string)   { fmt.Fprintln(p.h.stdout, msg) }
func (p printer) Warn(msg string)  { fmt.Fprintln(p.h.stdout, msg) }
func (p printer) Error(msg string) { fmt.Fprintln(p.h.stdout, msg) }
