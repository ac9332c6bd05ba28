package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tracepad/tracepad/internal/catalog"
	"github.com/tracepad/tracepad/internal/config"
	"github.com/tracepad/tracepad/internal/host"
	"github.com/tracepad/tracepad/internal/session"
	"github.com/tracepad/tracepad/internal/trace"
)

// RunCommand traces a JavaScript program and prints the resulting steps.
type RunCommand struct {
	*BaseCommand
	cfg     config.Config
	example string
	play    bool
	speed   float64
	asJSON  bool
	verbose bool
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Trace a JavaScript program step by step",
			"run [options] <file.js>",
		),
		cfg: cfg,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.example, "example", "", "Trace a bundled example instead of a file (see 'tracepad examples')")
	fs.BoolVar(&c.play, "play", false, "Play the trace with timed auto-advance instead of printing it at once")
	fs.Float64Var(&c.speed, "speed", 0, "Playback speed multiplier (with -play); overrides the configured default")
	fs.BoolVar(&c.asJSON, "json", false, "Emit the trace as JSON")
	fs.BoolVar(&c.verbose, "verbose", false, "Log engine and session events to stderr")
}

// Execute traces the program and renders the outcome.
func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	source, err := c.loadSource(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return err
	}

	logger := zerolog.Nop()
	if c.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	}

	speed := c.cfg.Playback.Speed
	if c.speed > 0 {
		speed = c.speed
	}

	changes := make(chan session.Snapshot, 64)
	ctrl := session.NewController(
		session.WithRunner(host.New(host.WithTimeout(c.cfg.Timeout()), host.WithLogger(logger))),
		session.WithBaseInterval(c.cfg.Interval()),
		session.WithSpeed(speed),
		session.WithLogger(logger),
		session.WithObserver(func(s session.Snapshot) { changes <- s }),
	)

	if err := ctrl.Execute(source); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return err
	}

	// Wait for the run to settle.
	var snap session.Snapshot
	for snap = range changes {
		if snap.State == session.StateReady || snap.State == session.StateFailed {
			break
		}
	}

	if snap.State == session.StateFailed {
		_, _ = fmt.Fprintf(stderr, "Trace failed: %s\n", snap.FailureMsg)
		return fmt.Errorf("trace failed: %s", snap.FailureMsg)
	}

	steps := ctrl.Steps()
	switch {
	case c.asJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(steps)
	case c.play:
		return c.playTrace(ctrl, changes, stdout)
	default:
		for i := range steps {
			writeStep(stdout, &steps[i])
		}
		return nil
	}
}

// playTrace renders steps as the session's auto-advance timer delivers
// them, mirroring what a graphical surface would animate.
func (c *RunCommand) playTrace(ctrl *session.Controller, changes <-chan session.Snapshot, stdout io.Writer) error {
	printed := -1
	if snap := ctrl.Snapshot(); snap.Step != nil {
		writeStep(stdout, snap.Step)
		printed = snap.Cursor
	}
	ctrl.Play()
	for snap := range changes {
		if snap.Step != nil && snap.Cursor > printed {
			writeStep(stdout, snap.Step)
			printed = snap.Cursor
		}
		if snap.State == session.StateReady && snap.Cursor >= snap.Total-1 {
			break
		}
	}
	return nil
}

func (c *RunCommand) loadSource(args []string) (string, error) {
	if c.example != "" {
		ex, ok := catalog.Get(c.example)
		if !ok {
			return "", fmt.Errorf("unknown example: %s", c.example)
		}
		return ex.Source, nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one source file (or -example)")
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(content), nil
}

// writeStep renders one step: header, explanation, frames with change
// markers, heap objects, and console output so far.
func writeStep(w io.Writer, step *trace.Step) {
	_, _ = fmt.Fprintf(w, "Step %d (line %d)\n", step.Index, step.Line)
	_, _ = fmt.Fprintf(w, "  %s\n", step.Explanation)
	for _, frame := range step.Frames {
		marker := " "
		if frame.Active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "  %s %s (line %d)\n", marker, frame.Name, frame.Line)
		for _, v := range frame.Vars {
			_, _ = fmt.Fprintf(w, "      %s%s = %s\n", changeMark(v), v.Name, v.Value)
		}
	}
	for _, obj := range step.Heap {
		_, _ = fmt.Fprintf(w, "    heap %s (%s)\n", obj.ID, obj.Kind)
		for _, p := range obj.Props {
			_, _ = fmt.Fprintf(w, "      %s%s: %s\n", changeMark(p), p.Name, p.Value)
		}
	}
	if len(step.Output) > 0 {
		_, _ = fmt.Fprintf(w, "    output: %s\n", strings.Join(step.Output, " | "))
	}
	_, _ = fmt.Fprintln(w)
}

func changeMark(v trace.Variable) string {
	switch {
	case v.IsNew:
		return "+ "
	case v.IsModified:
		return "~ "
	default:
		return ""
	}
}
