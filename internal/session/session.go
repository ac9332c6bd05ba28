// Package session orchestrates trace runs end-to-end and owns the stepping
// and playback state machine consumed by the presentation surface.
//
// States: Idle → Running → Ready ⇄ Playing, with Failed reachable from
// Running. A single run is active at a time; Execute while Running is
// rejected with ErrBusy.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tracepad/tracepad/internal/host"
	"github.com/tracepad/tracepad/internal/instrument"
	"github.com/tracepad/tracepad/internal/trace"
)

// State identifies the controller's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateReady
	StatePlaying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind distinguishes the two user-visible failure classes without
// requiring callers to parse engine-specific exception text.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureEval means the program raised an error inside the engine.
	FailureEval
	// FailureEmptyTrace means evaluation produced no observable steps.
	FailureEmptyTrace
)

// ErrBusy is returned by Execute while a run is already in progress.
var ErrBusy = errors.New("a run is already in progress")

// Runner evaluates an instrumented program and returns raw snapshots.
// *host.Host is the production implementation.
type Runner interface {
	Run(source string) ([]any, error)
}

// DefaultInterval is the auto-advance period at speed 1.0.
const DefaultInterval = 800 * time.Millisecond

// Snapshot is a read-only view of the controller for the presentation
// surface: state, cursor, total, and the current step if one exists.
type Snapshot struct {
	State       State
	Cursor      int
	Total       int
	Step        *trace.Step
	FailureKind FailureKind
	FailureMsg  string
}

// Controller owns one trace at a time. The step sequence it publishes is
// immutable and safe to read from any goroutine; it is replaced wholesale
// when the user re-runs, never appended to.
type Controller struct {
	mu     sync.Mutex
	state  State
	steps  []trace.Step
	cursor int
	speed  float64
	base   time.Duration
	fail   FailureKind
	errMsg string
	runID  uuid.UUID

	runner   Runner
	timer    Timer
	logger   zerolog.Logger
	onChange func(Snapshot)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRunner replaces the script host used to evaluate programs.
func WithRunner(r Runner) ControllerOption {
	return func(c *Controller) { c.runner = r }
}

// WithTimer replaces the auto-advance timer.
func WithTimer(t Timer) ControllerOption {
	return func(c *Controller) { c.timer = t }
}

// WithBaseInterval sets the auto-advance period at speed 1.0.
func WithBaseInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.base = d
		}
	}
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(m float64) ControllerOption {
	return func(c *Controller) {
		if m > 0 {
			c.speed = m
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithObserver registers a callback invoked (outside the controller lock)
// after every published state change.
func WithObserver(fn func(Snapshot)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// NewController creates an Idle controller.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		state:  StateIdle,
		speed:  1.0,
		base:   DefaultInterval,
		runner: host.New(),
		timer:  NewTicker(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute starts a fresh run: instrument, evaluate, normalize, diff. It
// returns immediately; the pipeline runs on its own goroutine and publishes
// Ready or Failed when done. A call while Running returns ErrBusy; failures
// inside the pipeline never propagate as errors, only as the Failed state.
func (c *Controller) Execute(source string) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return ErrBusy
	}
	id := uuid.New()
	c.runID = id
	c.state = StateRunning
	c.fail = FailureNone
	c.errMsg = ""
	c.mu.Unlock()

	// Any live auto-advance timer belongs to the trace being discarded.
	c.timer.Stop()

	c.logger.Info().Stringer("run", id).Int("bytes", len(source)).Msg("run started")
	c.notify()
	go c.run(id, source)
	return nil
}

func (c *Controller) run(id uuid.UUID, source string) {
	res := instrument.Instrument(source)
	raw, err := c.runner.Run(res.Code)
	if err != nil {
		c.publishFailure(id, err)
		return
	}
	steps := trace.Enhance(trace.Normalize(raw, c.logger))
	if len(steps) == 0 {
		c.publishFailure(id, host.ErrEmptyTrace)
		return
	}

	c.mu.Lock()
	if c.runID != id {
		// Reset or a newer run superseded us while evaluating.
		c.mu.Unlock()
		return
	}
	c.steps = steps
	c.cursor = 0
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info().Stringer("run", id).Int("steps", len(steps)).Msg("run ready")
	c.notify()
}

func (c *Controller) publishFailure(id uuid.UUID, err error) {
	kind := FailureEval
	var msg string
	var evalErr *host.EvalError
	switch {
	case errors.Is(err, host.ErrEmptyTrace):
		kind = FailureEmptyTrace
		msg = "your program produced no observable steps"
	case errors.As(err, &evalErr):
		msg = "your program raised an error: " + evalErr.Message
	default:
		msg = "your program raised an error: " + err.Error()
	}

	c.mu.Lock()
	if c.runID != id {
		c.mu.Unlock()
		return
	}
	c.steps = nil
	c.cursor = 0
	c.state = StateFailed
	c.fail = kind
	c.errMsg = msg
	c.mu.Unlock()

	c.logger.Warn().Stringer("run", id).Str("failure", msg).Msg("run failed")
	c.notify()
}

// StepForward advances the cursor by one, clamped at the last step.
func (c *Controller) StepForward() {
	c.mu.Lock()
	moved := false
	if (c.state == StateReady || c.state == StatePlaying) && c.cursor < len(c.steps)-1 {
		c.cursor++
		moved = true
	}
	c.mu.Unlock()
	if moved {
		c.notify()
	}
}

// StepBackward moves the cursor back by one, clamped at zero.
func (c *Controller) StepBackward() {
	c.mu.Lock()
	moved := false
	if (c.state == StateReady || c.state == StatePlaying) && c.cursor > 0 {
		c.cursor--
		moved = true
	}
	c.mu.Unlock()
	if moved {
		c.notify()
	}
}

// Play starts timed auto-advance from the current cursor. It is a no-op
// unless the controller is Ready.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.state != StateReady || len(c.steps) == 0 {
		c.mu.Unlock()
		return
	}
	c.state = StatePlaying
	interval := time.Duration(float64(c.base) / c.speed)
	c.mu.Unlock()

	c.timer.Start(interval, c.advance)
	c.notify()
}

// advance is the timer tick: move one step forward, dropping back to Ready
// when the last step is reached. Returning false stops the timer.
func (c *Controller) advance() bool {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return false
	}
	if c.cursor < len(c.steps)-1 {
		c.cursor++
	}
	keepGoing := c.cursor < len(c.steps)-1
	if !keepGoing {
		c.state = StateReady
	}
	c.mu.Unlock()

	c.notify()
	return keepGoing
}

// Pause stops auto-advance, keeping the cursor where it is.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.mu.Unlock()

	c.timer.Stop()
	c.notify()
}

// Reset discards the trace and returns to Idle. A run still evaluating is
// orphaned: its result is dropped when it tries to publish.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.runID = uuid.New()
	c.state = StateIdle
	c.steps = nil
	c.cursor = 0
	c.fail = FailureNone
	c.errMsg = ""
	c.mu.Unlock()

	c.timer.Stop()
	c.notify()
}

// SetSpeed changes the playback speed multiplier. It affects future Play
// calls only; a live timer keeps its interval.
func (c *Controller) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return errors.New("speed multiplier must be positive")
	}
	c.mu.Lock()
	c.speed = multiplier
	c.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StepCount returns the number of steps in the current trace.
func (c *Controller) StepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Cursor returns the current step index.
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Steps returns the full published step sequence. The slice and its
// contents must be treated as immutable.
func (c *Controller) Steps() []trace.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// Failure returns the failure class and message when in the Failed state.
func (c *Controller) Failure() (FailureKind, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fail, c.errMsg
}

// Snapshot returns a consistent read-only view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:       c.state,
		Cursor:      c.cursor,
		Total:       len(c.steps),
		FailureKind: c.fail,
		FailureMsg:  c.errMsg,
	}
	if c.cursor >= 0 && c.cursor < len(c.steps) {
		snap.Step = &c.steps[c.cursor]
	}
	return snap
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}
