package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracepad/tracepad/internal/host"
)

// fakeTimer records Start/Stop calls and lets the test drive ticks by hand.
type fakeTimer struct {
	mu       sync.Mutex
	interval time.Duration
	tick     func() bool
	starts   int
	stops    int
}

func (t *fakeTimer) Start(interval time.Duration, tick func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
	t.tick = tick
	t.starts++
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = nil
	t.stops++
}

func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	tick := t.tick
	t.mu.Unlock()
	if tick == nil {
		return false
	}
	return tick()
}

// fakeRunner returns canned snapshots, optionally blocking until released so
// tests can observe the Running state.
type fakeRunner struct {
	snapshots []any
	err       error
	release   chan struct{}
}

func (r *fakeRunner) Run(string) ([]any, error) {
	if r.release != nil {
		<-r.release
	}
	return r.snapshots, r.err
}

func rawStep(line int) map[string]any {
	return map[string]any{
		"line": int64(line),
		"frames": []any{
			map[string]any{"name": "Global", "global": true, "line": int64(line), "vars": []any{}},
		},
	}
}

func newTestController(opts ...ControllerOption) (*Controller, chan Snapshot) {
	ch := make(chan Snapshot, 64)
	opts = append(opts, WithObserver(func(s Snapshot) { ch <- s }))
	return NewController(opts...), ch
}

func waitState(t *testing.T, ch <-chan Snapshot, want State) Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.State == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestExecuteProducesReadyTrace(t *testing.T) {
	c, ch := newTestController()

	require.NoError(t, c.Execute("let x = 1;\nlet y = x + 1;"))
	snap := waitState(t, ch, StateReady)

	// Hooks before each line plus the trailing end-of-program hook.
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 0, snap.Cursor)
	require.NotNil(t, snap.Step)
	assert.Equal(t, 1, snap.Step.Line)

	steps := c.Steps()
	require.Len(t, steps, 3)

	x, ok := steps[1].Frames[0].Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "1", x.Value)
	assert.True(t, x.IsNew)

	y, ok := steps[2].Frames[0].Lookup("y")
	require.True(t, ok)
	assert.Equal(t, "2", y.Value)
	assert.True(t, y.IsNew)
	assert.Contains(t, steps[2].Explanation, "declares y = 2")
}

func TestExecuteWhileRunningIsRejected(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1)}, release: make(chan struct{})}
	c, ch := newTestController(WithRunner(runner))

	require.NoError(t, c.Execute("a"))
	waitState(t, ch, StateRunning)

	assert.ErrorIs(t, c.Execute("b"), ErrBusy)

	close(runner.release)
	waitState(t, ch, StateReady)
}

func TestExecuteEvalFailure(t *testing.T) {
	c, ch := newTestController()

	require.NoError(t, c.Execute(`let x = 1;`+"\n"+`throw new Error("boom");`))
	snap := waitState(t, ch, StateFailed)

	assert.Equal(t, FailureEval, snap.FailureKind)
	assert.Contains(t, snap.FailureMsg, "boom")
	// The failed run publishes no steps, not a partial trace.
	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, 0, c.StepCount())

	kind, msg := c.Failure()
	assert.Equal(t, FailureEval, kind)
	assert.NotEmpty(t, msg)
}

func TestExecuteEmptyTrace(t *testing.T) {
	c, ch := newTestController()

	require.NoError(t, c.Execute("// nothing happens here\n"))
	snap := waitState(t, ch, StateFailed)

	assert.Equal(t, FailureEmptyTrace, snap.FailureKind)
	assert.Contains(t, snap.FailureMsg, "no observable steps")
}

func TestSteppingClampsAtBounds(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1), rawStep(2), rawStep(3)}}
	c, ch := newTestController(WithRunner(runner))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateReady)

	c.StepForward()
	c.StepForward()
	assert.Equal(t, 2, c.Cursor())

	// Already at the last step; stays put.
	c.StepForward()
	assert.Equal(t, 2, c.Cursor())

	c.StepBackward()
	c.StepBackward()
	assert.Equal(t, 0, c.Cursor())

	c.StepBackward()
	assert.Equal(t, 0, c.Cursor())
}

func TestSteppingIgnoredBeforeReady(t *testing.T) {
	c, _ := newTestController(WithRunner(&fakeRunner{err: host.ErrEmptyTrace}))

	c.StepForward()
	c.StepBackward()
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, c.Cursor())
}

func TestPlayAdvancesToEndAndStops(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1), rawStep(2), rawStep(3)}}
	timer := &fakeTimer{}
	c, ch := newTestController(WithRunner(runner), WithTimer(timer))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateReady)

	c.Play()
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 1, timer.starts)

	assert.True(t, timer.fire())
	assert.Equal(t, 1, c.Cursor())

	// The tick that lands on the last step reports done and drops to Ready.
	assert.False(t, timer.fire())
	assert.Equal(t, 2, c.Cursor())
	assert.Equal(t, StateReady, c.State())
}

func TestPlayIntervalScalesWithSpeed(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1), rawStep(2)}}
	timer := &fakeTimer{}
	c, ch := newTestController(
		WithRunner(runner),
		WithTimer(timer),
		WithBaseInterval(time.Second),
		WithSpeed(2),
	)

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateReady)

	c.Play()
	assert.Equal(t, 500*time.Millisecond, timer.interval)
}

func TestSetSpeedAffectsNextPlayOnly(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1), rawStep(2), rawStep(3)}}
	timer := &fakeTimer{}
	c, ch := newTestController(WithRunner(runner), WithTimer(timer), WithBaseInterval(time.Second))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateReady)

	c.Play()
	assert.Equal(t, time.Second, timer.interval)

	require.NoError(t, c.SetSpeed(4))
	// The live timer keeps its pace.
	assert.Equal(t, time.Second, timer.interval)

	c.Pause()
	c.Play()
	assert.Equal(t, 250*time.Millisecond, timer.interval)
}

func TestSetSpeedRejectsNonPositive(t *testing.T) {
	c, _ := newTestController()
	assert.Error(t, c.SetSpeed(0))
	assert.Error(t, c.SetSpeed(-1))
	assert.NoError(t, c.SetSpeed(0.5))
}

func TestPauseStopsTimer(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1), rawStep(2)}}
	timer := &fakeTimer{}
	c, ch := newTestController(WithRunner(runner), WithTimer(timer))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateReady)

	c.Play()
	stopsBefore := timer.stops
	c.Pause()

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, stopsBefore+1, timer.stops)

	// Pausing when not playing is a no-op.
	c.Pause()
	assert.Equal(t, stopsBefore+1, timer.stops)
}

func TestResetOrphansInFlightRun(t *testing.T) {
	runner := &fakeRunner{snapshots: []any{rawStep(1)}, release: make(chan struct{})}
	c, ch := newTestController(WithRunner(runner))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateRunning)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())

	// The orphaned run finishes but must not publish into the reset session.
	close(runner.release)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, c.StepCount())
}

func TestResetClearsFailure(t *testing.T) {
	c, ch := newTestController(WithRunner(&fakeRunner{err: host.ErrEmptyTrace}))

	require.NoError(t, c.Execute("x"))
	waitState(t, ch, StateFailed)

	c.Reset()
	kind, msg := c.Failure()
	assert.Equal(t, FailureNone, kind)
	assert.Empty(t, msg)
	assert.Equal(t, StateIdle, c.State())
}

func TestRerunReplacesTrace(t *testing.T) {
	c, ch := newTestController()

	require.NoError(t, c.Execute("let x = 1;"))
	waitState(t, ch, StateReady)
	first := c.StepCount()
	require.Greater(t, first, 0)

	require.NoError(t, c.Execute("let a = 1;\nlet b = 2;\nlet c = 3;"))
	snap := waitState(t, ch, StateReady)

	assert.Greater(t, snap.Total, first)
	assert.Equal(t, 0, snap.Cursor)
}

func TestRecursionTrace(t *testing.T) {
	c, ch := newTestController()

	src := strings.Join([]string{
		"function countdown(n) {",
		"  if (n > 0) {",
		"    countdown(n - 1);",
		"  }",
		"}",
		"countdown(2);",
	}, "\n")
	require.NoError(t, c.Execute(src))
	waitState(t, ch, StateReady)

	// At the deepest point the stack holds the global frame plus one frame
	// per live activation of countdown.
	maxFrames := 0
	for _, step := range c.Steps() {
		if len(step.Frames) > maxFrames {
			maxFrames = len(step.Frames)
		}
	}
	require.GreaterOrEqual(t, maxFrames, 3)

	for _, step := range c.Steps() {
		if len(step.Frames) == maxFrames {
			assert.Equal(t, step.Frames[1].Name, step.Frames[2].Name)
			break
		}
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "failed", StateFailed.String())
}
