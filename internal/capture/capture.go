// Package capture implements the polymorphic capture source: a primary
// (high-level, low-overhead) and fallback (lower-level) screen capturer
// behind one contract, with a stall watchdog and an internal state
// machine that escalates from primary to fallback after a failed restart.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State names the capture source's internal state machine.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunningPrimary
	StateRestarting
	StateRunningFallback
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunningPrimary:
		return "running-primary"
	case StateRestarting:
		return "restarting"
	case StateRunningFallback:
		return "running-fallback"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Frame is one captured surface plus its capture timestamp.
type Frame struct {
	Surface            []byte
	CaptureTimestampNs int64
	Width, Height      int
}

// Source is the interface both the primary and fallback implementations
// satisfy. A zero-value return from CaptureFrame with ok=false and err=nil
// means "no change" — the caller re-delivers the last valid surface rather
// than treating it as an error.
type Source interface {
	Initialize(displayIndex, width, height, fps int) error
	// CaptureFrame blocks until the next frame (or a short timeout) and
	// returns ok=false, err=nil on a "no new frame" signal.
	CaptureFrame() (frame Frame, ok bool, err error)
	Close() error
	Name() string
}

var (
	ErrNotSupported = errors.New("capture: not supported on this platform")
	ErrNoSource     = errors.New("capture: no source initialized")
)

const (
	watchdogTick      = 3 * time.Second
	stallThreshold    = 5 * time.Second
	idleSkipThreshold = 180 // consecutive unchanged frames before Idle() reports true

	// IdleSleepInterval is the cadence the host pipeline should poll at
	// once Idle() reports true, instead of dispatching at full fps.
	IdleSleepInterval = 16 * time.Millisecond
)

// ObserverFunc receives state transitions for diagnostics, an "active
// method" observation hook for primary/fallback visibility without
// coupling the source to a concrete logger.
type ObserverFunc func(from, to State)

// Dispatcher drives one primary and one fallback Source through the state
// machine described in the capture-source contract, re-delivering the last
// valid surface on "no change" and escalating to fallback after a failed
// restart or a second consecutive stall.
type Dispatcher struct {
	primary  Source
	fallback Source

	mu            sync.Mutex
	state         State
	active        Source
	lastFrame     Frame
	haveLastFrame bool
	restarted     bool // one restart attempt already taken this session
	lastFrameAt   time.Time

	consecutiveSkips atomic.Int64

	displayIndex, width, height, fps int

	observer   ObserverFunc
	stopWatch  context.CancelFunc
	watchdogWg sync.WaitGroup
}

// NewDispatcher builds a Dispatcher over the given primary/fallback pair.
// Either may be nil if this host has no such implementation, but not both.
func NewDispatcher(primary, fallback Source) *Dispatcher {
	return &Dispatcher{primary: primary, fallback: fallback, state: StateIdle}
}

// SetObserver installs a diagnostics callback invoked on every state
// transition. Pass nil to disable.
func (d *Dispatcher) SetObserver(fn ObserverFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = fn
}

func (d *Dispatcher) transition(to State) {
	from := d.state
	d.state = to
	obs := d.observer
	if obs != nil {
		obs(from, to)
	}
	slog.Debug("capture state transition", "from", from, "to", to)
}

// Start initializes the primary source and begins the stall watchdog.
// Blocks until the first frame arrives or initialization fails.
func (d *Dispatcher) Start(ctx context.Context, displayIndex, width, height, fps int) (Frame, error) {
	d.mu.Lock()
	d.displayIndex, d.width, d.height, d.fps = displayIndex, width, height, fps
	d.transition(StateStarting)
	d.mu.Unlock()

	if d.primary == nil {
		return d.startFallback(width, height, fps, displayIndex)
	}

	if err := d.primary.Initialize(displayIndex, width, height, fps); err != nil {
		slog.Warn("primary capture source failed to initialize, trying fallback", "error", err)
		return d.startFallback(width, height, fps, displayIndex)
	}

	frame, ok, err := d.primary.CaptureFrame()
	if err != nil || !ok {
		slog.Warn("primary capture source produced no first frame, trying fallback", "error", err)
		return d.startFallback(width, height, fps, displayIndex)
	}

	d.mu.Lock()
	d.active = d.primary
	d.lastFrame = frame
	d.haveLastFrame = true
	d.lastFrameAt = nowFunc()
	d.transition(StateRunningPrimary)
	d.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	d.stopWatch = cancel
	d.watchdogWg.Add(1)
	go d.runWatchdog(watchCtx)

	return frame, nil
}

func (d *Dispatcher) startFallback(width, height, fps, displayIndex int) (Frame, error) {
	if d.fallback == nil {
		d.mu.Lock()
		d.transition(StateIdle)
		d.mu.Unlock()
		return Frame{}, ErrNoSource
	}
	if err := d.fallback.Initialize(displayIndex, width, height, fps); err != nil {
		d.mu.Lock()
		d.transition(StateIdle)
		d.mu.Unlock()
		return Frame{}, err
	}
	frame, ok, err := d.fallback.CaptureFrame()
	if err != nil {
		return Frame{}, err
	}
	d.mu.Lock()
	d.active = d.fallback
	if ok {
		d.lastFrame = frame
		d.haveLastFrame = true
	}
	d.lastFrameAt = nowFunc()
	d.transition(StateRunningFallback)
	d.mu.Unlock()
	return frame, nil
}

// nowFunc is indirected so tests can control elapsed time for the
// watchdog without sleeping in real time.
var nowFunc = time.Now

// Next returns the next frame from the active source. On "no change" it
// re-delivers the last valid surface so the encoder is never starved
// (stall-cover resend).
func (d *Dispatcher) Next() (Frame, error) {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if active == nil {
		return Frame{}, ErrNoSource
	}

	frame, ok, err := active.CaptureFrame()
	if err != nil {
		return Frame{}, err
	}
	if !ok {
		d.consecutiveSkips.Add(1)
		d.mu.Lock()
		last := d.lastFrame
		have := d.haveLastFrame
		d.mu.Unlock()
		if !have {
			return Frame{}, ErrNoSource
		}
		return last, nil
	}

	d.consecutiveSkips.Store(0)
	d.mu.Lock()
	d.lastFrame = frame
	d.haveLastFrame = true
	d.lastFrameAt = nowFunc()
	d.mu.Unlock()
	return frame, nil
}

// Idle reports whether the active source has delivered idleSkipThreshold
// (180) unchanged frames in a row, about 3 seconds at 60 fps; the count
// does not scale with the configured fps. It is the idle-rate throttling
// hint the host pipeline uses to relax its dispatch cadence without
// touching the wire contract.
func (d *Dispatcher) Idle() bool {
	return d.consecutiveSkips.Load() >= idleSkipThreshold
}

// ActiveName reports the active source's diagnostic name, or "" if none.
func (d *Dispatcher) ActiveName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return ""
	}
	return d.active.Name()
}

// State returns the dispatcher's current state machine value.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) runWatchdog(ctx context.Context) {
	defer d.watchdogWg.Done()
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkStall()
		}
	}
}

func (d *Dispatcher) checkStall() {
	d.mu.Lock()
	state := d.state
	lastFrameAt := d.lastFrameAt
	restarted := d.restarted
	d.mu.Unlock()

	if state != StateRunningPrimary && state != StateRunningFallback {
		return
	}
	if nowFunc().Sub(lastFrameAt) < stallThreshold {
		return
	}
	if state == StateRunningFallback {
		// Already on the fallback path; nothing further to escalate to.
		return
	}

	if !restarted {
		d.attemptPrimaryRestart()
		return
	}
	d.escalateToFallback()
}

func (d *Dispatcher) attemptPrimaryRestart() {
	d.mu.Lock()
	d.restarted = true
	d.transition(StateRestarting)
	primary := d.primary
	d.mu.Unlock()

	if primary == nil {
		d.escalateToFallback()
		return
	}

	d.mu.Lock()
	displayIndex, width, height, fps := d.displayIndex, d.width, d.height, d.fps
	d.mu.Unlock()

	_ = primary.Close()
	if err := primary.Initialize(displayIndex, width, height, fps); err != nil {
		slog.Warn("primary capture restart failed, escalating to fallback", "error", err)
		d.escalateToFallback()
		return
	}
	frame, ok, err := primary.CaptureFrame()
	if err != nil || !ok {
		slog.Warn("primary capture restart produced no frame, escalating to fallback", "error", err)
		d.escalateToFallback()
		return
	}

	d.mu.Lock()
	d.active = primary
	d.lastFrame = frame
	d.haveLastFrame = true
	d.lastFrameAt = nowFunc()
	d.transition(StateRunningPrimary)
	d.mu.Unlock()
}

func (d *Dispatcher) escalateToFallback() {
	d.mu.Lock()
	fallback := d.fallback
	d.mu.Unlock()
	if fallback == nil {
		d.mu.Lock()
		d.transition(StateIdle)
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	displayIndex, width, height, fps := d.displayIndex, d.width, d.height, d.fps
	d.mu.Unlock()
	if err := fallback.Initialize(displayIndex, width, height, fps); err != nil {
		slog.Error("fallback capture source failed to initialize", "error", err)
		d.mu.Lock()
		d.transition(StateIdle)
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	d.active = fallback
	d.lastFrameAt = nowFunc()
	d.transition(StateRunningFallback)
	d.mu.Unlock()
}

// Stop halts the watchdog and closes the active source.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	d.transition(StateStopping)
	stop := d.stopWatch
	active := d.active
	d.active = nil
	d.mu.Unlock()

	if stop != nil {
		stop()
		d.watchdogWg.Wait()
	}

	d.mu.Lock()
	d.transition(StateIdle)
	d.mu.Unlock()

	if active == nil {
		return nil
	}
	return active.Close()
}
