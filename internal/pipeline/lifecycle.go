package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Transitioner is the lifecycle handle the controller drives. *Graph
// implements it.
type Transitioner interface {
	Name() string
	RequestTransition(target RunState) error
	Teardown() error
}

// StopReason records why the controller is heading back to Ready
type StopReason int

const (
	// StopNone means no stop is in progress
	StopNone StopReason = iota
	// StopEOS means the stream ended
	StopEOS
	// StopError means a stage reported a runtime error
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopEOS:
		return "end-of-stream"
	case StopError:
		return "error"
	default:
		return "none"
	}
}

// ControllerOptions configures a Controller
type ControllerOptions struct {
	// TransitionTimeout bounds how long a requested target may stay
	// unconfirmed. Zero disables stall detection.
	TransitionTimeout time.Duration
	Diagnostics       Diagnostics
	Recorder          Recorder
	Presenters        []Presenter
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// Controller is the pipeline state machine.
//
// The recorded RunState only changes on a confirmed StateChanged whose
// source is the top-level pipeline, or on Teardown. Request, Handle,
// CheckStall and Teardown are meant to be called from a single control
// goroutine; State may be read from anywhere.
type Controller struct {
	graph      Transitioner
	timeout    time.Duration
	diag       Diagnostics
	rec        Recorder
	presenters []Presenter
	now        func() time.Time

	state atomic.Int32

	target    RunState
	deadline  time.Time
	stop      StopReason
	lastError *ErrorNotification
	fatal     error
	closed    bool

	teardownOnce sync.Once
	teardownErr  error
}

// NewController creates a controller in the Null state
func NewController(graph Transitioner, opts ControllerOptions) *Controller {
	c := &Controller{
		graph:      graph,
		timeout:    opts.TransitionTimeout,
		diag:       opts.Diagnostics,
		rec:        opts.Recorder,
		presenters: opts.Presenters,
		now:        opts.Now,
		target:     StateNull,
	}
	if c.diag == nil {
		c.diag = nopDiagnostics{}
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.state.Store(int32(StateNull))
	return c
}

// State returns the last confirmed RunState
func (c *Controller) State() RunState {
	return RunState(c.state.Load())
}

// Target returns the last requested target state
func (c *Controller) Target() RunState { return c.target }

// StopReason returns why the controller is heading to Ready, if it is
func (c *Controller) StopReason() StopReason { return c.stop }

// LastError returns the most recent runtime error, if any
func (c *Controller) LastError() (ErrorNotification, bool) {
	if c.lastError == nil {
		return ErrorNotification{}, false
	}
	return *c.lastError, true
}

// Fatal returns the error that tore the pipeline down, if any
func (c *Controller) Fatal() error { return c.fatal }

// Request is an explicit transition request. It clears any stop reason.
//
// A synchronous rejection is fatal: it is reported to diagnostics, the
// pipeline is torn down and the *TransitionError is returned.
func (c *Controller) Request(target RunState) error {
	c.stop = StopNone
	c.lastError = nil
	return c.request(target)
}

func (c *Controller) request(target RunState) error {
	if c.fatal != nil {
		return c.fatal
	}
	if c.closed {
		return &TransitionError{Target: target, Err: ErrTornDown}
	}
	if target == c.target && !c.deadline.IsZero() {
		// already heading there
		return nil
	}

	slog.Debug("pipeline: requesting transition",
		"pipeline", c.graph.Name(),
		"current", c.State(),
		"target", target,
	)
	c.rec.TransitionRequested(target)

	if err := c.graph.RequestTransition(target); err != nil {
		var terr *TransitionError
		if !errors.As(err, &terr) {
			err = &TransitionError{Target: target, Err: err}
		}
		slog.Error("pipeline: transition rejected",
			"pipeline", c.graph.Name(),
			"target", target,
			"error", err,
		)
		c.diag.Error(c.graph.Name(), fmt.Sprintf("unable to set the pipeline to the %s state", target), err.Error())
		c.fatal = err
		c.Teardown(fmt.Sprintf("transition to %s rejected", target))
		return err
	}

	c.target = target
	if target != c.State() && c.timeout > 0 {
		c.deadline = c.now().Add(c.timeout)
	} else {
		c.deadline = time.Time{}
	}
	return nil
}

// Handle interprets one notification.
//
// Error and EndOfStream request Ready; the recorded state is only updated
// once the bin confirms it. StateChanged from anything but the top-level
// pipeline is ignored.
func (c *Controller) Handle(n Notification) {
	if n == nil {
		return
	}
	c.rec.NotificationHandled(Kind(n), n.Source())

	switch n := n.(type) {
	case ErrorNotification:
		slog.Debug("pipeline: error notification",
			"stage", n.Src,
			"message", n.Message,
			"detail", n.Detail,
			"category", n.Category,
		)
		c.diag.Error(n.Src, n.Message, n.Detail)
		c.stop = StopError
		c.lastError = &n
		c.request(StateReady)

	case EOSNotification:
		slog.Info("pipeline: end of stream reached", "source", n.Src)
		if c.stop == StopNone {
			c.stop = StopEOS
		}
		c.request(StateReady)

	case StateChangedNotification:
		if n.Src != c.graph.Name() {
			slog.Debug("pipeline: stage state changed",
				"stage", n.Src,
				"from", n.Old,
				"to", n.New,
			)
			return
		}
		c.confirm(n)
	}
}

func (c *Controller) confirm(n StateChangedNotification) {
	if c.closed {
		return
	}

	old := c.State()
	c.state.Store(int32(n.New))
	c.rec.StateConfirmed(n.New)

	slog.Info("pipeline: state changed",
		"pipeline", n.Src,
		"from", n.Old,
		"to", n.New,
		"pending", n.Pending,
	)

	if n.New == c.target {
		c.deadline = time.Time{}
	}

	for _, p := range c.presenters {
		p.StateChanged(old, n.New)
	}
	if n.Old == StateReady && n.New == StatePaused {
		for _, p := range c.presenters {
			p.Refresh()
		}
	}
}

// Deadline returns when the pending transition is considered stalled; the
// zero time means nothing is pending or stall detection is off.
func (c *Controller) Deadline() time.Time { return c.deadline }

// CheckStall tears the pipeline down and returns ErrTransitionStalled if
// the pending transition has exceeded its deadline.
func (c *Controller) CheckStall() error {
	if c.deadline.IsZero() || c.closed {
		return c.fatal
	}
	if c.now().Before(c.deadline) {
		return nil
	}

	err := fmt.Errorf("%w: %s not reached within %s (state %s)",
		ErrTransitionStalled, c.target, c.timeout, c.State())
	slog.Error("pipeline: transition stalled",
		"pipeline", c.graph.Name(),
		"target", c.target,
		"state", c.State(),
		"timeout", c.timeout,
	)
	c.rec.Stalled(c.target)
	c.diag.Error(c.graph.Name(), "state transition stalled", err.Error())
	c.fatal = err
	c.Teardown("transition stalled")
	return err
}

// Teardown forces the pipeline to Null and releases it. Only the first
// call has any effect.
func (c *Controller) Teardown(reason string) error {
	c.teardownOnce.Do(func() {
		c.closed = true
		c.teardownErr = c.graph.Teardown()
		c.deadline = time.Time{}
		c.target = StateNull

		old := RunState(c.state.Swap(int32(StateNull)))
		if old != StateNull {
			c.rec.StateConfirmed(StateNull)
			for _, p := range c.presenters {
				p.StateChanged(old, StateNull)
			}
		}

		slog.Info("pipeline: terminated", "pipeline", c.graph.Name(), "reason", reason)
		c.diag.Terminated(reason)
	})
	return c.teardownErr
}
