package streamviewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// idlePoll bounds how long the control loop waits on the bus when no
// transition deadline is pending
const idlePoll = 100 * time.Millisecond

// Player owns one streaming session: the stages, the graph, the dynamic
// linker, the surface binding, the event bus and the lifecycle controller.
//
// A Player runs once. Run drives it from the calling goroutine, which
// becomes the control goroutine; Close may be called from anywhere.
type Player struct {
	cfg       Config
	sessionID string
	backend   string

	bus     *pipeline.EventBus
	graph   *pipeline.Graph
	linker  *pipeline.DynamicLinker
	binding *pipeline.SurfaceBinding
	ctrl    *pipeline.Controller

	handled atomic.Uint64

	mu        sync.Mutex
	closed    bool
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// Stats is a snapshot of a player session
type Stats struct {
	SessionID            string
	Backend              string
	State                RunState
	NotificationsHandled uint64
	LinkAttempts         int
	LinkedTo             string
	SurfaceBound         bool
}

// New validates cfg, constructs the stages, builds the graph and wires the
// dynamic linker. Nothing runs until Run.
func New(cfg Config, factory Factory, diag Diagnostics, presenters ...Presenter) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stream-viewer: invalid configuration: %w", err)
	}
	if factory == nil {
		return nil, fmt.Errorf("stream-viewer: no stage factory")
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	p := &Player{
		cfg:       cfg,
		sessionID: sessionID,
		backend:   factory.Backend(),
		bus:       pipeline.NewEventBus(),
	}

	stages, err := pipeline.CreateStages(factory, pipeline.Target{
		Host: cfg.Source.Host,
		Port: cfg.Source.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("stream-viewer: %w", err)
	}

	p.graph, err = pipeline.Build(factory, cfg.Pipeline.Name, stages, p.bus)
	if err != nil {
		return nil, fmt.Errorf("stream-viewer: %w", err)
	}

	p.linker = pipeline.NewDynamicLinker(stages.Decoder, metrics.Recorder{})
	if err := p.linker.Attach(stages.Demuxer); err != nil {
		p.graph.Teardown()
		return nil, fmt.Errorf("stream-viewer: %w", err)
	}

	p.binding, err = pipeline.NewSurfaceBinding(stages.Sink)
	if err != nil {
		p.graph.Teardown()
		return nil, fmt.Errorf("stream-viewer: %w", err)
	}

	p.ctrl = pipeline.NewController(p.graph, pipeline.ControllerOptions{
		TransitionTimeout: cfg.Lifecycle.TransitionTimeout,
		Diagnostics:       diag,
		Recorder:          metrics.Recorder{},
		Presenters:        presenters,
	})

	slog.Info("stream-viewer: player created",
		"session_id", p.sessionID,
		"backend", p.backend,
		"pipeline", cfg.Pipeline.Name,
		"host", cfg.Source.Host,
		"port", cfg.Source.Port,
	)
	return p, nil
}

// SessionID identifies this session in logs and diagnostics
func (p *Player) SessionID() string { return p.sessionID }

// SurfaceReady binds the presentation surface. It succeeds once; later
// calls return ErrSurfaceAlreadyBound and keep the first surface.
func (p *Player) SurfaceReady(s Surface) error {
	return p.binding.Bind(s)
}

// RunState returns the last confirmed state. Safe from any goroutine.
func (p *Player) RunState() RunState { return p.ctrl.State() }

// Run requests Playing and consumes notifications on the calling goroutine
// until the session ends. The pipeline is torn down before Run returns.
//
// Run returns nil when ctx is cancelled, when Close is called, or on
// end-of-stream with exit_on_eos. It returns ErrStoppedOnError after a
// runtime error with exit_on_error, ErrTransitionStalled when a requested
// state is never reached, and a *pipeline.TransitionError when a
// transition is rejected. Without a bound surface Run fails immediately
// with ErrSurfaceUnavailable.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.closed || p.runDone != nil {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	p.runCancel = cancel
	p.runDone = make(chan struct{})
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.closed = true
		p.runCancel = nil
		close(p.runDone)
		p.mu.Unlock()
	}()

	if !p.binding.Bound() {
		p.ctrl.Teardown("no surface bound")
		return fmt.Errorf("stream-viewer: cannot start: %w", ErrSurfaceUnavailable)
	}

	if err := p.ctrl.Request(pipeline.StatePlaying); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			p.ctrl.Teardown("closed")
			return nil
		}

		if n, ok := p.bus.TimedPop(ctx, p.pollInterval()); ok {
			p.handled.Add(1)
			p.ctrl.Handle(n)
			if err := p.ctrl.Fatal(); err != nil {
				return err
			}
		}

		if err := p.ctrl.CheckStall(); err != nil {
			return err
		}

		if done, err := p.applyExitPolicy(); done {
			return err
		}
	}
}

// pollInterval waits at most until the pending transition deadline
func (p *Player) pollInterval() time.Duration {
	d := idlePoll
	if dl := p.ctrl.Deadline(); !dl.IsZero() {
		if until := time.Until(dl); until < d {
			d = until
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// applyExitPolicy ends the session once Ready is confirmed after EOS or an
// error, if the configuration says so.
func (p *Player) applyExitPolicy() (bool, error) {
	if p.ctrl.State() != pipeline.StateReady || p.ctrl.Target() != pipeline.StateReady {
		return false, nil
	}

	switch p.ctrl.StopReason() {
	case pipeline.StopEOS:
		if p.cfg.Lifecycle.ExitOnEOS {
			p.ctrl.Teardown("end-of-stream")
			return true, nil
		}
	case pipeline.StopError:
		if p.cfg.Lifecycle.ExitOnError {
			last, _ := p.ctrl.LastError()
			p.ctrl.Teardown("error: " + last.Message)
			return true, fmt.Errorf("%w: %s: %s", ErrStoppedOnError, last.Src, last.Message)
		}
	}
	return false, nil
}

// Close ends the session and releases the pipeline. If Run is active it is
// stopped and Close waits for it to return. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if cancel, done := p.runCancel, p.runDone; cancel != nil {
		p.mu.Unlock()
		cancel()
		<-done
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.ctrl.Teardown("closed")
}

// Stats returns session statistics. Safe from any goroutine.
func (p *Player) Stats() Stats {
	ls := p.linker.Stats()
	return Stats{
		SessionID:            p.sessionID,
		Backend:              p.backend,
		State:                p.ctrl.State(),
		NotificationsHandled: p.handled.Load(),
		LinkAttempts:         ls.Attempts,
		LinkedTo:             ls.LinkedTo,
		SurfaceBound:         p.binding.Bound(),
	}
}
