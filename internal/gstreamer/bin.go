package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/diagnostics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// busPollInterval bounds how long the pump blocks in TimedPop, which is how
// quickly Close is noticed.
const busPollInterval = 50 * time.Millisecond

// Bin wraps a gst.Pipeline. A pump goroutine translates the pipeline bus
// messages into notifications on the pipeline EventBus.
type Bin struct {
	name     string
	pipeline *gst.Pipeline
	bus      pipeline.Poster

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ pipeline.Bin = (*Bin)(nil)

func newBin(name string, bus pipeline.Poster) (*Bin, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	b := &Bin{
		name:     name,
		pipeline: p,
		bus:      bus,
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.pump()
	return b, nil
}

func (b *Bin) Name() string { return b.name }

// Add puts the stages' elements in the pipeline and links each stage's
// internal chain
func (b *Bin) Add(stages ...pipeline.Stage) error {
	for _, st := range stages {
		gs, ok := st.(gstStage)
		if !ok {
			return fmt.Errorf("%w: %s is not a GStreamer stage", pipeline.ErrIncompatible, st.Name())
		}
		base := gs.base()
		if err := base.attach(b); err != nil {
			return err
		}
		if err := b.pipeline.AddMany(base.elems...); err != nil {
			return fmt.Errorf("add %s: %w", st.Name(), err)
		}
		if len(base.elems) > 1 {
			if err := gst.ElementLinkMany(base.elems...); err != nil {
				return fmt.Errorf("link %s internals: %w", st.Name(), err)
			}
		}
	}
	return nil
}

// SetState asks the pipeline for target. GStreamer walks the intermediate
// states itself and reports each through the bus.
func (b *Bin) SetState(target pipeline.RunState) error {
	state, err := toGstState(target)
	if err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return pipeline.ErrTornDown
	}

	if err := b.pipeline.SetState(state); err != nil {
		return fmt.Errorf("failed to set pipeline to %s: %w", target, err)
	}
	return nil
}

// Close stops the pipeline and the bus pump. Idempotent.
func (b *Bin) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pipeline.SetState(gst.StateNull)
	close(b.done)
	b.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

func (b *Bin) post(n pipeline.Notification) {
	if b.bus != nil {
		b.bus.Post(n)
	}
}

// pump polls the pipeline bus until Close
func (b *Bin) pump() {
	defer b.wg.Done()

	bus := b.pipeline.GetPipelineBus()
	for {
		select {
		case <-b.done:
			slog.Debug("gstreamer: stopping bus pump", "pipeline", b.name)
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		if n := translate(msg); n != nil {
			b.post(n)
		}
	}
}

// errorNotification builds an ErrorNotification with its diagnostics
// category filled in, for bus errors and sink-side failures alike.
func errorNotification(src, message, detail string) pipeline.ErrorNotification {
	return pipeline.ErrorNotification{
		Src:      src,
		Message:  message,
		Detail:   detail,
		Category: diagnostics.Classify(message, detail).String(),
	}
}

// translate converts the bus messages the controller cares about
func translate(msg *gst.Message) pipeline.Notification {
	switch msg.Type() {
	case gst.MessageEOS:
		return pipeline.EOSNotification{Src: msg.Source()}

	case gst.MessageError:
		gerr := msg.ParseError()
		return errorNotification(msg.Source(), gerr.Error(), gerr.DebugString())

	case gst.MessageStateChanged:
		old, new := msg.ParseStateChanged()
		return pipeline.StateChangedNotification{
			Src:     msg.Source(),
			Old:     fromGstState(old),
			New:     fromGstState(new),
			Pending: pipeline.StateVoidPending,
		}

	default:
		return nil
	}
}

func toGstState(s pipeline.RunState) (gst.State, error) {
	switch s {
	case pipeline.StateNull:
		return gst.StateNull, nil
	case pipeline.StateReady:
		return gst.StateReady, nil
	case pipeline.StatePaused:
		return gst.StatePaused, nil
	case pipeline.StatePlaying:
		return gst.StatePlaying, nil
	default:
		return gst.StateVoidPending, fmt.Errorf("invalid state %s", s)
	}
}

func fromGstState(s gst.State) pipeline.RunState {
	switch s {
	case gst.StateNull:
		return pipeline.StateNull
	case gst.StateReady:
		return pipeline.StateReady
	case gst.StatePaused:
		return pipeline.StatePaused
	case gst.StatePlaying:
		return pipeline.StatePlaying
	default:
		return pipeline.StateVoidPending
	}
}
