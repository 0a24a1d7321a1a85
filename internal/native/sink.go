package native

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Sink presents decoded images on the bound surface.
//
// On Ready -> Paused it completes asynchronously: the first frame is
// presented (preroll) and reported through the bin's done callback. While
// Paused after preroll the streaming goroutine is held until Playing or
// until the sink is flushed.
type Sink struct {
	stage

	in *Pad

	mu        sync.Mutex
	cond      *sync.Cond
	surface   pipeline.Surface
	playing   bool
	flushing  bool
	prerolled bool
	done      func()

	seq uint64
}

func newSink(name string) *Sink {
	s := &Sink{flushing: true}
	s.init(name, pipeline.RoleSink)
	s.cond = sync.NewCond(&s.mu)
	s.in = newSinkPad("sink", pipeline.KindRawVideo, s.chain, s.eos)
	return s
}

func (s *Sink) Input() pipeline.ConnectionPoint  { return s.in }
func (s *Sink) Output() pipeline.ConnectionPoint { return nil }

// SetSurface borrows the surface frames are presented on
func (s *Sink) SetSurface(surface pipeline.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = surface
	return nil
}

// Presented returns the number of frames presented so far
func (s *Sink) Presented() uint64 { return atomic.LoadUint64(&s.seq) }

func (s *Sink) changeState(next pipeline.RunState, done func()) (bool, error) {
	cur := s.current()
	async := false

	s.mu.Lock()
	switch {
	case cur == pipeline.StateReady && next == pipeline.StatePaused:
		s.flushing = false
		s.prerolled = false
		s.done = done
		async = done != nil
	case cur == pipeline.StatePaused && next == pipeline.StatePlaying:
		s.playing = true
	case cur == pipeline.StatePlaying && next == pipeline.StatePaused:
		s.playing = false
	case cur == pipeline.StatePaused && next == pipeline.StateReady:
		s.flushing = true
		s.playing = false
		s.done = nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.setState(next)
	return async, nil
}

// completePreroll reports the async Ready -> Paused completion once.
// Must be called with s.mu held.
func (s *Sink) completePreroll() {
	s.prerolled = true
	if s.done != nil {
		s.done()
		s.done = nil
	}
}

// waitPlaying holds the streaming goroutine while Paused. Returns false if
// the sink was flushed. Must be called with s.mu held.
func (s *Sink) waitPlaying() bool {
	for !s.playing && !s.flushing {
		s.cond.Wait()
	}
	return !s.flushing
}

// chain receives decoded frames on the upstream streaming goroutine.
//
// This callback:
//  1. Refuses the buffer while flushing
//  2. Blocks while Paused once prerolled, until Playing or a flush
//  3. Posts an error and stops the stream when no surface is bound
//  4. Presents the frame with a fresh sequence number and trace id
//  5. Completes the preroll after the first presented frame
func (s *Sink) chain(buf Buffer) error {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return errFlushing
	}
	if s.prerolled && !s.waitPlaying() {
		s.mu.Unlock()
		return errFlushing
	}
	surface := s.surface
	s.mu.Unlock()

	if surface == nil {
		metrics.IncFrameDropped("no_surface")
		s.postError("Output window was closed", "no surface bound to the sink")
		return errFlow
	}

	b := buf.Image.Bounds()
	frame := pipeline.Frame{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Image:     buf.Image,
		TraceID:   uuid.New().String(),
	}
	if err := surface.Present(frame); err != nil {
		s.postError("Failed to present frame", err.Error())
		return errFlow
	}
	metrics.FramesPresentedTotal.Inc()

	s.mu.Lock()
	if !s.prerolled {
		s.completePreroll()
	}
	s.mu.Unlock()
	return nil
}

// eos completes a pending preroll, waits for Playing, then lets the bin
// post EndOfStream.
func (s *Sink) eos() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	if !s.prerolled {
		s.completePreroll()
	}
	ok := s.waitPlaying()
	s.mu.Unlock()

	if !ok {
		return
	}
	if b := s.owner(); b != nil {
		b.postEOS()
	}
}

// Release drops the element to Null
func (s *Sink) Release() error {
	return settle(s, pipeline.StateNull)
}
