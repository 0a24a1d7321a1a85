package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Bin is the native top-level container.
//
// State changes walk one level at a time. Every element is changed in
// sink-to-source order so that downstream stages stop accepting data before
// upstream ones are stopped. The Ready -> Paused level may complete
// asynchronously (sink preroll); the bin then commits Paused when the sink
// reports it and continues towards the target.
//
// Streaming goroutines never take the bin lock: async completion runs on
// its own goroutine and is discarded if a newer request superseded it.
type Bin struct {
	name string
	bus  pipeline.Poster

	mu       sync.Mutex
	elements []element
	current  pipeline.RunState
	target   pipeline.RunState
	awaiting bool
	gen      uint64
	closed   bool
}

// NewBin creates an empty bin posting to bus
func NewBin(name string, bus pipeline.Poster) *Bin {
	return &Bin{
		name:    name,
		bus:     bus,
		current: pipeline.StateNull,
		target:  pipeline.StateNull,
	}
}

func (b *Bin) Name() string { return b.name }

// Add takes ownership of native stages
func (b *Bin) Add(stages ...pipeline.Stage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, st := range stages {
		e, ok := st.(element)
		if !ok {
			return fmt.Errorf("%w: %s is not a native stage", pipeline.ErrIncompatible, st.Name())
		}
		if e.base().owner() != nil {
			return fmt.Errorf("stage %s already belongs to a bin", st.Name())
		}
		e.base().attach(b)
		b.elements = append(b.elements, e)
	}
	return nil
}

// SetState requests target. It returns once every synchronous level has
// been applied; a pending preroll completes later.
func (b *Bin) SetState(target pipeline.RunState) error {
	if !target.Valid() {
		return fmt.Errorf("invalid state %s", target)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return pipeline.ErrTornDown
	}

	b.target = target
	if b.awaiting {
		if target >= pipeline.StatePaused {
			// the pending preroll still leads towards target
			return nil
		}
		slog.Debug("native: aborting pending preroll", "bin", b.name, "target", target)
		b.awaiting = false
	}
	b.gen++

	if err := b.settle(); err != nil {
		return err
	}
	return b.advance()
}

// settle brings elements left above the committed state (by an aborted
// preroll or a failed level) back down to it.
func (b *Bin) settle() error {
	var errs []error
	for i := len(b.elements) - 1; i >= 0; i-- {
		if err := settle(b.elements[i], b.current); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// advance walks the elements from the committed state toward the target,
// one level at a time. Must be called with b.mu held.
//
// This walk:
//  1. Picks the adjacent level in the direction of the target
//  2. Steps every element to it, sink first, so downstream is ready
//     before upstream starts producing
//  3. On Ready->Paused hands the elements a completion callback that
//     resumes the walk from completeAsync once the sink prerolls
//  4. Stops there if any element answered asynchronously; otherwise
//     commits the level and posts a StateChanged notification
//
// A failing element stops the walk at the last committed level.
func (b *Bin) advance() error {
	for b.current != b.target {
		next := b.current + 1
		if b.target < b.current {
			next = b.current - 1
		}

		gen := b.gen
		var done func()
		if next == pipeline.StatePaused && b.current == pipeline.StateReady {
			done = func() { go b.completeAsync(gen) }
		}

		async := false
		for i := len(b.elements) - 1; i >= 0; i-- {
			a, err := step(b.elements[i], next, done)
			if err != nil {
				return fmt.Errorf("%s: %s -> %s: %w", b.elements[i].Name(), b.current, next, err)
			}
			async = async || a
		}

		if async {
			b.awaiting = true
			slog.Debug("native: waiting for preroll", "bin", b.name, "target", b.target)
			return nil
		}
		b.commit(next)
	}
	return nil
}

func (b *Bin) commit(next pipeline.RunState) {
	old := b.current
	b.current = next

	pending := b.target
	if next == b.target {
		pending = pipeline.StateVoidPending
	}
	b.post(pipeline.StateChangedNotification{Src: b.name, Old: old, New: next, Pending: pending})
}

func (b *Bin) completeAsync(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || gen != b.gen || !b.awaiting {
		return
	}
	b.awaiting = false
	b.commit(pipeline.StatePaused)

	if err := b.advance(); err != nil {
		slog.Warn("native: continuing after preroll failed", "bin", b.name, "error", err)
	}
}

// State returns the committed state
func (b *Bin) State() pipeline.RunState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Close brings every element to Null and rejects further requests. Safe to
// call more than once.
func (b *Bin) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.gen++
	b.awaiting = false
	b.current = pipeline.StateNull

	var errs []error
	for i := len(b.elements) - 1; i >= 0; i-- {
		if err := settle(b.elements[i], pipeline.StateNull); err != nil {
			errs = append(errs, err)
		}
	}
	b.mu.Unlock()

	return errors.Join(errs...)
}

func (b *Bin) post(n pipeline.Notification) {
	if b.bus == nil {
		return
	}
	b.bus.Post(n)
}

// postEOS is called by the sink once end-of-stream reached it while playing
func (b *Bin) postEOS() {
	b.post(pipeline.EOSNotification{Src: b.name})
}
