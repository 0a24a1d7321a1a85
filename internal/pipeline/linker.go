package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
)

// DynamicLinker completes the decoder's input link once the demuxer has
// announced an output carrying the expected media kind.
//
// Handle is safe to call any number of times, concurrently or not: the
// check-and-link is done under a mutex, so the decoder input is linked at
// most once. A rejected link is recorded but never fails the pipeline.
type DynamicLinker struct {
	target   ConnectionPoint
	expected MediaKind
	rec      Recorder

	mu       sync.Mutex
	attempts int
	linkedTo string
	lastErr  error
}

// NewDynamicLinker creates a linker for the decoder's input
func NewDynamicLinker(decoder Stage, rec Recorder) *DynamicLinker {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &DynamicLinker{
		target:   decoder.Input(),
		expected: KindJPEG,
		rec:      rec,
	}
}

// Attach registers the linker with the demuxer's output announcements
func (l *DynamicLinker) Attach(demuxer Stage) error {
	a, ok := demuxer.(Announcer)
	if !ok {
		return fmt.Errorf("%w: %s does not announce outputs", ErrMissingCapability, demuxer.Name())
	}
	a.OnOutputAdded(l.Handle)
	return nil
}

// Handle reacts to one output announcement.
//
// This method:
//  1. Skips if the decoder input is already linked
//  2. Skips if the content type is unknown or not the expected kind
//  3. Otherwise links out -> decoder input and records the result
func (l *DynamicLinker) Handle(out ConnectionPoint) {
	if out == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	slog.Debug("pipeline: output announced", "output", out.Name())

	if l.target.IsLinked() {
		slog.Debug("pipeline: decoder input already linked, ignoring",
			"output", out.Name(),
			"linked_to", l.linkedTo,
		)
		l.rec.LinkAttempt(LinkResultAlreadyLinked)
		return
	}

	ct, ok := out.ContentType()
	if !ok || ct.Kind != l.expected {
		slog.Debug("pipeline: output has unexpected type, ignoring",
			"output", out.Name(),
			"type", ct.String(),
		)
		l.rec.LinkAttempt(LinkResultIgnored)
		return
	}

	l.attempts++
	if err := out.Link(l.target); err != nil {
		l.lastErr = err
		slog.Warn("pipeline: dynamic link failed",
			"output", out.Name(),
			"input", l.target.Name(),
			"type", ct.String(),
			"error", err,
		)
		l.rec.LinkAttempt(LinkResultFailed)
		return
	}

	l.linkedTo = out.Name()
	slog.Info("pipeline: dynamic link established",
		"output", out.Name(),
		"input", l.target.Name(),
		"type", ct.String(),
	)
	l.rec.LinkAttempt(LinkResultLinked)
}

// LinkStats is a snapshot of the linker's history
type LinkStats struct {
	Attempts int
	LinkedTo string
	LastErr  error
}

// Stats returns the link history
func (l *DynamicLinker) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkStats{Attempts: l.attempts, LinkedTo: l.linkedTo, LastErr: l.lastErr}
}
