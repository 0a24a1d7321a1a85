package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
)

// SurfaceBinding hands the presentation layer's surface to the sink.
// Only one bind per session is allowed.
type SurfaceBinding struct {
	sink SurfaceSink

	mu      sync.Mutex
	surface Surface
}

// NewSurfaceBinding creates a binding for the sink stage
func NewSurfaceBinding(sink Stage) (*SurfaceBinding, error) {
	ss, ok := sink.(SurfaceSink)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot render to a surface", ErrMissingCapability, sink.Name())
	}
	return &SurfaceBinding{sink: ss}, nil
}

// Bind attaches s to the sink.
//
// A nil or unrealized surface (zero handle) fails with
// ErrSurfaceUnavailable; a second call fails with ErrSurfaceAlreadyBound and
// leaves the first binding in place.
func (b *SurfaceBinding) Bind(s Surface) error {
	if s == nil || s.Handle() == 0 {
		return ErrSurfaceUnavailable
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface != nil {
		slog.Warn("pipeline: surface already bound, ignoring",
			"bound", b.surface.Handle(),
			"offered", s.Handle(),
		)
		return ErrSurfaceAlreadyBound
	}

	if err := b.sink.SetSurface(s); err != nil {
		return fmt.Errorf("bind surface %#x: %w", s.Handle(), err)
	}
	b.surface = s

	slog.Debug("pipeline: surface bound", "handle", s.Handle())
	return nil
}

// Bound reports whether a surface has been bound
func (b *SurfaceBinding) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface != nil
}

// Surface returns the bound surface, or nil
func (b *SurfaceBinding) Surface() Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}
