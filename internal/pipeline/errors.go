package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSurfaceUnavailable is returned when binding a nil or unrealized surface
	ErrSurfaceUnavailable = errors.New("surface unavailable")
	// ErrSurfaceAlreadyBound is returned on a second bind in the same session
	ErrSurfaceAlreadyBound = errors.New("surface already bound")
	// ErrTornDown is returned by operations on a graph after Teardown
	ErrTornDown = errors.New("pipeline torn down")
	// ErrAlreadyLinked is returned when linking an input that already has a peer
	ErrAlreadyLinked = errors.New("already linked")
	// ErrIncompatible is returned when two connection points cannot be linked
	ErrIncompatible = errors.New("incompatible connection points")
	// ErrNotLinked is reported when data reaches an output with no peer
	ErrNotLinked = errors.New("not linked")
	// ErrTransitionStalled is returned when a requested state is never confirmed
	ErrTransitionStalled = errors.New("state transition stalled")
	// ErrMissingCapability is returned when a stage lacks an interface its role requires
	ErrMissingCapability = errors.New("missing capability")
)

// ConstructionError means a stage could not be instantiated
type ConstructionError struct {
	Role Role
	Name string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s stage %q: %v", e.Role, e.Name, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// LinkError means a static link could not be established
type LinkError struct {
	From string
	To   string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// TransitionError means a state change request was rejected synchronously
type TransitionError struct {
	Target RunState
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition to %s: %v", e.Target, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
