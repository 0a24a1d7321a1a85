package streamviewer

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// RunState is the lifecycle state of the pipeline
type RunState = pipeline.RunState

// Run states
const (
	StateVoidPending = pipeline.StateVoidPending
	StateNull        = pipeline.StateNull
	StateReady       = pipeline.StateReady
	StatePaused      = pipeline.StatePaused
	StatePlaying     = pipeline.StatePlaying
)

// Surface is a native rendering target supplied by the presentation layer
type Surface = pipeline.Surface

// Frame is a decoded picture presented on the Surface
type Frame = pipeline.Frame

// Factory creates the stages of one backend
type Factory = pipeline.Factory

// Diagnostics receives error reports and the termination reason
type Diagnostics = pipeline.Diagnostics

// Presenter is told about confirmed state changes
type Presenter = pipeline.Presenter

var (
	// ErrSurfaceUnavailable is returned when no realized surface is bound
	ErrSurfaceUnavailable = pipeline.ErrSurfaceUnavailable
	// ErrSurfaceAlreadyBound is returned by a second SurfaceReady
	ErrSurfaceAlreadyBound = pipeline.ErrSurfaceAlreadyBound
	// ErrTransitionStalled is returned when a requested state is never reached
	ErrTransitionStalled = pipeline.ErrTransitionStalled
	// ErrStoppedOnError is returned by Run when a runtime error stopped the
	// stream and the exit-on-error policy is set
	ErrStoppedOnError = errors.New("stream stopped after runtime error")
	// ErrPlayerClosed is returned by Run on a closed or already run player
	ErrPlayerClosed = errors.New("player closed")
)

// Exit codes of the viewer process
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitRuntime = 2
)

// ExitCode maps the result of Run to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrStoppedOnError):
		return ExitRuntime
	default:
		return ExitFailure
	}
}
