package pipeline

// Diagnostics receives human-readable error reports and the termination
// reason of a session.
type Diagnostics interface {
	Error(stage, message, detail string)
	Terminated(reason string)
}

// Presenter is told about every confirmed RunState change of the pipeline.
// Refresh is a one-shot redraw request issued on Ready -> Paused.
type Presenter interface {
	StateChanged(old, new RunState)
	Refresh()
}

// Recorder collects controller telemetry
type Recorder interface {
	NotificationHandled(kind, source string)
	LinkAttempt(result string)
	TransitionRequested(target RunState)
	StateConfirmed(state RunState)
	Stalled(target RunState)
}

// Link attempt results passed to Recorder.LinkAttempt
const (
	LinkResultLinked        = "linked"
	LinkResultAlreadyLinked = "already_linked"
	LinkResultIgnored       = "ignored"
	LinkResultFailed        = "failed"
)

type nopDiagnostics struct{}

func (nopDiagnostics) Error(string, string, string) {}
func (nopDiagnostics) Terminated(string)            {}

type nopRecorder struct{}

func (nopRecorder) NotificationHandled(string, string) {}
func (nopRecorder) LinkAttempt(string)                 {}
func (nopRecorder) TransitionRequested(RunState)       {}
func (nopRecorder) StateConfirmed(RunState)            {}
func (nopRecorder) Stalled(RunState)                   {}
