package pipeline

import "fmt"

// Notification is a structured event posted by a stage or by the bin.
//
// The concrete variants are ErrorNotification, EOSNotification and
// StateChangedNotification. Notifications are immutable values.
type Notification interface {
	// Source is the name of the posting stage, or the bin name for
	// pipeline-level notifications.
	Source() string
	fmt.Stringer
	notification()
}

// ErrorNotification reports a runtime failure inside a stage
type ErrorNotification struct {
	Src      string
	Message  string
	Detail   string
	Category string
}

// EOSNotification reports that the stream ended normally
type EOSNotification struct {
	Src string
}

// StateChangedNotification reports a confirmed state change of Src
type StateChangedNotification struct {
	Src     string
	Old     RunState
	New     RunState
	Pending RunState
}

func (n ErrorNotification) Source() string        { return n.Src }
func (n EOSNotification) Source() string          { return n.Src }
func (n StateChangedNotification) Source() string { return n.Src }

func (ErrorNotification) notification()        {}
func (EOSNotification) notification()          {}
func (StateChangedNotification) notification() {}

func (n ErrorNotification) String() string {
	return fmt.Sprintf("error from %s: %s", n.Src, n.Message)
}

func (n EOSNotification) String() string {
	return fmt.Sprintf("eos from %s", n.Src)
}

func (n StateChangedNotification) String() string {
	return fmt.Sprintf("state-changed from %s: %s -> %s (pending %s)", n.Src, n.Old, n.New, n.Pending)
}

// Kind returns a short label for metrics and logs
func Kind(n Notification) string {
	switch n.(type) {
	case ErrorNotification:
		return "error"
	case EOSNotification:
		return "eos"
	case StateChangedNotification:
		return "state_changed"
	default:
		return "unknown"
	}
}
