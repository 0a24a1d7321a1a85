package pipeline

// RunState is the lifecycle phase of the pipeline.
//
// Values are totally ordered: Null < Ready < Paused < Playing.
// StateVoidPending only appears as the pending field of a StateChanged
// notification, meaning "no further transition pending".
type RunState int

const (
	// StateVoidPending means no transition is pending
	StateVoidPending RunState = iota
	// StateNull is the initial and terminal state (no resources held)
	StateNull
	// StateReady means resources are allocated but no data flows
	StateReady
	// StatePaused means data flows up to the sink, which holds its first frame
	StatePaused
	// StatePlaying means frames are rendered to the bound surface
	StatePlaying
)

// String returns the conventional upper-case state name
func (s RunState) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of Null, Ready, Paused or Playing.
func (s RunState) Valid() bool {
	return s >= StateNull && s <= StatePlaying
}

// ParseRunState parses a state name as returned by String.
func ParseRunState(name string) (RunState, bool) {
	for s := StateVoidPending; s <= StatePlaying; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return StateVoidPending, false
}
