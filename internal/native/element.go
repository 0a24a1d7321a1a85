package native

import (
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/diagnostics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// element is a native stage the Bin can drive
type element interface {
	pipeline.Stage
	base() *stage
	// changeState moves the element one level to next. done is non-nil on
	// Ready -> Paused; an element returning async=true calls it once it has
	// completed the transition (sink preroll).
	changeState(next pipeline.RunState, done func()) (async bool, err error)
}

// stage holds what every native element shares
type stage struct {
	name string
	role pipeline.Role

	// serializes state changes of one element
	transition sync.Mutex

	mu    sync.Mutex
	state pipeline.RunState
	bin   *Bin
}

func (s *stage) init(name string, role pipeline.Role) {
	s.name = name
	s.role = role
	s.state = pipeline.StateNull
}

func (s *stage) Name() string        { return s.name }
func (s *stage) Role() pipeline.Role { return s.role }
func (s *stage) base() *stage        { return s }

func (s *stage) current() pipeline.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stage) attach(b *Bin) {
	s.mu.Lock()
	s.bin = b
	s.mu.Unlock()
}

func (s *stage) owner() *Bin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bin
}

// setState records the new level and posts a stage StateChanged
func (s *stage) setState(next pipeline.RunState) {
	s.mu.Lock()
	old := s.state
	s.state = next
	s.mu.Unlock()

	s.post(pipeline.StateChangedNotification{
		Src:     s.name,
		Old:     old,
		New:     next,
		Pending: pipeline.StateVoidPending,
	})
}

func (s *stage) post(n pipeline.Notification) {
	if b := s.owner(); b != nil {
		b.post(n)
	}
}

func (s *stage) postError(message, detail string) {
	slog.Debug("native: stage error", "stage", s.name, "message", message, "detail", detail)
	s.post(pipeline.ErrorNotification{
		Src:      s.name,
		Message:  message,
		Detail:   detail,
		Category: diagnostics.Classify(message, detail).String(),
	})
}

// step runs one guarded state change of e
func step(e element, next pipeline.RunState, done func()) (bool, error) {
	b := e.base()
	b.transition.Lock()
	defer b.transition.Unlock()

	if b.current() == next {
		return false, nil
	}
	return e.changeState(next, done)
}

// settle walks e down to target one level at a time
func settle(e element, target pipeline.RunState) error {
	for {
		cur := e.base().current()
		if cur <= target {
			return nil
		}
		if _, err := step(e, cur-1, nil); err != nil {
			return err
		}
	}
}
