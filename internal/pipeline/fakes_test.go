package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

type fakePoint struct {
	name string
	dir  Direction

	mu      sync.Mutex
	ct      *ContentType
	peer    *fakePoint
	linkErr error
	links   int
}

func newPoint(name string, dir Direction) *fakePoint {
	return &fakePoint{name: name, dir: dir}
}

func newTypedOutput(name, mediaType string) *fakePoint {
	p := newPoint(name, DirOutput)
	ct := ParseContentType(mediaType)
	p.ct = &ct
	return p
}

func (p *fakePoint) Name() string         { return p.name }
func (p *fakePoint) Direction() Direction { return p.dir }

func (p *fakePoint) ContentType() (ContentType, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ct == nil {
		return ContentType{}, false
	}
	return *p.ct, true
}

func (p *fakePoint) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

func (p *fakePoint) Link(peer ConnectionPoint) error {
	in, ok := peer.(*fakePoint)
	if !ok || p.dir != DirOutput || in.dir != DirInput {
		return ErrIncompatible
	}
	if p.linkErr != nil {
		return p.linkErr
	}
	if in.IsLinked() || p.IsLinked() {
		return ErrAlreadyLinked
	}

	p.mu.Lock()
	p.peer = in
	p.links++
	p.mu.Unlock()

	in.mu.Lock()
	in.peer = p
	in.links++
	in.mu.Unlock()
	return nil
}

func (p *fakePoint) Peer() *fakePoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

type fakeStage struct {
	name string
	role Role
	in   *fakePoint
	out  *fakePoint

	mu        sync.Mutex
	releases  int
	handlers  []func(ConnectionPoint)
	surfaces  []Surface
	host      string
	port      int
	targetErr error
}

func newFakeStage(role Role, name string) *fakeStage {
	s := &fakeStage{name: name, role: role}
	switch role {
	case RoleSource:
		s.out = newPoint("src", DirOutput)
	case RoleDemuxer:
		s.in = newPoint("sink", DirInput)
	case RoleDecoder:
		s.in = newPoint("sink", DirInput)
		s.out = newPoint("src", DirOutput)
	case RoleSink:
		s.in = newPoint("sink", DirInput)
	}
	return s
}

func (s *fakeStage) Name() string { return s.name }
func (s *fakeStage) Role() Role   { return s.role }

func (s *fakeStage) Input() ConnectionPoint {
	if s.in == nil {
		return nil
	}
	return s.in
}

func (s *fakeStage) Output() ConnectionPoint {
	if s.out == nil {
		return nil
	}
	return s.out
}

func (s *fakeStage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *fakeStage) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

func (s *fakeStage) SetTarget(host string, port int) error {
	s.host, s.port = host, port
	return s.targetErr
}

func (s *fakeStage) OnOutputAdded(h func(ConnectionPoint)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// announce invokes the registered handlers serially
func (s *fakeStage) announce(out ConnectionPoint) {
	s.mu.Lock()
	hs := append([]func(ConnectionPoint){}, s.handlers...)
	s.mu.Unlock()
	for _, h := range hs {
		h(out)
	}
}

func (s *fakeStage) SetSurface(surf Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces = append(s.surfaces, surf)
	return nil
}

// bareStage hides every optional capability of the wrapped stage
type bareStage struct{ Stage }

type fakeBin struct {
	name string
	bus  Poster

	mu     sync.Mutex
	added  []Stage
	states []RunState
	setErr map[RunState]error
	closes int
}

func (b *fakeBin) Name() string { return b.name }

func (b *fakeBin) Add(stages ...Stage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, stages...)
	return nil
}

func (b *fakeBin) SetState(target RunState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, target)
	return b.setErr[target]
}

func (b *fakeBin) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *fakeBin) States() []RunState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RunState(nil), b.states...)
}

type fakeFactory struct {
	fail   map[Role]error
	bare   map[Role]bool
	stages map[Role]*fakeStage
	bin    *fakeBin
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		fail:   map[Role]error{},
		bare:   map[Role]bool{},
		stages: map[Role]*fakeStage{},
	}
}

func (f *fakeFactory) Backend() string { return "fake" }

func (f *fakeFactory) NewStage(role Role, name string) (Stage, error) {
	if err := f.fail[role]; err != nil {
		return nil, err
	}
	s := newFakeStage(role, name)
	f.stages[role] = s
	if f.bare[role] {
		return bareStage{s}, nil
	}
	return s, nil
}

func (f *fakeFactory) NewBin(name string, bus Poster) (Bin, error) {
	f.bin = &fakeBin{name: name, bus: bus, setErr: map[RunState]error{}}
	return f.bin, nil
}

// fakeTransitioner records requests made by the controller
type fakeTransitioner struct {
	name      string
	requests  []RunState
	rejects   map[RunState]error
	teardowns int
}

func newFakeTransitioner() *fakeTransitioner {
	return &fakeTransitioner{name: "test-pipeline", rejects: map[RunState]error{}}
}

func (t *fakeTransitioner) Name() string { return t.name }

func (t *fakeTransitioner) RequestTransition(target RunState) error {
	t.requests = append(t.requests, target)
	return t.rejects[target]
}

func (t *fakeTransitioner) Teardown() error {
	t.teardowns++
	return nil
}

type diagEntry struct {
	stage, message, detail string
}

type fakeDiagnostics struct {
	errors     []diagEntry
	terminated []string
}

func (d *fakeDiagnostics) Error(stage, message, detail string) {
	d.errors = append(d.errors, diagEntry{stage, message, detail})
}

func (d *fakeDiagnostics) Terminated(reason string) {
	d.terminated = append(d.terminated, reason)
}

type fakePresenter struct {
	changes   []string
	refreshes int
}

func (p *fakePresenter) StateChanged(old, new RunState) {
	p.changes = append(p.changes, fmt.Sprintf("%s->%s", old, new))
}

func (p *fakePresenter) Refresh() { p.refreshes++ }

type fakeSurface struct {
	handle uintptr
}

func (s *fakeSurface) Handle() uintptr         { return s.handle }
func (s *fakeSurface) Present(frame Frame) error { return nil }

var errBoom = errors.New("boom")

// walk returns the StateChanged notifications a bin would post moving from
// one state to another, one level at a time.
func walk(src string, from, to RunState) []Notification {
	var out []Notification
	step := 1
	if to < from {
		step = -1
	}
	for s := from; s != to; s += RunState(step) {
		next := s + RunState(step)
		pending := StateVoidPending
		if next != to {
			pending = to
		}
		out = append(out, StateChangedNotification{Src: src, Old: s, New: next, Pending: pending})
	}
	return out
}
