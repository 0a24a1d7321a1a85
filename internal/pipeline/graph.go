package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Graph owns the stage set and the bin that gives it a single lifecycle
// handle. Stages never outlive the graph: Teardown releases them.
type Graph struct {
	name   string
	bin    Bin
	stages *Stages
	bus    *EventBus

	mu       sync.Mutex
	tornDown bool
	released int
}

// Build creates the bin, adds the stages and performs the static links
// source -> demuxer and decoder -> sink, in that order.
//
// On failure the partially built graph is torn down (bin closed, stages
// released) and the failing link is reported as a *LinkError.
func Build(f Factory, name string, stages *Stages, bus *EventBus) (*Graph, error) {
	if stages == nil {
		return nil, &LinkError{From: "?", To: "?", Err: errors.New("no stages")}
	}

	bin, err := f.NewBin(name, bus)
	if err != nil {
		if rerr := stages.Release(); rerr != nil {
			slog.Warn("pipeline: release stages", "error", rerr)
		}
		return nil, fmt.Errorf("create bin %q: %w", name, err)
	}

	g := &Graph{name: name, bin: bin, stages: stages, bus: bus}

	if err := bin.Add(stages.All()...); err != nil {
		g.Teardown()
		return nil, fmt.Errorf("add stages to %q: %w", name, err)
	}

	links := []struct{ from, to Stage }{
		{stages.Source, stages.Demuxer},
		{stages.Decoder, stages.Sink},
	}
	for _, l := range links {
		if err := linkStatic(l.from, l.to); err != nil {
			g.Teardown()
			return nil, err
		}
		slog.Debug("pipeline: static link established",
			"from", l.from.Name(),
			"to", l.to.Name(),
		)
	}

	return g, nil
}

func linkStatic(from, to Stage) error {
	out, in := from.Output(), to.Input()
	if out == nil || in == nil {
		return &LinkError{From: from.Name(), To: to.Name(), Err: ErrIncompatible}
	}
	if err := out.Link(in); err != nil {
		return &LinkError{From: from.Name(), To: to.Name(), Err: err}
	}
	return nil
}

// Name returns the bin name; top-level StateChanged notifications carry it
// as their source.
func (g *Graph) Name() string { return g.name }

// Stages returns the owned stage set
func (g *Graph) Stages() *Stages { return g.stages }

// RequestTransition asks the bin to move to target.
//
// Acceptance is not completion: the new state is confirmed later through a
// StateChanged notification from the bin.
func (g *Graph) RequestTransition(target RunState) error {
	if !target.Valid() {
		return &TransitionError{Target: target, Err: errors.New("invalid target state")}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tornDown {
		return &TransitionError{Target: target, Err: ErrTornDown}
	}
	if err := g.bin.SetState(target); err != nil {
		return &TransitionError{Target: target, Err: err}
	}
	return nil
}

// Teardown forces the bin to Null and releases every stage.
//
// Safe to call any number of times; resources are released once. The bus is
// put in flushing mode first so that in-flight stage work cannot deliver
// anything after teardown.
func (g *Graph) Teardown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tornDown {
		return nil
	}
	g.tornDown = true

	if g.bus != nil {
		g.bus.SetFlushing(true)
	}

	var errs []error
	if err := g.bin.SetState(StateNull); err != nil {
		errs = append(errs, fmt.Errorf("set %s to NULL: %w", g.name, err))
	}
	if err := g.bin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", g.name, err))
	}
	if err := g.stages.Release(); err != nil {
		errs = append(errs, err)
	}
	g.released++

	slog.Debug("pipeline: torn down", "pipeline", g.name)
	return errors.Join(errs...)
}

// TornDown reports whether Teardown has run
func (g *Graph) TornDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tornDown
}
