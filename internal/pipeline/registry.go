package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
)

// Stages is the complete set of four stages. A *Stages value is only ever
// returned fully populated.
type Stages struct {
	Source  Stage
	Demuxer Stage
	Decoder Stage
	Sink    Stage
}

// All returns the stages in construction order
func (s *Stages) All() []Stage {
	return []Stage{s.Source, s.Demuxer, s.Decoder, s.Sink}
}

// ByRole returns the stage for role r
func (s *Stages) ByRole(r Role) Stage {
	switch r {
	case RoleSource:
		return s.Source
	case RoleDemuxer:
		return s.Demuxer
	case RoleDecoder:
		return s.Decoder
	case RoleSink:
		return s.Sink
	default:
		return nil
	}
}

// Release releases every stage and joins the errors
func (s *Stages) Release() error {
	var errs []error
	for _, st := range s.All() {
		if st == nil {
			continue
		}
		if err := st.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", st.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Target is the network endpoint the source connects to
type Target struct {
	Host string
	Port int
}

// CreateStages constructs the source, demuxer, decoder and sink.
//
// Construction is atomic: if any stage cannot be created, or lacks the
// capability its role requires, the stages created so far are released and
// a *ConstructionError is returned.
//
// Required capabilities:
//   - source: NetworkSource (configured with target)
//   - demuxer: Announcer
//   - sink: SurfaceSink
//   - decoder and sink: a static input; decoder: a static output
func CreateStages(f Factory, target Target) (*Stages, error) {
	if f == nil {
		return nil, &ConstructionError{Role: RoleSource, Name: RoleSource.String(), Err: errors.New("nil factory")}
	}

	created := make([]Stage, 0, len(Roles))
	fail := func(role Role, err error) (*Stages, error) {
		for i := len(created) - 1; i >= 0; i-- {
			if rerr := created[i].Release(); rerr != nil {
				slog.Warn("pipeline: release after failed construction",
					"stage", created[i].Name(),
					"error", rerr,
				)
			}
		}
		return nil, &ConstructionError{Role: role, Name: role.String(), Err: err}
	}

	for _, role := range Roles {
		st, err := f.NewStage(role, role.String())
		if err != nil {
			return fail(role, err)
		}
		if st == nil {
			return fail(role, errors.New("factory returned nil stage"))
		}
		created = append(created, st)

		if err := checkCapability(st, role, target); err != nil {
			return fail(role, err)
		}
	}

	slog.Debug("pipeline: stages created",
		"backend", f.Backend(),
		"host", target.Host,
		"port", target.Port,
	)

	return &Stages{
		Source:  created[0],
		Demuxer: created[1],
		Decoder: created[2],
		Sink:    created[3],
	}, nil
}

func checkCapability(st Stage, role Role, target Target) error {
	switch role {
	case RoleSource:
		ns, ok := st.(NetworkSource)
		if !ok {
			return fmt.Errorf("%w: source is not a network source", ErrMissingCapability)
		}
		if err := ns.SetTarget(target.Host, target.Port); err != nil {
			return fmt.Errorf("set target %s:%d: %w", target.Host, target.Port, err)
		}
		if st.Output() == nil {
			return fmt.Errorf("%w: source has no output", ErrMissingCapability)
		}
	case RoleDemuxer:
		if _, ok := st.(Announcer); !ok {
			return fmt.Errorf("%w: demuxer does not announce outputs", ErrMissingCapability)
		}
		if st.Input() == nil {
			return fmt.Errorf("%w: demuxer has no input", ErrMissingCapability)
		}
	case RoleDecoder:
		if st.Input() == nil || st.Output() == nil {
			return fmt.Errorf("%w: decoder needs an input and an output", ErrMissingCapability)
		}
	case RoleSink:
		if _, ok := st.(SurfaceSink); !ok {
			return fmt.Errorf("%w: sink cannot render to a surface", ErrMissingCapability)
		}
		if st.Input() == nil {
			return fmt.Errorf("%w: sink has no input", ErrMissingCapability)
		}
	}
	return nil
}
