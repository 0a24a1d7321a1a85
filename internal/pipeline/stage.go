package pipeline

import (
	"image"
	"time"
)

// Role is the capability role of a Stage
type Role int

const (
	// RoleSource receives bytes from the network
	RoleSource Role = iota
	// RoleDemuxer splits the multiplexed stream into typed outputs
	RoleDemuxer
	// RoleDecoder turns compressed frames into images
	RoleDecoder
	// RoleSink presents images on the bound surface
	RoleSink
)

// Roles lists every role in construction order.
var Roles = []Role{RoleSource, RoleDemuxer, RoleDecoder, RoleSink}

// String returns the conventional stage name for the role
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDemuxer:
		return "demuxer"
	case RoleDecoder:
		return "decoder"
	case RoleSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Direction of a ConnectionPoint
type Direction int

const (
	// DirInput receives data from a linked output
	DirInput Direction = iota
	// DirOutput pushes data to a linked input
	DirOutput
)

func (d Direction) String() string {
	if d == DirInput {
		return "input"
	}
	return "output"
}

// ConnectionPoint is a typed attachment point belonging to exactly one Stage.
//
// An input may be linked to at most one output at a time. Linking is done
// from the output side: out.Link(in).
type ConnectionPoint interface {
	Name() string
	Direction() Direction
	// ContentType returns the descriptor once data has been seen.
	ContentType() (ContentType, bool)
	IsLinked() bool
	Link(peer ConnectionPoint) error
}

// Stage is an opaque processing unit created by a Factory.
type Stage interface {
	Name() string
	Role() Role
	// Input returns the static input, or nil for the source.
	Input() ConnectionPoint
	// Output returns the static output, or nil when outputs are dynamic
	// (demuxer) or absent (sink).
	Output() ConnectionPoint
	// Release frees the stage's resources. Safe to call more than once.
	Release() error
}

// NetworkSource is implemented by source stages that connect to a TCP peer
type NetworkSource interface {
	SetTarget(host string, port int) error
}

// Announcer is implemented by stages whose outputs appear at runtime.
// Handlers for a single stage are invoked serially, in announcement order.
type Announcer interface {
	OnOutputAdded(handler func(out ConnectionPoint))
}

// SurfaceSink is implemented by sink stages that render to a native surface
type SurfaceSink interface {
	SetSurface(s Surface) error
}

// Surface is a native rendering target owned by the presentation layer.
// It is borrowed by the sink and must stay valid while the pipeline is
// Paused or Playing.
type Surface interface {
	// Handle returns the platform window identifier; 0 means unrealized.
	Handle() uintptr
	// Present displays a decoded frame. Called from one rendering
	// goroutine at a time.
	Present(frame Frame) error
}

// Frame is a decoded picture handed to the surface
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Image     image.Image
	TraceID   string
}

// Poster accepts notifications without blocking.
type Poster interface {
	Post(n Notification) bool
}

// Bin is the top-level container giving the pipeline a single lifecycle
// handle. SetState is asynchronous: a nil error means the transition was
// accepted; completion is reported by StateChanged notifications whose
// source is the bin's name.
type Bin interface {
	Name() string
	Add(stages ...Stage) error
	SetState(target RunState) error
	Close() error
}

// Factory is a capability provider for stages and bins.
type Factory interface {
	Backend() string
	NewStage(role Role, name string) (Stage, error)
	NewBin(name string, bus Poster) (Bin, error)
}
