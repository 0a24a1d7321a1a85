// Package native is a pure-Go capability provider for the pipeline: a TCP
// client source, a multipart demuxer, a JPEG decoder and a surface sink,
// plus a bin that drives them through state changes and posts
// notifications the way a GStreamer pipeline does.
package native

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Factory creates native stages
type Factory struct {
	// DialTimeout bounds the source's TCP connect (default 5s)
	DialTimeout time.Duration
	// ChunkSize is the source read size (default 4096)
	ChunkSize int
}

var _ pipeline.Factory = Factory{}

func (Factory) Backend() string { return "native" }

func (f Factory) NewStage(role pipeline.Role, name string) (pipeline.Stage, error) {
	switch role {
	case pipeline.RoleSource:
		return newSource(name, f.DialTimeout, f.ChunkSize), nil
	case pipeline.RoleDemuxer:
		return newDemuxer(name), nil
	case pipeline.RoleDecoder:
		return newDecoder(name), nil
	case pipeline.RoleSink:
		return newSink(name), nil
	default:
		return nil, fmt.Errorf("no native stage for role %s", role)
	}
}

func (Factory) NewBin(name string, bus pipeline.Poster) (pipeline.Bin, error) {
	return NewBin(name, bus), nil
}
