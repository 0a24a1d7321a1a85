// Package gstreamer provides pipeline stages backed by GStreamer elements
// (tcpclientsrc, multipartdemux, jpegdec and a videoconvert/appsink chain)
// and a bin whose bus messages are translated into pipeline notifications.
package gstreamer

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Element factory names per role
const (
	FactorySource  = "tcpclientsrc"
	FactoryDemuxer = "multipartdemux"
	FactoryDecoder = "jpegdec"
)

var initOnce sync.Once

func initGStreamer() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Available checks that GStreamer and the required plugins can be loaded
func Available() error {
	initGStreamer()

	for _, name := range []string{FactorySource, FactoryDemuxer, FactoryDecoder, "videoconvert", "capsfilter", "appsink"} {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("GStreamer element %q not available: %w", name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

// Factory creates GStreamer-backed stages
type Factory struct{}

var _ pipeline.Factory = Factory{}

// NewFactory initialises GStreamer and fails fast when plugins are missing
func NewFactory() (Factory, error) {
	if err := Available(); err != nil {
		return Factory{}, err
	}
	return Factory{}, nil
}

func (Factory) Backend() string { return "gstreamer" }

func (Factory) NewStage(role pipeline.Role, name string) (pipeline.Stage, error) {
	initGStreamer()

	switch role {
	case pipeline.RoleSource:
		return newSource(name)
	case pipeline.RoleDemuxer:
		return newDemuxer(name)
	case pipeline.RoleDecoder:
		return newDecoder(name)
	case pipeline.RoleSink:
		return newSink(name)
	default:
		return nil, fmt.Errorf("no GStreamer stage for role %s", role)
	}
}

func (Factory) NewBin(name string, bus pipeline.Poster) (pipeline.Bin, error) {
	initGStreamer()
	return newBin(name, bus)
}
