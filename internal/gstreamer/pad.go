package gstreamer

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// pad adapts a *gst.Pad to pipeline.ConnectionPoint
type pad struct {
	p *gst.Pad
}

var _ pipeline.ConnectionPoint = (*pad)(nil)

func wrapPad(p *gst.Pad) pipeline.ConnectionPoint {
	if p == nil {
		return nil
	}
	return &pad{p: p}
}

func (p *pad) Name() string { return p.p.GetName() }

func (p *pad) Direction() pipeline.Direction {
	if p.p.GetDirection() == gst.PadDirectionSource {
		return pipeline.DirOutput
	}
	return pipeline.DirInput
}

func (p *pad) ContentType() (pipeline.ContentType, bool) {
	caps := p.p.GetCurrentCaps()
	if caps == nil || caps.IsAny() || caps.IsEmpty() {
		return pipeline.ContentType{}, false
	}
	return pipeline.ParseContentType(caps.String()), true
}

func (p *pad) IsLinked() bool { return p.p.IsLinked() }

func (p *pad) Link(peer pipeline.ConnectionPoint) error {
	other, ok := peer.(*pad)
	if !ok {
		return fmt.Errorf("%w: peer %s is not a GStreamer pad", pipeline.ErrIncompatible, peer.Name())
	}
	return linkError(p.p.Link(other.p))
}

// linkError maps a pad link result onto the pipeline error taxonomy
func linkError(ret gst.PadLinkReturn) error {
	switch ret {
	case gst.PadLinkOK:
		return nil
	case gst.PadLinkWasLinked:
		return pipeline.ErrAlreadyLinked
	case gst.PadLinkNoFormat, gst.PadLinkWrongDirection, gst.PadLinkWrongHierarchy:
		return fmt.Errorf("%w: %v", pipeline.ErrIncompatible, ret)
	default:
		return fmt.Errorf("pad link refused: %v", ret)
	}
}
