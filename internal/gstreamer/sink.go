package gstreamer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// sinkCaps locks the appsink input to packed RGBA so buffers map straight
// onto image.RGBA.
const sinkCaps = "video/x-raw,format=RGBA"

// Sink is videoconvert ! capsfilter ! appsink, presenting every sample on
// the bound surface.
type Sink struct {
	stage

	appsink *app.Sink

	smu     sync.Mutex
	surface pipeline.Surface

	seq       atomic.Uint64
	presented atomic.Uint64
}

func newSink(name string) (*Sink, error) {
	convert, err := newElement("videoconvert", name+"-convert")
	if err != nil {
		return nil, err
	}
	filter, err := newElement("capsfilter", name+"-caps")
	if err != nil {
		return nil, err
	}
	filter.SetProperty("caps", gst.NewCapsFromString(sinkCaps))

	elem, err := newElement("appsink", name)
	if err != nil {
		return nil, err
	}
	appsink := app.SinkFromElement(elem)
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	s := &Sink{
		stage: stage{
			name:  name,
			role:  pipeline.RoleSink,
			elems: []*gst.Element{convert, filter, elem},
		},
		appsink: appsink,
	}
	s.in = wrapPad(convert.GetStaticPad("sink"))

	// No preroll callback: appsink hands the preroll buffer out again as
	// the first sample once PLAYING, so rendering it here would present
	// the first frame twice.
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.render(sink.PullSample())
		},
	})
	return s, nil
}

// SetSurface binds the rendering target
func (s *Sink) SetSurface(surface pipeline.Surface) error {
	if surface == nil || surface.Handle() == 0 {
		return pipeline.ErrSurfaceUnavailable
	}
	s.smu.Lock()
	defer s.smu.Unlock()
	s.surface = surface
	return nil
}

// Presented returns how many frames reached the surface
func (s *Sink) Presented() uint64 { return s.presented.Load() }

func (s *Sink) render(sample *gst.Sample) gst.FlowReturn {
	if sample == nil {
		slog.Warn("gstreamer: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	s.smu.Lock()
	surface := s.surface
	s.smu.Unlock()
	if surface == nil {
		metrics.IncFrameDropped("no_surface")
		s.postError("Output window was closed", "no surface bound to sink")
		return gst.FlowError
	}

	frame, err := s.toFrame(sample)
	if err != nil {
		metrics.IncFrameDropped("convert")
		slog.Warn("gstreamer: skipping unreadable sample", "error", err)
		return gst.FlowOK
	}

	if err := surface.Present(frame); err != nil {
		metrics.IncFrameDropped("present")
		s.postError("Failed to present frame", err.Error())
		return gst.FlowError
	}
	s.presented.Add(1)
	metrics.FramesPresentedTotal.Inc()

	slog.Debug("gstreamer: frame presented",
		"seq", frame.Seq,
		"trace_id", frame.TraceID,
	)
	return gst.FlowOK
}

func (s *Sink) toFrame(sample *gst.Sample) (pipeline.Frame, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return pipeline.Frame{}, errors.New("sample has no caps")
	}
	st := caps.GetStructureAt(0)
	width, err := intField(st, "width")
	if err != nil {
		return pipeline.Frame{}, err
	}
	height, err := intField(st, "height")
	if err != nil {
		return pipeline.Frame{}, err
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return pipeline.Frame{}, errors.New("sample has no buffer")
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) < width*height*4 {
		return pipeline.Frame{}, fmt.Errorf("short buffer: %d bytes for %dx%d RGBA", len(data), width, height)
	}

	// copy: GStreamer reuses the buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:width*height*4])

	return pipeline.Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Image:     img,
		TraceID:   uuid.New().String(),
	}, nil
}

func intField(st *gst.Structure, key string) (int, error) {
	v, err := st.GetValue(key)
	if err != nil {
		return 0, fmt.Errorf("caps field %s: %w", key, err)
	}
	n, ok := v.(int)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("caps field %s: unexpected value %v", key, v)
	}
	return n, nil
}

func (s *Sink) postError(message, detail string) {
	b := s.owner()
	if b == nil {
		return
	}
	b.post(errorNotification(s.name, message, detail))
}
