package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// stage is the part shared by every GStreamer-backed stage. elems are the
// GStreamer elements making up the stage, in upstream-to-downstream order;
// they are added to the pipeline together and linked internally.
type stage struct {
	name  string
	role  pipeline.Role
	elems []*gst.Element
	in    pipeline.ConnectionPoint
	out   pipeline.ConnectionPoint

	mu       sync.Mutex
	bin      *Bin
	released bool
}

func (s *stage) Name() string                     { return s.name }
func (s *stage) Role() pipeline.Role              { return s.role }
func (s *stage) Input() pipeline.ConnectionPoint  { return s.in }
func (s *stage) Output() pipeline.ConnectionPoint { return s.out }

func (s *stage) base() *stage { return s }

func (s *stage) attach(b *Bin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bin != nil {
		return fmt.Errorf("stage %s already belongs to a bin", s.name)
	}
	s.bin = b
	return nil
}

func (s *stage) owner() *Bin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bin
}

// Release drops the stage. Elements owned by a pipeline are freed with it;
// orphan elements are set to NULL here.
func (s *stage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if s.bin == nil {
		for _, e := range s.elems {
			e.SetState(gst.StateNull)
		}
	}
	return nil
}

// gstStage is implemented by every stage of this package
type gstStage interface {
	pipeline.Stage
	base() *stage
}

func newElement(factory, name string) (*gst.Element, error) {
	elem, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}
	return elem, nil
}

// Source wraps tcpclientsrc
type Source struct {
	stage
}

func newSource(name string) (*Source, error) {
	elem, err := newElement(FactorySource, name)
	if err != nil {
		return nil, err
	}
	s := &Source{stage{name: name, role: pipeline.RoleSource, elems: []*gst.Element{elem}}}
	s.out = wrapPad(elem.GetStaticPad("src"))
	return s, nil
}

// SetTarget sets the host and port properties
func (s *Source) SetTarget(host string, port int) error {
	if host == "" {
		return errors.New("empty host")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	if err := s.elems[0].SetProperty("host", host); err != nil {
		return fmt.Errorf("set host: %w", err)
	}
	if err := s.elems[0].SetProperty("port", port); err != nil {
		return fmt.Errorf("set port: %w", err)
	}
	return nil
}

// Demuxer wraps multipartdemux; its outputs are announced through pad-added
type Demuxer struct {
	stage

	hmu      sync.Mutex
	handlers []func(pipeline.ConnectionPoint)
}

func newDemuxer(name string) (*Demuxer, error) {
	elem, err := newElement(FactoryDemuxer, name)
	if err != nil {
		return nil, err
	}
	d := &Demuxer{stage: stage{name: name, role: pipeline.RoleDemuxer, elems: []*gst.Element{elem}}}
	d.in = wrapPad(elem.GetStaticPad("sink"))

	elem.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		d.announce(srcPad)
	})
	return d, nil
}

// OnOutputAdded registers handler for new demuxer outputs
func (d *Demuxer) OnOutputAdded(handler func(pipeline.ConnectionPoint)) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.handlers = append(d.handlers, handler)
}

func (d *Demuxer) announce(srcPad *gst.Pad) {
	slog.Debug("gstreamer: pad-added signal received",
		"element", d.name,
		"pad", srcPad.GetName(),
	)

	d.hmu.Lock()
	defer d.hmu.Unlock()
	out := wrapPad(srcPad)
	for _, h := range d.handlers {
		h(out)
	}
}

// Decoder wraps jpegdec
type Decoder struct {
	stage
}

func newDecoder(name string) (*Decoder, error) {
	elem, err := newElement(FactoryDecoder, name)
	if err != nil {
		return nil, err
	}
	d := &Decoder{stage{name: name, role: pipeline.RoleDecoder, elems: []*gst.Element{elem}}}
	d.in = wrapPad(elem.GetStaticPad("sink"))
	d.out = wrapPad(elem.GetStaticPad("src"))
	return d, nil
}
