package native

import (
	"errors"
	"image"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

var (
	// errFlushing is returned downstream-to-upstream when a stage is
	// shutting down; upstream stops quietly.
	errFlushing = errors.New("flushing")
	// errFlow means a downstream stage failed and already posted an error
	errFlow = errors.New("flow error")
)

// Buffer is the unit of data moving between pads
type Buffer struct {
	Data  []byte
	Image image.Image
	Type  pipeline.ContentType
}

// Pad is a native ConnectionPoint.
type Pad struct {
	name   string
	dir    pipeline.Direction
	accept pipeline.MediaKind

	// input pads only
	chain func(Buffer) error
	eos   func()

	mu   sync.Mutex
	ct   *pipeline.ContentType
	peer *Pad
}

func newSrcPad(name string) *Pad {
	return &Pad{name: name, dir: pipeline.DirOutput}
}

// newSinkPad creates an input pad; accept restricts the media kind that may
// be linked to it (KindUnknown accepts anything).
func newSinkPad(name string, accept pipeline.MediaKind, chain func(Buffer) error, eos func()) *Pad {
	return &Pad{name: name, dir: pipeline.DirInput, accept: accept, chain: chain, eos: eos}
}

func (p *Pad) Name() string                  { return p.name }
func (p *Pad) Direction() pipeline.Direction { return p.dir }

func (p *Pad) ContentType() (pipeline.ContentType, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ct == nil {
		return pipeline.ContentType{}, false
	}
	return *p.ct, true
}

func (p *Pad) setContentType(ct pipeline.ContentType) {
	p.mu.Lock()
	p.ct = &ct
	p.mu.Unlock()
}

func (p *Pad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

// Link links this output pad to an input pad.
func (p *Pad) Link(peer pipeline.ConnectionPoint) error {
	in, ok := peer.(*Pad)
	if !ok || in == nil || p.dir != pipeline.DirOutput || in.dir != pipeline.DirInput {
		return pipeline.ErrIncompatible
	}

	// lock order is always output then input
	p.mu.Lock()
	defer p.mu.Unlock()
	in.mu.Lock()
	defer in.mu.Unlock()

	if p.peer != nil || in.peer != nil {
		return pipeline.ErrAlreadyLinked
	}
	if p.ct != nil && in.accept != pipeline.KindUnknown && p.ct.Kind != in.accept {
		return pipeline.ErrIncompatible
	}

	p.peer = in
	in.peer = p
	return nil
}

// unlink breaks the link of an output pad, if any
func (p *Pad) unlink() {
	p.mu.Lock()
	in := p.peer
	p.peer = nil
	p.mu.Unlock()

	if in != nil {
		in.mu.Lock()
		in.peer = nil
		in.mu.Unlock()
	}
}

func (p *Pad) linkedPeer() *Pad {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// push hands buf to the linked input pad
func (p *Pad) push(buf Buffer) error {
	peer := p.linkedPeer()
	if peer == nil {
		return pipeline.ErrNotLinked
	}
	return peer.chain(buf)
}

// pushEOS forwards end-of-stream to the linked input pad
func (p *Pad) pushEOS() error {
	peer := p.linkedPeer()
	if peer == nil {
		return pipeline.ErrNotLinked
	}
	peer.eos()
	return nil
}
