package native

import (
	"bytes"
	"errors"
	"image/jpeg"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

var rawVideo = pipeline.ParseContentType(pipeline.MediaTypeRawVideo)

// Decoder decodes image/jpeg buffers into images
type Decoder struct {
	stage

	in  *Pad
	out *Pad

	decoded atomic.Uint64
}

func newDecoder(name string) *Decoder {
	d := &Decoder{out: newSrcPad("src")}
	d.init(name, pipeline.RoleDecoder)
	d.in = newSinkPad("sink", pipeline.KindJPEG, d.chain, d.eos)
	d.out.setContentType(rawVideo)
	return d
}

func (d *Decoder) Input() pipeline.ConnectionPoint  { return d.in }
func (d *Decoder) Output() pipeline.ConnectionPoint { return d.out }

// Decoded returns the number of frames decoded so far
func (d *Decoder) Decoded() uint64 { return d.decoded.Load() }

func (d *Decoder) changeState(next pipeline.RunState, _ func()) (bool, error) {
	d.setState(next)
	return false, nil
}

func (d *Decoder) chain(buf Buffer) error {
	if d.current() < pipeline.StatePaused {
		return errFlushing
	}

	img, err := jpeg.Decode(bytes.NewReader(buf.Data))
	if err != nil {
		d.postError("Failed to decode JPEG image", err.Error())
		return errFlow
	}
	d.decoded.Add(1)

	err = d.out.push(Buffer{Image: img, Type: rawVideo})
	if errors.Is(err, pipeline.ErrNotLinked) {
		d.postError("Internal data stream error.", "streaming stopped, reason not-linked")
		return errFlow
	}
	return err
}

func (d *Decoder) eos() {
	d.out.pushEOS()
}

// Release drops the element to Null
func (d *Decoder) Release() error {
	return settle(d, pipeline.StateNull)
}
