package native

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

const defaultPartType = "application/octet-stream"

// Demuxer splits a multipart/x-mixed-replace byte stream into parts and
// pushes each part to an output pad chosen by its Content-Type.
//
// Output pads are created the first time a Content-Type is seen and
// announced to OnOutputAdded handlers, serially, from the streaming
// goroutine. Parts for pads that nobody linked are dropped.
type Demuxer struct {
	stage

	in *Pad

	mu       sync.Mutex
	pads     []*Pad
	byType   map[string]*Pad
	handlers []func(pipeline.ConnectionPoint)
	pw       *io.PipeWriter
	pr       *io.PipeReader

	flushing atomic.Bool
	dropped  atomic.Uint64
	wg       sync.WaitGroup
}

func newDemuxer(name string) *Demuxer {
	d := &Demuxer{byType: map[string]*Pad{}}
	d.init(name, pipeline.RoleDemuxer)
	d.in = newSinkPad("sink", pipeline.KindUnknown, d.chain, d.eos)
	return d
}

func (d *Demuxer) Input() pipeline.ConnectionPoint  { return d.in }
func (d *Demuxer) Output() pipeline.ConnectionPoint { return nil }

// OnOutputAdded registers a handler for new output pads
func (d *Demuxer) OnOutputAdded(h func(out pipeline.ConnectionPoint)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Outputs returns the dynamic pads created so far
func (d *Demuxer) Outputs() []*Pad {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pad(nil), d.pads...)
}

// Dropped returns the number of parts dropped because their pad was unlinked
func (d *Demuxer) Dropped() uint64 { return d.dropped.Load() }

func (d *Demuxer) changeState(next pipeline.RunState, _ func()) (bool, error) {
	cur := d.current()

	switch {
	case cur == pipeline.StateReady && next == pipeline.StatePaused:
		pr, pw := io.Pipe()
		d.mu.Lock()
		d.pr, d.pw = pr, pw
		d.mu.Unlock()
		d.flushing.Store(false)

		d.wg.Add(1)
		go d.loop(pr)

	case cur == pipeline.StatePaused && next == pipeline.StateReady:
		d.flushing.Store(true)
		d.mu.Lock()
		pr, pw := d.pr, d.pw
		d.pr, d.pw = nil, nil
		d.mu.Unlock()

		if pw != nil {
			pw.CloseWithError(errFlushing)
			pr.CloseWithError(errFlushing)
		}
		d.wg.Wait()
		d.releasePads()
	}

	d.setState(next)
	return false, nil
}

func (d *Demuxer) chain(buf Buffer) error {
	d.mu.Lock()
	pw := d.pw
	d.mu.Unlock()

	if pw == nil {
		return errFlushing
	}
	if _, err := pw.Write(buf.Data); err != nil {
		if d.flushing.Load() || errors.Is(err, errFlushing) {
			return errFlushing
		}
		return errFlow
	}
	return nil
}

func (d *Demuxer) eos() {
	d.mu.Lock()
	pw := d.pw
	d.mu.Unlock()

	if pw != nil {
		pw.Close()
	}
}

// loop is the demuxer's streaming goroutine. It runs from Ready->Paused
// until the pipe is closed.
//
// This loop:
//  1. Detects the boundary from the first "--" line of the stream
//  2. Reads each part's headers; a part with Content-Length is pushed as
//     soon as its body arrives, others when the next delimiter shows up
//  3. Finds or creates the output pad for the part's Content-Type,
//     announcing new pads to OnOutputAdded handlers
//  4. Pushes the part downstream; parts for unlinked pads are dropped and
//     counted
//  5. Ends on EOF, a parse error or a downstream failure (see finish)
func (d *Demuxer) loop(pr *io.PipeReader) {
	defer d.wg.Done()
	// unblock the upstream writer if parsing stops early
	defer pr.CloseWithError(errFlow)

	br := bufio.NewReader(pr)
	boundary, err := readBoundary(br)
	if err != nil {
		d.finish(err)
		return
	}
	slog.Debug("native: multipart boundary detected", "stage", d.name, "boundary", boundary)

	parts := newPartReader(br, boundary, maxPartSize)
	for {
		hdr, data, err := parts.next()
		if err != nil {
			d.finish(err)
			return
		}

		ct := pipeline.ParseContentType(hdr.Get("Content-Type"))
		if ct.Name == "" {
			ct = pipeline.ParseContentType(defaultPartType)
		}
		pad := d.padFor(ct)

		if err := pad.push(Buffer{Data: data, Type: ct}); err != nil {
			if errors.Is(err, pipeline.ErrNotLinked) {
				d.dropped.Add(1)
				metrics.IncFrameDropped("not_linked")
				continue
			}
			// downstream is flushing or already reported its failure
			return
		}
	}
}

// readBoundary skips leading blank lines and returns the boundary of the
// first "--boundary" delimiter line.
func readBoundary(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if !strings.HasPrefix(trimmed, "--") || len(trimmed) == 2 {
				return "", fmt.Errorf("stream does not start with a multipart boundary: %q", trimmed)
			}
			return trimmed[2:], nil
		}
		if err != nil {
			return "", err
		}
	}
}

// finish ends the streaming goroutine. End of input forwards EOS to linked
// pads, or reports not-linked when nothing downstream was linked.
func (d *Demuxer) finish(err error) {
	if d.flushing.Load() || errors.Is(err, errFlushing) {
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		forwarded := 0
		for _, p := range d.Outputs() {
			if p.pushEOS() == nil {
				forwarded++
			}
		}
		if forwarded == 0 {
			d.postError("Internal data stream error.", "streaming stopped, reason not-linked")
			return
		}
		slog.Debug("native: end of stream forwarded", "stage", d.name, "pads", forwarded)
		return
	}

	d.postError("Internal data stream error.", fmt.Sprintf("streaming stopped, reason error: %v", err))
}

func (d *Demuxer) padFor(ct pipeline.ContentType) *Pad {
	d.mu.Lock()
	if p, ok := d.byType[ct.Name]; ok {
		d.mu.Unlock()
		return p
	}

	p := newSrcPad(fmt.Sprintf("src_%d", len(d.pads)))
	p.setContentType(ct)
	d.pads = append(d.pads, p)
	d.byType[ct.Name] = p
	handlers := append([]func(pipeline.ConnectionPoint){}, d.handlers...)
	d.mu.Unlock()

	slog.Debug("native: output pad added", "stage", d.name, "pad", p.Name(), "type", ct.String())
	for _, h := range handlers {
		h(p)
	}
	return p
}

func (d *Demuxer) releasePads() {
	d.mu.Lock()
	pads := d.pads
	d.pads = nil
	d.byType = map[string]*Pad{}
	d.mu.Unlock()

	for _, p := range pads {
		p.unlink()
	}
}

// Release stops the demuxer and drops the element to Null
func (d *Demuxer) Release() error {
	return settle(d, pipeline.StateNull)
}
