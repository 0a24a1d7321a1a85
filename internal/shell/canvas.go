package shell

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// frameWindow bounds how many presentation times are kept for stats
const frameWindow = 256

var nextHandle atomic.Uint64

// Canvas is an off-screen drawing surface standing in for a native window.
//
// It keeps only the latest presented frame (older ones are overwritten) and
// blanks itself while the pipeline is below Paused.
type Canvas struct {
	width, height int

	handle atomic.Uint64

	mu         sync.Mutex
	latest     *pipeline.Frame
	state      pipeline.RunState
	presented  uint64
	overwrites uint64
	frameTimes []time.Time
	refreshes  uint64
	onRefresh  func(image.Image)
}

// NewCanvas creates an unrealized canvas of the given default size
func NewCanvas(width, height int) *Canvas {
	return &Canvas{width: width, height: height, state: pipeline.StateNull}
}

// Realize allocates the native handle. Idempotent.
func (c *Canvas) Realize() uintptr {
	if h := c.handle.Load(); h != 0 {
		return uintptr(h)
	}
	h := nextHandle.Add(1)
	if !c.handle.CompareAndSwap(0, h) {
		return uintptr(c.handle.Load())
	}
	return uintptr(h)
}

// Handle returns the native handle; 0 until realized
func (c *Canvas) Handle() uintptr { return uintptr(c.handle.Load()) }

// Size returns the default canvas size
func (c *Canvas) Size() (int, int) { return c.width, c.height }

// Present stores frame as the latest one
func (c *Canvas) Present(frame pipeline.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest != nil {
		c.overwrites++
	}
	c.latest = &frame
	c.presented++

	c.frameTimes = append(c.frameTimes, frame.Timestamp)
	if len(c.frameTimes) > frameWindow {
		c.frameTimes = c.frameTimes[len(c.frameTimes)-frameWindow:]
	}
	return nil
}

// StateChanged records the confirmed pipeline state
func (c *Canvas) StateChanged(old, new pipeline.RunState) {
	c.mu.Lock()
	c.state = new
	c.mu.Unlock()
}

// Refresh redraws once and hands the result to the refresh hook
func (c *Canvas) Refresh() {
	img := c.Draw()

	c.mu.Lock()
	c.refreshes++
	hook := c.onRefresh
	c.mu.Unlock()

	if hook != nil {
		hook(img)
	}
}

// OnRefresh installs a hook called with every refreshed image
func (c *Canvas) OnRefresh(hook func(image.Image)) {
	c.mu.Lock()
	c.onRefresh = hook
	c.mu.Unlock()
}

// Draw renders the canvas: black while the pipeline is below Paused or no
// frame arrived yet, otherwise the latest frame.
func (c *Canvas) Draw() image.Image {
	c.mu.Lock()
	state, latest := c.state, c.latest
	c.mu.Unlock()

	if state < pipeline.StatePaused || latest == nil || latest.Image == nil {
		return c.blank()
	}
	return latest.Image
}

// Blank reports whether Draw currently renders the neutral frame
func (c *Canvas) Blank() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state < pipeline.StatePaused || c.latest == nil
}

func (c *Canvas) blank() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return img
}

// Latest returns the most recent frame, if any
func (c *Canvas) Latest() (pipeline.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return pipeline.Frame{}, false
	}
	return *c.latest, true
}

// State returns the last pipeline state the canvas was told about
func (c *Canvas) State() pipeline.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters is a snapshot of canvas counters
type Counters struct {
	Presented  uint64
	Overwrites uint64
	Refreshes  uint64
}

// Counters returns the canvas counters
func (c *Canvas) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Presented: c.presented, Overwrites: c.overwrites, Refreshes: c.refreshes}
}

// RenderStats computes frame-rate statistics over the recent window
func (c *Canvas) RenderStats() *RenderStats {
	c.mu.Lock()
	times := append([]time.Time(nil), c.frameTimes...)
	c.mu.Unlock()

	if len(times) == 0 {
		return CalculateRenderStats(nil, 0)
	}
	return CalculateRenderStats(times, times[len(times)-1].Sub(times[0]))
}
