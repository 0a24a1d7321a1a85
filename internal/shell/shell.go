// Package shell is a headless presentation shell.
//
// It owns a Canvas (the rendering surface handed to the pipeline), refreshes
// it periodically, blanks it while the pipeline is below Paused and can save
// the refreshed image to disk.
package shell

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Default window geometry and refresh period
const (
	DefaultWidth           = 1200
	DefaultHeight          = 800
	DefaultRefreshInterval = time.Second
	DefaultJPEGQuality     = 90
)

// Options configures a Shell
type Options struct {
	Width, Height   int
	RefreshInterval time.Duration

	// OutputDir enables snapshot saving when non-empty
	OutputDir   string
	Format      string
	JPEGQuality int
}

// Stats summarises shell activity
type Stats struct {
	Counters
	Render     *RenderStats
	Saved      uint64
	SaveErrors uint64
	State      pipeline.RunState
}

// Shell drives a Canvas
type Shell struct {
	opts   Options
	canvas *Canvas

	realizeOnce sync.Once
	realizeErr  error

	mu         sync.Mutex
	lastSaved  uint64
	saved      uint64
	saveErrors uint64
}

// New creates a shell with an unrealized canvas
func New(opts Options) *Shell {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}

	s := &Shell{opts: opts, canvas: NewCanvas(opts.Width, opts.Height)}
	s.canvas.OnRefresh(s.refreshed)
	return s
}

// Canvas returns the shell's drawing surface. It doubles as the pipeline
// Presenter.
func (s *Shell) Canvas() *Canvas { return s.canvas }

// Realize realizes the canvas and calls ready with it. ready is called at
// most once however often Realize is called.
func (s *Shell) Realize(ready func(pipeline.Surface) error) error {
	s.realizeOnce.Do(func() {
		handle := s.canvas.Realize()
		slog.Info("shell: canvas realized",
			"handle", handle,
			"width", s.opts.Width,
			"height", s.opts.Height,
		)
		if ready != nil {
			s.realizeErr = ready(s.canvas)
		}
	})
	return s.realizeErr
}

// Run refreshes the canvas every RefreshInterval until ctx is done
func (s *Shell) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.canvas.Refresh()
			s.report()
		}
	}
}

func (s *Shell) report() {
	st := s.Stats()
	slog.Debug("shell: refresh",
		"state", st.State.String(),
		"presented", st.Presented,
		"overwrites", st.Overwrites,
		"fps", fmt.Sprintf("%.2f", st.Render.FPSMean),
		"jitter_ms", fmt.Sprintf("%.1f", st.Render.JitterMean*1000),
		"smooth", st.Render.Smooth,
		"saved", st.Saved,
	)
}

// refreshed saves a snapshot of img when it shows a frame not saved yet
func (s *Shell) refreshed(img image.Image) {
	if s.opts.OutputDir == "" || s.canvas.Blank() {
		return
	}
	frame, ok := s.canvas.Latest()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if frame.Seq == s.lastSaved && s.saved > 0 {
		return
	}

	path, err := SaveSnapshot(s.opts.OutputDir, frame.Seq, frame.Timestamp, img, s.opts.Format, s.opts.JPEGQuality)
	if err != nil {
		s.saveErrors++
		slog.Error("shell: failed to save snapshot", "error", err, "seq", frame.Seq)
		return
	}
	s.lastSaved = frame.Seq
	s.saved++
	slog.Debug("shell: snapshot saved", "path", path, "seq", frame.Seq)
}

// Stats returns shell statistics
func (s *Shell) Stats() Stats {
	s.mu.Lock()
	saved, saveErrors := s.saved, s.saveErrors
	s.mu.Unlock()

	return Stats{
		Counters:   s.canvas.Counters(),
		Render:     s.canvas.RenderStats(),
		Saved:      saved,
		SaveErrors: saveErrors,
		State:      s.canvas.State(),
	}
}

// ErrNotRealized is returned by Snapshot before the canvas is realized
var ErrNotRealized = errors.New("shell: canvas not realized")

// Snapshot returns what the canvas would draw now
func (s *Shell) Snapshot() (image.Image, error) {
	if s.canvas.Handle() == 0 {
		return nil, ErrNotRealized
	}
	return s.canvas.Draw(), nil
}
