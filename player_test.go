package streamviewer

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/diagnostics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/mjpeg"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/native"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testSurface is a realized surface that also observes state changes
type testSurface struct {
	mu        sync.Mutex
	frames    []Frame
	states    []RunState
	refreshes int
}

func (s *testSurface) Handle() uintptr { return 0x2a }

func (s *testSurface) Present(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *testSurface) StateChanged(old, new RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, new)
}

func (s *testSurface) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
}

func (s *testSurface) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *testSurface) sawState(state RunState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st == state {
			return true
		}
	}
	return false
}

func startServer(t *testing.T, opts mjpeg.ServerOptions) int {
	t.Helper()
	srv, err := mjpeg.Listen("127.0.0.1:0", opts)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(context.Background())
	}()
	t.Cleanup(func() {
		srv.Close()
		<-done
	})
	return srv.Addr().Port
}

// freePort returns a port nothing listens on
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Source.Port = port
	cfg.Source.DialTimeout = time.Second
	cfg.Lifecycle.TransitionTimeout = 5 * time.Second
	return cfg
}

func newPlayer(t *testing.T, cfg Config) (*Player, *testSurface, *diagnostics.Reporter) {
	t.Helper()
	surface := &testSurface{}
	diag := diagnostics.NewReporter("test")

	p, err := New(cfg, native.Factory{DialTimeout: cfg.Source.DialTimeout}, diag, surface)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	require.NoError(t, p.SurfaceReady(surface))
	return p, surface, diag
}

func runAsync(ctx context.Context, p *Player) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestPlayerPlaysUntilEndOfStream(t *testing.T) {
	port := startServer(t, mjpeg.ServerOptions{Frames: 5, Interval: 10 * time.Millisecond, Width: 64, Height: 48})
	p, surface, diag := newPlayer(t, testConfig(port))

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))

	assert.Equal(t, 5, surface.frameCount())
	assert.True(t, surface.sawState(StatePaused))
	assert.True(t, surface.sawState(StatePlaying))
	assert.Equal(t, 1, surface.refreshes)
	assert.Equal(t, StateNull, p.RunState())

	stats := p.Stats()
	assert.Equal(t, "native", stats.Backend)
	assert.NotEmpty(t, stats.LinkedTo)
	assert.NotZero(t, stats.NotificationsHandled)
	assert.True(t, stats.SurfaceBound)

	reason, ok := diag.TerminationReason()
	require.True(t, ok)
	assert.Equal(t, "end-of-stream", reason)
	assert.Empty(t, diag.Errors())

	f := surface.frames[0]
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 48, f.Height)
	assert.NotEmpty(t, f.TraceID)
}

func TestPlayerPresentsHeldSingleFrame(t *testing.T) {
	// the server sends one frame and then keeps the connection open
	port := startServer(t, mjpeg.ServerOptions{Frames: 1, Hold: true, Width: 32, Height: 24})
	cfg := testConfig(port)
	cfg.Lifecycle.TransitionTimeout = 2 * time.Second
	p, surface, diag := newPlayer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, p)

	require.Eventually(t, func() bool {
		return p.RunState() == StatePlaying && surface.frameCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	err := waitRun(t, done)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.Equal(t, 1, surface.frameCount())
	assert.Empty(t, diag.Errors())
}

func TestPlayerUnreachableHost(t *testing.T) {
	p, _, diag := newPlayer(t, testConfig(freePort(t)))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var terr *pipeline.TransitionError
	assert.True(t, errors.As(err, &terr))
	assert.Equal(t, StateNull, p.RunState())
	assert.NotEmpty(t, diag.Errors())
}

func TestPlayerStallsWithoutDecodableOutput(t *testing.T) {
	port := startServer(t, mjpeg.ServerOptions{
		Frames:       3,
		ContentTypes: []string{"text/plain"},
		Hold:         true,
	})
	cfg := testConfig(port)
	cfg.Lifecycle.TransitionTimeout = 300 * time.Millisecond
	p, surface, _ := newPlayer(t, cfg)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrTransitionStalled)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Zero(t, surface.frameCount())
	assert.False(t, surface.sawState(StatePaused))
	assert.Zero(t, p.Stats().LinkedTo)
}

func TestPlayerStopsOnRuntimeError(t *testing.T) {
	port := startServer(t, mjpeg.ServerOptions{
		Frames:      6,
		Interval:    10 * time.Millisecond,
		CorruptFrom: 2,
		Hold:        true,
	})
	cfg := testConfig(port)
	cfg.Lifecycle.ExitOnError = true
	p, surface, diag := newPlayer(t, cfg)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrStoppedOnError)
	assert.Equal(t, ExitRuntime, ExitCode(err))

	assert.True(t, surface.sawState(StatePlaying))
	assert.True(t, surface.sawState(StateReady))
	require.NotEmpty(t, diag.Errors())
	assert.Equal(t, "decoder", diag.Errors()[0].Stage)
	assert.Equal(t, "codec", diag.Errors()[0].Category)
}

func TestPlayerStaysReadyAfterError(t *testing.T) {
	port := startServer(t, mjpeg.ServerOptions{
		Frames:      6,
		Interval:    10 * time.Millisecond,
		CorruptFrom: 2,
		Hold:        true,
	})
	p, surface, _ := newPlayer(t, testConfig(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, p)

	require.Eventually(t, func() bool {
		return surface.sawState(StatePlaying) && p.RunState() == StateReady
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, waitRun(t, done))
	assert.Equal(t, StateNull, p.RunState())
}

func TestPlayerCloseStopsRun(t *testing.T) {
	port := startServer(t, mjpeg.ServerOptions{Interval: 10 * time.Millisecond})
	p, surface, _ := newPlayer(t, testConfig(port))

	done := runAsync(context.Background(), p)
	require.Eventually(t, func() bool {
		return p.RunState() == StatePlaying && surface.frameCount() > 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Close())
	assert.NoError(t, waitRun(t, done))
	assert.Equal(t, StateNull, p.RunState())

	// closed players do not run again
	assert.ErrorIs(t, p.Run(context.Background()), ErrPlayerClosed)
	assert.NoError(t, p.Close())
}

func TestPlayerSurfaceBinding(t *testing.T) {
	cfg := testConfig(freePort(t))
	p, err := New(cfg, native.Factory{}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.SurfaceReady(nil), ErrSurfaceUnavailable)

	first := &testSurface{}
	require.NoError(t, p.SurfaceReady(first))
	assert.ErrorIs(t, p.SurfaceReady(&testSurface{}), ErrSurfaceAlreadyBound)
	assert.True(t, p.Stats().SurfaceBound)
}

func TestPlayerRunWithoutSurface(t *testing.T) {
	p, err := New(testConfig(freePort(t)), native.Factory{}, nil)
	require.NoError(t, err)

	err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.NoError(t, p.Close())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Host = ""
	_, err := New(cfg, native.Factory{}, nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestPlayerSessionID(t *testing.T) {
	cfg := testConfig(freePort(t))
	cfg.SessionID = "cam-1"
	p, err := New(cfg, native.Factory{}, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "cam-1", p.SessionID())

	generated, err := New(testConfig(freePort(t)), native.Factory{}, nil)
	require.NoError(t, err)
	defer generated.Close()
	assert.Len(t, generated.SessionID(), 36)
}
