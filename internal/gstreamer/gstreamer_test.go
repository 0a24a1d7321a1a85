package gstreamer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/mjpeg"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

func requireGStreamer(t *testing.T) {
	t.Helper()
	if err := Available(); err != nil {
		t.Skipf("GStreamer not available: %v", err)
	}
}

func TestStateMapping(t *testing.T) {
	for _, s := range []pipeline.RunState{
		pipeline.StateNull,
		pipeline.StateReady,
		pipeline.StatePaused,
		pipeline.StatePlaying,
	} {
		g, err := toGstState(s)
		require.NoError(t, err)
		assert.Equal(t, s, fromGstState(g))
	}

	_, err := toGstState(pipeline.StateVoidPending)
	assert.Error(t, err)
}

func TestLinkError(t *testing.T) {
	assert.NoError(t, linkError(gst.PadLinkOK))
	assert.ErrorIs(t, linkError(gst.PadLinkWasLinked), pipeline.ErrAlreadyLinked)
	assert.ErrorIs(t, linkError(gst.PadLinkNoFormat), pipeline.ErrIncompatible)
	assert.Error(t, linkError(gst.PadLinkRefused))
}

func TestErrorNotificationCategory(t *testing.T) {
	tests := []struct {
		message, detail string
		want            string
	}{
		{"Output window was closed", "no surface bound to sink", "flow"},
		{"Failed to present frame", "jpeg: invalid format", "codec"},
		{"Could not open resource for reading.", "connection refused", "network"},
		{"Something odd", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			n := errorNotification("sink", tt.message, tt.detail)
			assert.Equal(t, "sink", n.Src)
			assert.Equal(t, tt.message, n.Message)
			assert.Equal(t, tt.detail, n.Detail)
			assert.Equal(t, tt.want, n.Category)
		})
	}
}

func TestCreateStages(t *testing.T) {
	requireGStreamer(t)

	f, err := NewFactory()
	require.NoError(t, err)
	assert.Equal(t, "gstreamer", f.Backend())

	stages, err := pipeline.CreateStages(f, pipeline.Target{Host: "127.0.0.1", Port: 7001})
	require.NoError(t, err)
	defer stages.Release()

	assert.Nil(t, stages.Source.Input())
	assert.NotNil(t, stages.Source.Output())
	assert.NotNil(t, stages.Demuxer.Input())
	assert.Nil(t, stages.Demuxer.Output())
	assert.NotNil(t, stages.Decoder.Output())
	assert.NotNil(t, stages.Sink.Input())

	_, ok := stages.Demuxer.(pipeline.Announcer)
	assert.True(t, ok)
	_, ok = stages.Sink.(pipeline.SurfaceSink)
	assert.True(t, ok)
}

func TestSourceRejectsBadTarget(t *testing.T) {
	requireGStreamer(t)

	src, err := newSource("source")
	require.NoError(t, err)
	defer src.Release()

	assert.Error(t, src.SetTarget("", 7001))
	assert.Error(t, src.SetTarget("127.0.0.1", 0))
	assert.NoError(t, src.SetTarget("127.0.0.1", 7001))
}

func TestGraphReachesReady(t *testing.T) {
	requireGStreamer(t)

	f, err := NewFactory()
	require.NoError(t, err)

	stages, err := pipeline.CreateStages(f, pipeline.Target{Host: "127.0.0.1", Port: 7001})
	require.NoError(t, err)

	bus := pipeline.NewEventBus()
	g, err := pipeline.Build(f, "test-pipeline", stages, bus)
	require.NoError(t, err)
	defer g.Teardown()

	require.NoError(t, g.RequestTransition(pipeline.StateReady))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		n, ok := bus.TimedPop(ctx, 100*time.Millisecond)
		if ctx.Err() != nil {
			t.Fatal("pipeline never reported READY")
		}
		if !ok {
			continue
		}
		sc, ok := n.(pipeline.StateChangedNotification)
		if ok && sc.Src == "test-pipeline" && sc.New == pipeline.StateReady {
			return
		}
	}
}

type countingSurface struct {
	presented atomic.Int64
}

func (s *countingSurface) Handle() uintptr { return 1 }

func (s *countingSurface) Present(pipeline.Frame) error {
	s.presented.Add(1)
	return nil
}

func TestSinkPresentsEachFrameOnce(t *testing.T) {
	requireGStreamer(t)

	srv, err := mjpeg.Listen("127.0.0.1:0", mjpeg.ServerOptions{Frames: 3, Interval: 20 * time.Millisecond, Width: 32, Height: 24})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(context.Background())
	}()
	defer func() {
		srv.Close()
		<-done
	}()

	f, err := NewFactory()
	require.NoError(t, err)
	stages, err := pipeline.CreateStages(f, pipeline.Target{Host: "127.0.0.1", Port: srv.Addr().Port})
	require.NoError(t, err)

	bus := pipeline.NewEventBus()
	g, err := pipeline.Build(f, "test-pipeline", stages, bus)
	require.NoError(t, err)
	defer g.Teardown()

	require.NoError(t, pipeline.NewDynamicLinker(stages.Decoder, nil).Attach(stages.Demuxer))
	surface := &countingSurface{}
	require.NoError(t, stages.Sink.(pipeline.SurfaceSink).SetSurface(surface))
	require.NoError(t, g.RequestTransition(pipeline.StatePlaying))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		n, ok := bus.TimedPop(ctx, 100*time.Millisecond)
		if ctx.Err() != nil {
			t.Fatal("pipeline never reached end-of-stream")
		}
		if _, eos := n.(pipeline.EOSNotification); ok && eos {
			break
		}
	}

	assert.Equal(t, int64(3), surface.presented.Load())
	assert.Equal(t, uint64(3), stages.Sink.(*Sink).Presented())
}
