package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFake(t *testing.T) (*fakeFactory, *Graph) {
	t.Helper()

	f := newFakeFactory()
	stages, err := CreateStages(f, Target{Host: "127.0.0.1", Port: 7001})
	require.NoError(t, err)

	g, err := Build(f, "test-pipeline", stages, NewEventBus())
	require.NoError(t, err)
	return f, g
}

func TestBuildStaticLinks(t *testing.T) {
	f, g := buildFake(t)

	assert.Equal(t, "test-pipeline", g.Name())
	assert.Len(t, f.bin.added, 4)

	src, demux := f.stages[RoleSource], f.stages[RoleDemuxer]
	dec, sink := f.stages[RoleDecoder], f.stages[RoleSink]

	assert.Same(t, demux.in, src.out.Peer())
	assert.Same(t, sink.in, dec.out.Peer())
	assert.False(t, dec.in.IsLinked(), "decoder input is linked at runtime")
}

func TestBuildLinkFailure(t *testing.T) {
	tests := []struct {
		name     string
		breakFn  func(f *fakeFactory)
		from, to string
	}{
		{
			name:    "source to demuxer",
			breakFn: func(f *fakeFactory) { f.stages[RoleSource].out.linkErr = errBoom },
			from:    "source",
			to:      "demuxer",
		},
		{
			name:    "decoder to sink",
			breakFn: func(f *fakeFactory) { f.stages[RoleDecoder].out.linkErr = errBoom },
			from:    "decoder",
			to:      "sink",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFactory()
			stages, err := CreateStages(f, Target{Host: "127.0.0.1", Port: 7001})
			require.NoError(t, err)
			tt.breakFn(f)

			g, err := Build(f, "test-pipeline", stages, NewEventBus())
			require.Error(t, err)
			assert.Nil(t, g)

			var lerr *LinkError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, tt.from, lerr.From)
			assert.Equal(t, tt.to, lerr.To)
			assert.ErrorIs(t, err, errBoom)

			// partial graph torn down
			assert.Equal(t, 1, f.bin.closes)
			for role, st := range f.stages {
				assert.Equal(t, 1, st.Releases(), "stage %s", role)
			}
		})
	}
}

func TestRequestTransition(t *testing.T) {
	f, g := buildFake(t)

	require.NoError(t, g.RequestTransition(StatePlaying))
	assert.Equal(t, []RunState{StatePlaying}, f.bin.States())

	f.bin.setErr[StatePaused] = errBoom
	err := g.RequestTransition(StatePaused)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StatePaused, terr.Target)

	err = g.RequestTransition(StateVoidPending)
	assert.Error(t, err)
}

func TestTeardownIdempotent(t *testing.T) {
	f, g := buildFake(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.Teardown())
	}

	assert.True(t, g.TornDown())
	assert.Equal(t, []RunState{StateNull}, f.bin.States())
	assert.Equal(t, 1, f.bin.closes)
	assert.Equal(t, 1, g.released)
	for role, st := range f.stages {
		assert.Equal(t, 1, st.Releases(), "stage %s", role)
	}

	err := g.RequestTransition(StatePlaying)
	assert.ErrorIs(t, err, ErrTornDown)
}

func TestTeardownFlushesBus(t *testing.T) {
	f := newFakeFactory()
	stages, err := CreateStages(f, Target{Host: "127.0.0.1", Port: 7001})
	require.NoError(t, err)

	bus := NewEventBus()
	g, err := Build(f, "test-pipeline", stages, bus)
	require.NoError(t, err)

	bus.Post(EOSNotification{Src: "sink"})
	require.NoError(t, g.Teardown())

	assert.Equal(t, 0, bus.Len())
	assert.False(t, bus.Post(EOSNotification{Src: "sink"}))
}
