package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

func TestReadiness(t *testing.T) {
	tests := []struct {
		state pipeline.RunState
		code  int
		ready bool
	}{
		{pipeline.StateNull, http.StatusServiceUnavailable, false},
		{pipeline.StateReady, http.StatusServiceUnavailable, false},
		{pipeline.StatePaused, http.StatusOK, true},
		{pipeline.StatePlaying, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			state := tt.state
			s := NewServer("", "sess", SourceFunc(func() pipeline.RunState { return state }))

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, rec.Code)
			var st Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
			assert.Equal(t, tt.ready, st.Ready)
			assert.Equal(t, tt.state.String(), st.RunState)
			assert.Equal(t, "sess", st.SessionID)
		})
	}
}

func TestLivenessAndMetrics(t *testing.T) {
	s := NewServer("", "", SourceFunc(func() pipeline.RunState { return pipeline.StateNull }))
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive"`)

	metrics.FramesPresentedTotal.Inc()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stream_viewer_frames_presented_total")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	var state atomic.Int32
	state.Store(int32(pipeline.StatePlaying))
	s := NewServer("", "", SourceFunc(func() pipeline.RunState { return pipeline.RunState(state.Load()) }))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/readyz", ln.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"ready":true`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
