// Package metrics holds the Prometheus collectors of the stream viewer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

var (
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_notifications_total",
		Help: "Notifications consumed by the lifecycle controller, by kind and source.",
	}, []string{"kind", "source"})

	LinkAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_dynamic_link_attempts_total",
		Help: "Demuxer output announcements handled by the dynamic linker, by result.",
	}, []string{"result"})

	TransitionsRequestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_transitions_requested_total",
		Help: "State transitions requested on the pipeline, by target state.",
	}, []string{"target"})

	TransitionStallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_transition_stalls_total",
		Help: "Requested transitions that were never confirmed in time.",
	}, []string{"target"})

	RunState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_viewer_run_state",
		Help: "Last confirmed pipeline state (1=NULL, 2=READY, 3=PAUSED, 4=PLAYING).",
	})

	FramesPresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_viewer_frames_presented_total",
		Help: "Decoded frames presented on the surface.",
	})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_frames_dropped_total",
		Help: "Frames that never reached the surface, by reason.",
	}, []string{"reason"})

	BytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_viewer_bytes_received_total",
		Help: "Bytes read from the network source.",
	})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_errors_total",
		Help: "Runtime errors reported by stages, by category.",
	}, []string{"category"})
)

// Recorder feeds controller telemetry into the collectors above
type Recorder struct{}

var _ pipeline.Recorder = Recorder{}

func (Recorder) NotificationHandled(kind, source string) {
	if source == "" {
		source = "unknown"
	}
	NotificationsTotal.WithLabelValues(kind, source).Inc()
}

func (Recorder) LinkAttempt(result string) {
	LinkAttemptsTotal.WithLabelValues(result).Inc()
}

func (Recorder) TransitionRequested(target pipeline.RunState) {
	TransitionsRequestedTotal.WithLabelValues(target.String()).Inc()
}

func (Recorder) StateConfirmed(state pipeline.RunState) {
	RunState.Set(float64(state))
}

func (Recorder) Stalled(target pipeline.RunState) {
	TransitionStallsTotal.WithLabelValues(target.String()).Inc()
}

// IncFrameDropped records a frame that did not reach the surface.
func IncFrameDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// IncError records a classified runtime error.
func IncError(category string) {
	if category == "" {
		category = "unknown"
	}
	ErrorsTotal.WithLabelValues(category).Inc()
}
