package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

func TestRecorder(t *testing.T) {
	LinkAttemptsTotal.Reset()
	NotificationsTotal.Reset()
	TransitionStallsTotal.Reset()

	var r Recorder
	r.LinkAttempt(pipeline.LinkResultIgnored)
	r.LinkAttempt(pipeline.LinkResultLinked)
	r.LinkAttempt(pipeline.LinkResultIgnored)
	r.NotificationHandled("eos", "")
	r.StateConfirmed(pipeline.StatePaused)
	r.Stalled(pipeline.StatePlaying)

	if got := testutil.ToFloat64(LinkAttemptsTotal.WithLabelValues(pipeline.LinkResultIgnored)); got != 2 {
		t.Errorf("expected 2 ignored announcements, got %f", got)
	}
	if got := testutil.ToFloat64(NotificationsTotal.WithLabelValues("eos", "unknown")); got != 1 {
		t.Errorf("expected 1 eos notification, got %f", got)
	}
	if got := testutil.ToFloat64(RunState); got != float64(pipeline.StatePaused) {
		t.Errorf("expected run state %d, got %f", pipeline.StatePaused, got)
	}
	if got := testutil.ToFloat64(TransitionStallsTotal.WithLabelValues("PLAYING")); got != 1 {
		t.Errorf("expected 1 stall, got %f", got)
	}
}

func TestIncHelpersDefaultLabels(t *testing.T) {
	FramesDroppedTotal.Reset()
	ErrorsTotal.Reset()

	IncFrameDropped("")
	IncError("")

	if got := testutil.ToFloat64(FramesDroppedTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("expected 1 dropped frame, got %f", got)
	}
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("expected 1 error, got %f", got)
	}
}
