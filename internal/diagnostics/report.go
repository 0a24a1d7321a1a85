// Package diagnostics receives error reports and termination reasons from
// the lifecycle controller and forwards them to logs and MQTT.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

// Report kinds
const (
	KindError      = "error"
	KindTerminated = "terminated"
)

// Report is one diagnostics event
type Report struct {
	Kind      string    `json:"kind" msgpack:"kind"`
	SessionID string    `json:"session_id,omitempty" msgpack:"session_id,omitempty"`
	Stage     string    `json:"stage,omitempty" msgpack:"stage,omitempty"`
	Message   string    `json:"message,omitempty" msgpack:"message,omitempty"`
	Detail    string    `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Category  string    `json:"category,omitempty" msgpack:"category,omitempty"`
	Reason    string    `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Encoding selects the wire format of published reports
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// Valid reports whether e is a supported encoding
func (e Encoding) Valid() bool {
	return e == EncodingJSON || e == EncodingMsgpack
}

// Marshal encodes r
func (e Encoding) Marshal(r Report) ([]byte, error) {
	switch e {
	case EncodingJSON, "":
		return json.Marshal(r)
	case EncodingMsgpack:
		return msgpack.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown encoding %q", string(e))
	}
}

// Unmarshal decodes data into a Report
func (e Encoding) Unmarshal(data []byte) (Report, error) {
	var r Report
	var err error
	switch e {
	case EncodingJSON, "":
		err = json.Unmarshal(data, &r)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, &r)
	default:
		err = fmt.Errorf("unknown encoding %q", string(e))
	}
	return r, err
}

// Sink consumes reports
type Sink interface {
	Send(r Report)
}

// Reporter is the pipeline's diagnostics collaborator. It turns error and
// termination callbacks into Reports, classifies errors and fans them out
// to its sinks.
type Reporter struct {
	sessionID string
	sinks     []Sink
	now       func() time.Time

	mu      sync.Mutex
	errors  []Report
	reasons []string
}

var _ pipeline.Diagnostics = (*Reporter)(nil)

// NewReporter creates a reporter tagging reports with sessionID
func NewReporter(sessionID string, sinks ...Sink) *Reporter {
	return &Reporter{sessionID: sessionID, sinks: sinks, now: time.Now}
}

// Error records a (stage, message, detail) triple
func (r *Reporter) Error(stage, message, detail string) {
	category := Classify(message, detail)
	metrics.IncError(category.String())

	rep := Report{
		Kind:      KindError,
		SessionID: r.sessionID,
		Stage:     stage,
		Message:   message,
		Detail:    detail,
		Category:  category.String(),
		Timestamp: r.now(),
	}

	r.mu.Lock()
	r.errors = append(r.errors, rep)
	r.mu.Unlock()

	r.send(rep)
}

// Terminated records why the session ended
func (r *Reporter) Terminated(reason string) {
	rep := Report{
		Kind:      KindTerminated,
		SessionID: r.sessionID,
		Reason:    reason,
		Timestamp: r.now(),
	}

	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()

	r.send(rep)
}

func (r *Reporter) send(rep Report) {
	for _, s := range r.sinks {
		s.Send(rep)
	}
}

// Errors returns every error reported so far
func (r *Reporter) Errors() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.errors...)
}

// TerminationReason returns the last termination reason, if any
func (r *Reporter) TerminationReason() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reasons) == 0 {
		return "", false
	}
	return r.reasons[len(r.reasons)-1], true
}

// LogSink writes reports with slog
type LogSink struct{}

// Send logs r; errors at Error level in the "Error received from element"
// form, terminations at Info.
func (LogSink) Send(r Report) {
	switch r.Kind {
	case KindError:
		slog.Error("diagnostics: error received from element",
			"stage", r.Stage,
			"message", r.Message,
			"detail", r.Detail,
			"category", r.Category,
			"session_id", r.SessionID,
		)
	case KindTerminated:
		slog.Info("diagnostics: session terminated",
			"reason", r.Reason,
			"session_id", r.SessionID,
		)
	}
}
