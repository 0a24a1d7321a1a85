package diagnostics

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message, detail string
		want            Category
	}{
		{"Could not open resource for reading.", "Failed to connect to host '127.0.0.1:7001': connection refused", CategoryNetwork},
		{"Could not read from resource.", "read tcp: connection reset by peer", CategoryNetwork},
		{"Failed to decode JPEG image", "invalid JPEG format: missing SOI marker", CategoryCodec},
		{"Internal data stream error.", "streaming stopped, reason not-linked", CategoryFlow},
		{"state transition stalled", "PLAYING not reached within 10s", CategoryFlow},
		{"Unauthorized", "401", CategoryAuth},
		{"something odd", "", CategoryUnknown},
		{"", "", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message, tt.detail))
		})
	}
}

type captureSink struct {
	mu      sync.Mutex
	reports []Report
}

func (c *captureSink) Send(r Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func TestReporter(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter("session-1", sink, LogSink{})

	r.Error("decoder", "Failed to decode JPEG image", "truncated")
	r.Terminated("end-of-stream")

	require.Len(t, sink.reports, 2)
	assert.Equal(t, KindError, sink.reports[0].Kind)
	assert.Equal(t, "decoder", sink.reports[0].Stage)
	assert.Equal(t, "codec", sink.reports[0].Category)
	assert.Equal(t, "session-1", sink.reports[0].SessionID)
	assert.Equal(t, KindTerminated, sink.reports[1].Kind)

	assert.Len(t, r.Errors(), 1)
	reason, ok := r.TerminationReason()
	assert.True(t, ok)
	assert.Equal(t, "end-of-stream", reason)
}

func TestEncodings(t *testing.T) {
	in := Report{
		Kind:      KindError,
		Stage:     "source",
		Message:   "Could not open resource for reading.",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := enc.Marshal(in)
			require.NoError(t, err)
			out, err := enc.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, in.Stage, out.Stage)
			assert.Equal(t, in.Message, out.Message)
			assert.True(t, in.Timestamp.Equal(out.Timestamp))
		})
	}

	_, err := Encoding("xml").Marshal(in)
	assert.Error(t, err)
	assert.False(t, Encoding("xml").Valid())
}

// fakeToken completes immediately with err
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return newFakeToken(p.err)
}

func TestMQTTSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(MQTTConfig{Topic: "viewer/diagnostics", Encoding: EncodingMsgpack}, pub)

	sink.Send(Report{Kind: KindError, Stage: "demuxer"})
	sink.Send(Report{Kind: KindTerminated, Reason: "closed"})
	sink.Close()

	stats := sink.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Zero(t, stats.Errors)

	require.Len(t, pub.payloads, 2)
	assert.Equal(t, []string{"viewer/diagnostics", "viewer/diagnostics"}, pub.topics)

	r, err := EncodingMsgpack.Unmarshal(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "demuxer", r.Stage)

	// sends after close are ignored
	sink.Send(Report{Kind: KindError})
	sink.Close()
	assert.Equal(t, uint64(2), sink.Stats().Published)
}

func TestMQTTSinkCountsErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewMQTTSink(MQTTConfig{Topic: "t"}, pub)

	sink.Send(Report{Kind: KindError})
	sink.Close()

	assert.Equal(t, uint64(1), sink.Stats().Errors)
	assert.Zero(t, sink.Stats().Published)
}
