package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout = 2 * time.Second
	queueSize      = 64
)

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Encoding Encoding
}

// Publisher is the part of mqtt.Client the sink needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes reports to an MQTT topic.
//
// Send never blocks the caller: reports are queued and published by a
// worker goroutine; when the queue is full the report is dropped.
type MQTTSink struct {
	cfg MQTTConfig
	pub Publisher

	queue chan Report
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	mu        sync.Mutex
	published uint64
	dropped   uint64
	errors    uint64
}

// NewMQTTSink starts a sink publishing through pub
func NewMQTTSink(cfg MQTTConfig, pub Publisher) *MQTTSink {
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingJSON
	}
	s := &MQTTSink{
		cfg:   cfg,
		pub:   pub,
		queue: make(chan Report, queueSize),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Send queues r for publishing
func (s *MQTTSink) Send(r Report) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.queue <- r:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		slog.Warn("diagnostics: mqtt queue full, dropping report", "kind", r.Kind)
	}
}

func (s *MQTTSink) run() {
	defer s.wg.Done()
	for {
		select {
		case r := <-s.queue:
			s.publish(r)
		case <-s.done:
			// drain what is already queued
			for {
				select {
				case r := <-s.queue:
					s.publish(r)
				default:
					return
				}
			}
		}
	}
}

func (s *MQTTSink) publish(r Report) {
	payload, err := s.cfg.Encoding.Marshal(r)
	if err != nil {
		s.countError()
		slog.Warn("diagnostics: failed to encode report", "error", err)
		return
	}

	token := s.pub.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.countError()
		slog.Warn("diagnostics: mqtt publish timeout", "topic", s.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		s.countError()
		slog.Warn("diagnostics: mqtt publish failed", "topic", s.cfg.Topic, "error", err)
		return
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()

	slog.Debug("diagnostics: report published",
		"topic", s.cfg.Topic,
		"kind", r.Kind,
		"size", len(payload),
	)
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Close publishes what is queued and stops the worker
func (s *MQTTSink) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

// MQTTStats contains sink statistics
type MQTTStats struct {
	Published uint64
	Dropped   uint64
	Errors    uint64
}

// Stats returns sink statistics
func (s *MQTTSink) Stats() MQTTStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MQTTStats{Published: s.published, Dropped: s.dropped, Errors: s.errors}
}

// ConnectMQTT connects a paho client to cfg.Broker
func ConnectMQTT(ctx context.Context, cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("diagnostics: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("diagnostics: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker,
		)
	}

	client := mqtt.NewClient(opts)
	slog.Info("diagnostics: connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}
