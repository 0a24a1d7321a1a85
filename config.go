package streamviewer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends
const (
	BackendNative    = "native"
	BackendGStreamer = "gstreamer"
)

// Config is the complete viewer configuration
type Config struct {
	// SessionID tags logs and diagnostics; empty generates a UUID
	SessionID   string            `yaml:"session_id"`
	Backend     string            `yaml:"backend"` // native, gstreamer
	Source      SourceConfig      `yaml:"source"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Surface     SurfaceConfig     `yaml:"surface"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// SourceConfig is the TCP peer to stream from
type SourceConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PipelineConfig names the top-level pipeline
type PipelineConfig struct {
	Name string `yaml:"name"`
}

// LifecycleConfig controls stall detection and the exit policy
type LifecycleConfig struct {
	TransitionTimeout time.Duration `yaml:"transition_timeout"` // 0 disables stall detection
	ExitOnEOS         bool          `yaml:"exit_on_eos"`
	ExitOnError       bool          `yaml:"exit_on_error"`
}

// SurfaceConfig configures the presentation canvas
type SurfaceConfig struct {
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	OutputDir       string        `yaml:"output_dir"` // empty disables snapshots
	Format          string        `yaml:"format"`     // png, jpeg
	JPEGQuality     int           `yaml:"jpeg_quality"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// DiagnosticsConfig configures where error reports go besides the log
type DiagnosticsConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig enables the MQTT reporter when Broker is set
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	Encoding string `yaml:"encoding"` // json, msgpack
}

// HTTPConfig configures the health/metrics server
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		Backend: BackendNative,
		Source: SourceConfig{
			Host:        "127.0.0.1",
			Port:        7001,
			DialTimeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{Name: "test-pipeline"},
		Lifecycle: LifecycleConfig{
			TransitionTimeout: 10 * time.Second,
			ExitOnEOS:         true,
		},
		Surface: SurfaceConfig{
			Width:           1200,
			Height:          800,
			Format:          "png",
			JPEGQuality:     90,
			RefreshInterval: time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			MQTT: MQTTConfig{
				Topic:    "stream-viewer/diagnostics",
				ClientID: "stream-viewer",
				Encoding: "json",
			},
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working pipeline.
// Nothing is constructed before it passes.
func (c *Config) Validate() error {
	var errs []error

	if c.Source.Host == "" {
		errs = append(errs, errors.New("source.host is required"))
	}
	if c.Source.Port < 1 || c.Source.Port > 65535 {
		errs = append(errs, fmt.Errorf("source.port must be in 1..65535, got %d", c.Source.Port))
	}
	if c.Source.DialTimeout < 0 {
		errs = append(errs, errors.New("source.dial_timeout must be >= 0"))
	}

	switch c.Backend {
	case BackendNative, BackendGStreamer:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendNative, BackendGStreamer, c.Backend))
	}

	if c.Pipeline.Name == "" {
		errs = append(errs, errors.New("pipeline.name is required"))
	}
	if c.Lifecycle.TransitionTimeout < 0 {
		errs = append(errs, errors.New("lifecycle.transition_timeout must be >= 0"))
	}

	if c.Surface.Width <= 0 || c.Surface.Height <= 0 {
		errs = append(errs, fmt.Errorf("surface size must be positive, got %dx%d", c.Surface.Width, c.Surface.Height))
	}
	switch c.Surface.Format {
	case "png", "jpeg":
	default:
		errs = append(errs, fmt.Errorf("surface.format must be png or jpeg, got %q", c.Surface.Format))
	}
	if c.Surface.JPEGQuality < 1 || c.Surface.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("surface.jpeg_quality must be in 1..100, got %d", c.Surface.JPEGQuality))
	}
	if c.Surface.RefreshInterval < 0 {
		errs = append(errs, errors.New("surface.refresh_interval must be >= 0"))
	}

	m := c.Diagnostics.MQTT
	if m.Broker != "" {
		if m.Topic == "" {
			errs = append(errs, errors.New("diagnostics.mqtt.topic is required when a broker is set"))
		}
		if m.QoS > 2 {
			errs = append(errs, fmt.Errorf("diagnostics.mqtt.qos must be 0, 1 or 2, got %d", m.QoS))
		}
	}
	switch m.Encoding {
	case "", "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("diagnostics.mqtt.encoding must be json or msgpack, got %q", m.Encoding))
	}

	return errors.Join(errs...)
}
