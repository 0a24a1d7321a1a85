package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	streamviewer "github.com/e7canasta/orion-care-sensor/modules/stream-viewer"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/diagnostics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/health"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/native"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/shell"
)

// Version information
const version = "v0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	host := flag.String("host", "", "Stream server host (overrides config)")
	port := flag.Int("port", 0, "Stream server port (overrides config)")
	backend := flag.String("backend", "", "Pipeline backend: native, gstreamer (overrides config)")
	outputDir := flag.String("output", "", "Directory to save presented frames (optional)")
	outputFormat := flag.String("format", "", "Snapshot format: png, jpeg")
	httpAddr := flag.String("http", "", "Health/metrics listen address, e.g. :9090 (optional)")
	timeout := flag.Duration("transition-timeout", -1, "Stall timeout for state transitions (0 disables)")
	exitOnError := flag.Bool("exit-on-error", false, "Exit with status 2 after a runtime error")
	keepOnEOS := flag.Bool("keep-on-eos", false, "Stay in READY after end-of-stream instead of exiting")
	logFormat := flag.String("log-format", "text", "Log format: text, json")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stream-viewer %s\n", version)
		return streamviewer.ExitOK
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	switch *logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log format %q (must be text or json)\n", *logFormat)
		return streamviewer.ExitFailure
	}
	slog.SetDefault(slog.New(handler))

	// Load configuration; flags given on the command line win
	cfg := streamviewer.DefaultConfig()
	if *configPath != "" {
		loaded, err := streamviewer.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load configuration", "path", *configPath, "error", err)
			return streamviewer.ExitFailure
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Source.Host = *host
		case "port":
			cfg.Source.Port = *port
		case "backend":
			cfg.Backend = *backend
		case "output":
			cfg.Surface.OutputDir = *outputDir
		case "format":
			cfg.Surface.Format = *outputFormat
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "transition-timeout":
			cfg.Lifecycle.TransitionTimeout = *timeout
		case "exit-on-error":
			cfg.Lifecycle.ExitOnError = *exitOnError
		case "keep-on-eos":
			cfg.Lifecycle.ExitOnEOS = !*keepOnEOS
		}
	})
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return streamviewer.ExitFailure
	}

	if cfg.Surface.OutputDir != "" {
		if err := os.MkdirAll(cfg.Surface.OutputDir, 0755); err != nil {
			slog.Error("Failed to create output directory", "error", err)
			return streamviewer.ExitFailure
		}
		slog.Info("Frame saving enabled",
			"directory", cfg.Surface.OutputDir,
			"format", cfg.Surface.Format,
			"jpeg_quality", cfg.Surface.JPEGQuality,
		)
	}

	printBanner(cfg)

	// Signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := newFactory(cfg)
	if err != nil {
		slog.Error("Backend unavailable", "backend", cfg.Backend, "error", err)
		return streamviewer.ExitFailure
	}

	// Diagnostics: always the log, optionally MQTT
	sinks := []diagnostics.Sink{diagnostics.LogSink{}}
	var mqttSink *diagnostics.MQTTSink
	if mc := cfg.Diagnostics.MQTT; mc.Broker != "" {
		mcfg := diagnostics.MQTTConfig{
			Broker:   mc.Broker,
			Topic:    mc.Topic,
			ClientID: fmt.Sprintf("%s-%s", mc.ClientID, uuid.NewString()[:8]),
			QoS:      mc.QoS,
			Encoding: diagnostics.Encoding(mc.Encoding),
		}
		client, err := diagnostics.ConnectMQTT(ctx, mcfg)
		if err != nil {
			// diagnostics are best effort; the stream does not depend on them
			slog.Warn("MQTT diagnostics disabled", "broker", mc.Broker, "error", err)
		} else {
			defer client.Disconnect(250)
			mqttSink = diagnostics.NewMQTTSink(mcfg, client)
			defer mqttSink.Close()
			sinks = append(sinks, mqttSink)
		}
	}
	reporter := diagnostics.NewReporter(cfg.SessionID, sinks...)

	sh := shell.New(shell.Options{
		Width:           cfg.Surface.Width,
		Height:          cfg.Surface.Height,
		RefreshInterval: cfg.Surface.RefreshInterval,
		OutputDir:       cfg.Surface.OutputDir,
		Format:          cfg.Surface.Format,
		JPEGQuality:     cfg.Surface.JPEGQuality,
	})

	player, err := streamviewer.New(cfg, factory, reporter, sh.Canvas())
	if err != nil {
		slog.Error("Failed to create player", "error", err)
		return streamviewer.ExitFailure
	}
	defer player.Close()

	if err := sh.Realize(player.SurfaceReady); err != nil {
		slog.Error("Failed to bind surface", "error", err)
		return streamviewer.ExitFailure
	}

	fmt.Printf("Starting playback...\n")
	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	startTime := time.Now()

	// The player owns the session; when it returns everything else stops
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var runErr error
	g.Go(func() error {
		defer cancel()
		runErr = player.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sh.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		srv := health.NewServer(cfg.HTTP.Addr, player.SessionID(), player)
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		slog.Error("Auxiliary service failed", "error", waitErr)
		if runErr == nil {
			runErr = waitErr
		}
	}

	printFinalStats(player, sh, reporter, mqttSink, time.Since(startTime))

	code := streamviewer.ExitCode(runErr)
	if runErr != nil {
		slog.Error("Playback ended with error", "error", runErr, "exit_code", code)
	} else {
		slog.Info("Playback completed successfully")
	}
	return code
}

func newFactory(cfg streamviewer.Config) (streamviewer.Factory, error) {
	switch cfg.Backend {
	case streamviewer.BackendGStreamer:
		return gstreamer.NewFactory()
	default:
		return native.Factory{DialTimeout: cfg.Source.DialTimeout}, nil
	}
}

func printBanner(cfg streamviewer.Config) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║            Stream Viewer - Orion 2.0 Module               ║\n")
	fmt.Printf("║                      Version %s                       ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Source:        %s:%d\n", cfg.Source.Host, cfg.Source.Port)
	fmt.Printf("  Backend:       %s\n", cfg.Backend)
	fmt.Printf("  Pipeline:      %s\n", cfg.Pipeline.Name)
	fmt.Printf("  Session:       %s\n", cfg.SessionID)
	fmt.Printf("  Surface:       %dx%d\n", cfg.Surface.Width, cfg.Surface.Height)
	if cfg.Surface.OutputDir != "" {
		fmt.Printf("  Output Dir:    %s\n", cfg.Surface.OutputDir)
	} else {
		fmt.Printf("  Output Dir:    (none - frames not saved)\n")
	}
	if cfg.Lifecycle.TransitionTimeout > 0 {
		fmt.Printf("  Stall Timeout: %s\n", cfg.Lifecycle.TransitionTimeout)
	} else {
		fmt.Printf("  Stall Timeout: disabled\n")
	}
	fmt.Printf("  Exit on EOS:   %v\n", cfg.Lifecycle.ExitOnEOS)
	fmt.Printf("  Exit on Error: %v\n", cfg.Lifecycle.ExitOnError)
	if cfg.HTTP.Addr != "" {
		fmt.Printf("  Health/Metrics: %s\n", cfg.HTTP.Addr)
	}
	fmt.Printf("\n")
}

func printFinalStats(p *streamviewer.Player, sh *shell.Shell, rep *diagnostics.Reporter, mqttSink *diagnostics.MQTTSink, uptime time.Duration) {
	ps := p.Stats()
	ss := sh.Stats()

	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Second))
	fmt.Printf("  Backend:            %s\n", ps.Backend)
	fmt.Printf("  Final State:        %s\n", ps.State)
	fmt.Printf("  Notifications:      %d\n", ps.NotificationsHandled)
	if ps.LinkedTo != "" {
		fmt.Printf("  Decoder Linked To:  %s (%d attempts)\n", ps.LinkedTo, ps.LinkAttempts)
	} else {
		fmt.Printf("  Decoder Linked To:  (never linked, %d attempts)\n", ps.LinkAttempts)
	}
	fmt.Printf("  Frames Presented:   %d frames\n", ss.Presented)
	fmt.Printf("  Frames Overwritten: %d frames\n", ss.Overwrites)
	fmt.Printf("  Refreshes:          %d\n", ss.Refreshes)
	if ss.Render != nil {
		fmt.Printf("  Average FPS:        %.2f fps\n", ss.Render.FPSMean)
		fmt.Printf("  Smooth:             %v\n", ss.Render.Smooth)
	}
	if ss.Saved > 0 || ss.SaveErrors > 0 {
		fmt.Printf("  Frames Saved:       %d frames\n", ss.Saved)
		fmt.Printf("  Save Errors:        %d\n", ss.SaveErrors)
	}
	if errs := rep.Errors(); len(errs) > 0 {
		fmt.Printf("─────────────────────────────────────────────────────────\n")
		fmt.Printf("  Errors Reported:    %d\n", len(errs))
		last := errs[len(errs)-1]
		fmt.Printf("  Last Error:         [%s] %s: %s\n", last.Category, last.Stage, last.Message)
	}
	if reason, ok := rep.TerminationReason(); ok {
		fmt.Printf("  Termination:        %s\n", reason)
	}
	if mqttSink != nil {
		ms := mqttSink.Stats()
		fmt.Printf("  MQTT Published:     %d (dropped %d, errors %d)\n", ms.Published, ms.Dropped, ms.Errors)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
