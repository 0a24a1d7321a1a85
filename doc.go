// Package streamviewer plays a multipart JPEG stream received over a plain
// TCP connection.
//
// A Player owns one session: it builds the chain
// source ! demuxer ! decoder ! sink, links the decoder once the demuxer
// announces an image/jpeg output, binds the presentation surface, and
// drives the pipeline through its run states from bus notifications.
//
// # Quick Start
//
//	cfg := streamviewer.DefaultConfig()
//	cfg.Source.Host = "192.168.1.100"
//	cfg.Source.Port = 7001
//
//	sh := shell.New(shell.Options{Width: 1200, Height: 800})
//	player, err := streamviewer.New(cfg, native.Factory{}, diagnostics.NewReporter("cam-1"), sh.Canvas())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer player.Close()
//
//	if err := sh.Realize(player.SurfaceReady); err != nil {
//	    log.Fatal(err)
//	}
//
//	err = player.Run(ctx)
//	os.Exit(streamviewer.ExitCode(err))
//
// # Backends
//
//   - native: pure Go TCP source, multipart demuxer, JPEG decoder and surface sink
//   - gstreamer: tcpclientsrc ! multipartdemux ! jpegdec ! appsink (requires gstreamer1.0 runtime)
//
// # Lifecycle
//
// Errors and end-of-stream return the pipeline to READY; the exit policy in
// LifecycleConfig decides whether Run then returns. A requested state that
// is not confirmed within transition_timeout fails Run with
// ErrTransitionStalled.
//
// # Exit codes
//
//   - 0: cancelled, closed, or end-of-stream with exit_on_eos
//   - 1: configuration, construction, link or transition failure
//   - 2: stopped after a runtime error with exit_on_error
package streamviewer
