// Command mjpeg-server streams synthetic multipart JPEG over plain TCP, the
// format stream-viewer consumes. It is the test peer for local runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/mjpeg"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7001", "Listen address")
	frames := flag.Int("frames", 0, "Frames per connection (0 = until the client leaves)")
	interval := flag.Duration("interval", 40*time.Millisecond, "Delay between frames")
	width := flag.Int("width", 320, "Frame width")
	height := flag.Int("height", 240, "Frame height")
	quality := flag.Int("quality", 80, "JPEG quality (1-100)")
	types := flag.String("types", "image/jpeg", "Comma separated part content types, cycled per part")
	hold := flag.Bool("hold", false, "Keep connections open after the last frame")
	corruptFrom := flag.Int("corrupt-from", 0, "Send undecodable JPEG from this part index on (0 = never)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	opts := mjpeg.ServerOptions{
		Frames:       *frames,
		Interval:     *interval,
		ContentTypes: strings.Split(*types, ","),
		Width:        *width,
		Height:       *height,
		Quality:      *quality,
		Hold:         *hold,
		CorruptFrom:  *corruptFrom,
	}

	srv, err := mjpeg.Listen(*addr, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Serving multipart JPEG",
		"addr", srv.Addr().String(),
		"frames", *frames,
		"interval", *interval,
		"types", opts.ContentTypes,
	)
	if err := srv.Serve(ctx); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
