// Package pipeline is the streaming pipeline controller.
//
// It composes four opaque stages (source, demuxer, decoder, sink) supplied
// by a Factory, links them, completes the demuxer -> decoder link at runtime
// once the demuxer announces an image/jpeg output, and drives the bin's
// lifecycle from notifications carried by an EventBus.
//
// The package knows nothing about how stages move bytes. Backends live in
// internal/native (pure Go) and internal/gstreamer.
package pipeline
