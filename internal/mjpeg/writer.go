// Package mjpeg writes multipart JPEG streams, the wire format the viewer
// consumes, and serves them over TCP.
package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

// DefaultBoundary is the boundary used when none is configured
const DefaultBoundary = "streamviewerboundary"

// Writer writes one part per frame
type Writer struct {
	mw *multipart.Writer
}

// NewWriter creates a writer; an empty boundary selects DefaultBoundary.
func NewWriter(w io.Writer, boundary string) (*Writer, error) {
	if boundary == "" {
		boundary = DefaultBoundary
	}
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}
	return &Writer{mw: mw}, nil
}

// Boundary returns the part delimiter
func (w *Writer) Boundary() string { return w.mw.Boundary() }

// ContentType returns the stream's MIME type
func (w *Writer) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + w.mw.Boundary()
}

// WriteFrame writes data as one part with the given Content-Type
func (w *Writer) WriteFrame(contentType string, data []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))

	part, err := w.mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	return nil
}

// Close writes the closing delimiter
func (w *Writer) Close() error {
	return w.mw.Close()
}

// EncodeTestFrame renders a gradient whose hue shifts with n and encodes it
// as JPEG.
func EncodeTestFrame(width, height, n, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := uint8(n * 16)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/width) + shift,
				G: uint8(y*255/height) + shift,
				B: shift,
				A: 0xff,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", n, err)
	}
	return buf.Bytes(), nil
}
