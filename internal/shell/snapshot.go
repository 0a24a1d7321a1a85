package shell

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// Snapshot formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// SaveSnapshot writes img into dir as PNG or JPEG and returns the file path
func SaveSnapshot(dir string, seq uint64, ts time.Time, img image.Image, format string, jpegQuality int) (string, error) {
	if format != FormatPNG && format != FormatJPEG {
		return "", fmt.Errorf("unsupported snapshot format %q", format)
	}

	filename := fmt.Sprintf("frame_%06d_%s.%s", seq, ts.Format("20060102_150405.000"), format)
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatPNG:
		if err := png.Encode(file, img); err != nil {
			return "", fmt.Errorf("failed to encode PNG: %w", err)
		}
	case FormatJPEG:
		if err := jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
	}
	return path, nil
}
