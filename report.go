package fcneval

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/jamesainslie/go-fcneval/internal/metrics"
)

// WriteReport prints the four statistics of s as percentages, one per line.
// Undefined statistics print as nan.
func WriteReport(w io.Writer, s metrics.Summary) error {
	p := s.Percent()
	_, err := fmt.Fprintf(w, "Accuracy: %s\nAccuracy Class: %s\nMean IU: %s\nFWAV Accuracy: %s\n",
		p.PixelAccuracy, p.MeanClassAccuracy, p.MeanIoU, p.FWIoU)
	return err
}

// SaveVisualization writes img to path as PNG, replacing any existing file.
func SaveVisualization(path string, img *image.RGBA) (err error) {
	if img == nil {
		return errors.New("no visualization to save")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
