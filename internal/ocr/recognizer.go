// Package ocr runs text recognition over cropped label regions and turns the
// recognized text into RG and tag candidates.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultLanguages are the recognition hints used for equipment labels.
var DefaultLanguages = []string{"por", "eng"}

// Recognition is the raw output of a recognizer.
type Recognition struct {
	Text string
}

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, langs []string) (Recognition, error)
}

// encodePNG serializes an image for backends that take encoded bytes.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func closeIfCloser(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
