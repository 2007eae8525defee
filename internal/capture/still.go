package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// StillSource serves a single decoded label photo as if it were a live feed.
type StillSource struct {
	img image.Image
}

// NewStillSource decodes a label photo. JPEG, PNG, GIF, HEIC/HEIF and PDF
// (first page) are accepted.
func NewStillSource(data []byte, contentType string) (*StillSource, error) {
	img, err := DecodeImage(data, contentType)
	if err != nil {
		return nil, err
	}
	return &StillSource{img: img}, nil
}

// OpenStillFile reads and decodes a label photo from disk.
func OpenStillFile(path string) (*StillSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading frame file: %w", err)
	}
	return NewStillSource(data, contentTypeForPath(path))
}

// Ready implements FrameSource.
func (s *StillSource) Ready() bool { return s.img != nil }

// Dimensions implements FrameSource.
func (s *StillSource) Dimensions() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Snapshot implements FrameSource.
func (s *StillSource) Snapshot() (image.Image, error) {
	if s.img == nil {
		return nil, ErrNotReady
	}
	return s.img, nil
}

// Close implements FrameSource.
func (s *StillSource) Close() error { return nil }

// FileCamera "opens" a label photo on disk. Useful for offline scanning.
type FileCamera struct {
	Path string
}

// Open implements Camera. The facing preference is ignored.
func (c FileCamera) Open(ctx context.Context, _ Facing) (FrameSource, error) {
	src, err := OpenStillFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return src, nil
}

// DecodeImage decodes photo bytes, handling the formats phones produce.
func DecodeImage(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case mimeType == "application/pdf":
		return pdfFirstPage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfFirstPage renders the first page of a PDF.
func pdfFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return ""
}
