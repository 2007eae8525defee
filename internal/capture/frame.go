package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

var (
	// ErrNotReady means the source is open but not producing frames yet.
	ErrNotReady = errors.New("camera not ready")

	// ErrUnavailable means the camera could not be opened at all.
	ErrUnavailable = errors.New("camera unavailable")
)

const (
	defaultFrameWidth  = 1280
	defaultFrameHeight = 720

	// Luma above this becomes white in the enhanced crop.
	enhanceThreshold = 150
)

// Facing is the preferred camera direction.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// FrameSource is a live video source that can hand out still snapshots.
type FrameSource interface {
	// Ready reports whether the source is producing frames.
	Ready() bool
	// Dimensions returns the current frame size in pixels.
	Dimensions() (width, height int)
	// Snapshot grabs the current frame.
	Snapshot() (image.Image, error)
	// Close releases the device.
	Close() error
}

// Camera opens frame sources.
type Camera interface {
	Open(ctx context.Context, facing Facing) (FrameSource, error)
}

// CameraFunc adapts a function to the Camera interface.
type CameraFunc func(ctx context.Context, facing Facing) (FrameSource, error)

// Open calls f.
func (f CameraFunc) Open(ctx context.Context, facing Facing) (FrameSource, error) {
	return f(ctx, facing)
}

// Grab captures the current frame sized to the source resolution.
func Grab(src FrameSource) (*image.NRGBA, error) {
	if src == nil || !src.Ready() {
		return nil, ErrNotReady
	}
	img, err := src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("grabbing frame: %w", err)
	}
	if img == nil {
		return nil, ErrNotReady
	}

	w, h := src.Dimensions()
	if w <= 0 || h <= 0 {
		w, h = defaultFrameWidth, defaultFrameHeight
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img), nil
	}
	return imaging.Resize(img, w, h, imaging.Linear), nil
}

// Crop cuts the region out of a frame.
func Crop(frame image.Image, region Region) *image.NRGBA {
	b := frame.Bounds()
	rect := region.Bounds(b.Dx(), b.Dy()).Add(b.Min)
	return imaging.Crop(frame, rect)
}

// Enhance grayscales the crop with the standard luma weights and binarizes
// it, which removes the colored print that confuses OCR on preprinted labels.
func Enhance(crop image.Image) *image.NRGBA {
	return imaging.AdjustFunc(crop, func(c color.NRGBA) color.NRGBA {
		luma := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		var v uint8
		if luma > enhanceThreshold {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
