// Package capture grabs still frames from a video source and crops them to
// the region of interest for the active scan phase.
package capture

import (
	"fmt"
	"image"
	"math"
)

// Phase selects which code the operator is currently pointing the camera at.
type Phase int

const (
	PhaseRG Phase = iota
	PhaseTag
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	if p == PhaseTag {
		return "tag"
	}
	return "rg"
}

// Label returns the operator-facing name of the phase.
func (p Phase) Label() string {
	if p == PhaseTag {
		return "etiqueta"
	}
	return "RG"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "rg", "RG":
		*p = PhaseRG
	case "tag", "TAG":
		*p = PhaseTag
	default:
		return fmt.Errorf("unknown phase %q", string(b))
	}
	return nil
}

// Region is a rectangle expressed as fractions of the frame size, plus the
// overlay metadata a client needs to draw it.
type Region struct {
	Top            float64 `json:"top"`
	Left           float64 `json:"left"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	BorderColor    string  `json:"border_color"`
	LabelColor     string  `json:"label_color"`
	LabelTextColor string  `json:"label_text_color"`
	Label          string  `json:"label"`
}

var (
	// RGRegion frames the RG code in the upper half of the label.
	RGRegion = Region{
		Top:            0.22,
		Left:           0.1,
		Width:          0.8,
		Height:         0.24,
		BorderColor:    "#d32f2f",
		LabelColor:     "#d32f2f",
		LabelTextColor: "#fff",
		Label:          "RG",
	}

	// TagRegion frames the serial/tag code below the RG.
	TagRegion = Region{
		Top:            0.57,
		Left:           0.1,
		Width:          0.8,
		Height:         0.2,
		BorderColor:    "#fbc02d",
		LabelColor:     "#fbc02d",
		LabelTextColor: "#1f1f1f",
		Label:          "Etiqueta",
	}
)

// RegionFor returns the static region for a phase.
func RegionFor(p Phase) Region {
	if p == PhaseTag {
		return TagRegion
	}
	return RGRegion
}

// Bounds converts the fractional region into pixel bounds for a frame of the
// given size. The result always lies inside the frame and is at least 1x1.
func (r Region) Bounds(frameWidth, frameHeight int) image.Rectangle {
	if frameWidth < 1 {
		frameWidth = 1
	}
	if frameHeight < 1 {
		frameHeight = 1
	}
	left := clamp(r.Left, 0, 1)
	top := clamp(r.Top, 0, 1)
	wf := clamp(r.Width, 0.05, 1)
	hf := clamp(r.Height, 0.05, 1)

	x := min(int(math.Floor(float64(frameWidth)*left)), frameWidth-1)
	y := min(int(math.Floor(float64(frameHeight)*top)), frameHeight-1)
	w := max(1, min(frameWidth-x, int(math.Floor(float64(frameWidth)*wf))))
	h := max(1, min(frameHeight-y, int(math.Floor(float64(frameHeight)*hf))))
	return image.Rect(x, y, x+w, y+h)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
