package ocr

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/labeltext"
)

// previewLimit is how many characters of raw text the preview keeps.
const previewLimit = 140

// PassRequest describes one OCR pass.
type PassRequest struct {
	Phase capture.Phase
	// Quick skips the enhanced second pass.
	Quick bool
	// Silent logs failures at debug level only. Background ticks set it.
	Silent bool
}

// PassResult is the outcome of a pass. Code is the candidate for the
// requested phase and may be empty.
type PassResult struct {
	Phase   capture.Phase `json:"phase"`
	Code    string        `json:"code"`
	RGCode  string        `json:"rg_code"`
	TagCode string        `json:"tag_code"`
	RawText string        `json:"raw_text"`
}

// Preview is the rolling operator feedback of the latest passes. Every field
// is sticky: an empty value keeps the previous one.
type Preview struct {
	RawText   string    `json:"raw_text"`
	RGCode    string    `json:"rg_code"`
	TagCode   string    `json:"tag_code"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PassRunner runs passes against one frame source. At most one pass is in
// flight at a time; concurrent requests are rejected, not queued.
type PassRunner struct {
	source     capture.FrameSource
	recognizer Recognizer
	extractor  *labeltext.Extractor
	langs      []string

	mu      sync.Mutex
	busy    bool
	preview Preview
}

// NewPassRunner creates a runner with the default extractor and languages.
func NewPassRunner(source capture.FrameSource, recognizer Recognizer) *PassRunner {
	return NewPassRunnerWithDeps(source, recognizer, labeltext.NewExtractor(), DefaultLanguages)
}

// NewPassRunnerWithDeps creates a runner with explicit dependencies.
func NewPassRunnerWithDeps(source capture.FrameSource, recognizer Recognizer, extractor *labeltext.Extractor, langs []string) *PassRunner {
	if extractor == nil {
		extractor = labeltext.NewExtractor()
	}
	return &PassRunner{
		source:     source,
		recognizer: recognizer,
		extractor:  extractor,
		langs:      langs,
	}
}

// Busy reports whether a pass is in flight.
func (r *PassRunner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Preview returns the latest preview.
func (r *PassRunner) Preview() Preview {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preview
}

// Run grabs the current frame, crops the phase region and recognizes it.
// It returns ErrBusy without touching the recognizer when a pass is already
// in flight.
func (r *PassRunner) Run(ctx context.Context, req PassRequest) (*PassResult, error) {
	if !r.acquire() {
		return nil, ErrBusy
	}
	defer r.release()

	result, err := r.run(ctx, req)
	if err != nil {
		if req.Silent {
			slog.Debug("background OCR pass failed", "phase", req.Phase, "error", err)
		} else {
			slog.Warn("OCR pass failed", "phase", req.Phase, "error", err)
		}
		return nil, err
	}
	return result, nil
}

func (r *PassRunner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return false
	}
	r.busy = true
	return true
}

func (r *PassRunner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
}

func (r *PassRunner) run(ctx context.Context, req PassRequest) (*PassResult, error) {
	frame, err := capture.Grab(r.source)
	if err != nil {
		if errors.Is(err, capture.ErrNotReady) {
			return nil, ErrCameraNotReady
		}
		return nil, &PassError{Phase: req.Phase, Err: err}
	}

	crop := capture.Crop(frame, capture.RegionFor(req.Phase))
	text, err := r.recognize(ctx, req.Phase, crop)
	if err != nil {
		return nil, err
	}
	codes := r.extractor.Extract(text)

	if !req.Quick && codeFor(req.Phase, codes) == "" {
		enhanced, err := r.recognize(ctx, req.Phase, capture.Enhance(crop))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(enhanced) != "" {
			text = enhanced
			codes = r.extractor.Extract(text)
		}
	}

	r.updatePreview(text, codes)

	return &PassResult{
		Phase:   req.Phase,
		Code:    codeFor(req.Phase, codes),
		RGCode:  codes.RGCode,
		TagCode: codes.TagCode,
		RawText: text,
	}, nil
}

func (r *PassRunner) recognize(ctx context.Context, phase capture.Phase, img image.Image) (string, error) {
	rec, err := r.recognizer.Recognize(ctx, img, r.langs)
	if err != nil {
		var loadErr *BackendLoadError
		if errors.As(err, &loadErr) {
			return "", loadErr
		}
		return "", &PassError{Phase: phase, Err: err}
	}
	return rec.Text, nil
}

func (r *PassRunner) updatePreview(text string, codes labeltext.Codes) {
	r.mu.Lock()
	defer r.mu.Unlock()

	compact := labeltext.Compact(text, previewLimit)
	if compact == "" && codes.RGCode == "" && codes.TagCode == "" {
		return
	}
	if compact != "" {
		r.preview.RawText = compact
	}
	if codes.RGCode != "" {
		r.preview.RGCode = codes.RGCode
	}
	if codes.TagCode != "" {
		r.preview.TagCode = codes.TagCode
	}
	r.preview.UpdatedAt = time.Now()
}

func codeFor(phase capture.Phase, codes labeltext.Codes) string {
	if phase == capture.PhaseTag {
		return codes.TagCode
	}
	return codes.RGCode
}
