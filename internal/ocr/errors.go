package ocr

import (
	"errors"
	"fmt"

	"github.com/zombor/equipment-scanner/internal/capture"
)

var (
	// ErrBusy is returned when a pass is requested while another is in flight.
	ErrBusy = errors.New("ocr pass already in flight")

	// ErrCameraNotReady is returned when the frame source has no frame yet.
	ErrCameraNotReady = capture.ErrNotReady
)

// BackendLoadError reports that the recognition backend could not be
// initialized. The failure is not cached; the next pass retries the load.
type BackendLoadError struct {
	Backend string
	Err     error
}

func (e *BackendLoadError) Error() string {
	return fmt.Sprintf("loading %s recognizer: %v", e.Backend, e.Err)
}

func (e *BackendLoadError) Unwrap() error { return e.Err }

// PassError reports a recognition failure during a pass.
type PassError struct {
	Phase capture.Phase
	Err   error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s pass: %v", e.Phase, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }
