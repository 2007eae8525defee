package scanner

import (
	"errors"

	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/ocr"
)

var (
	// ErrCameraUnavailable wraps camera open failures. The session stays open
	// showing the error but never polls.
	ErrCameraUnavailable = capture.ErrUnavailable
	ErrCameraNotReady    = ocr.ErrCameraNotReady
	ErrBusy              = ocr.ErrBusy

	// ErrNoCandidate means there is no code to act on in the current phase.
	ErrNoCandidate    = errors.New("no code candidate")
	ErrRGNotConfirmed = errors.New("rg code not confirmed")
	ErrSessionClosed  = errors.New("scan session closed")
	ErrWrongPhase     = errors.New("action not allowed in current phase")
	// ErrStale means the session was retried or reopened while a manual read
	// was in flight. The read's result was discarded.
	ErrStale = errors.New("session changed during read")
)
