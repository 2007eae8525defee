// Package scanner drives a label scan session: it polls the camera for RG and
// tag codes, holds detected codes until the operator confirms them, and hands
// the confirmed codes to a form or to the allocation lookup.
package scanner

import (
	"fmt"

	"github.com/zombor/equipment-scanner/internal/capture"
)

// Mode selects what a session does with confirmed codes.
type Mode int

const (
	// ModeFormFill scans RG then tag and writes both into a form.
	ModeFormFill Mode = iota
	// ModeAllocationLookup scans only the RG and looks up its allocation.
	ModeAllocationLookup
)

func (m Mode) String() string {
	if m == ModeAllocationLookup {
		return "allocation"
	}
	return "form"
}

// ParseMode parses "form" or "allocation".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "form", "":
		return ModeFormFill, nil
	case "allocation":
		return ModeAllocationLookup, nil
	}
	return 0, fmt.Errorf("unknown scan mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Stage is where the session is within its current phase.
type Stage int

const (
	StageClosed Stage = iota
	StageScanning
	StagePendingConfirmation
	// StageAwaitingOperator means the automatic tag attempt found nothing and
	// the operator has to retry or skip.
	StageAwaitingOperator
)

var stageNames = map[Stage]string{
	StageClosed:              "closed",
	StageScanning:            "scanning",
	StagePendingConfirmation: "pending_confirmation",
	StageAwaitingOperator:    "awaiting_operator",
}

func (s Stage) String() string { return stageNames[s] }

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// state is the session's position in the scan flow. Tag states carry the
// confirmed RG, so a tag phase without a confirmed RG cannot be built.
type state interface {
	phase() capture.Phase
	stage() Stage
}

type closedState struct{}

type rgScanning struct{}

type rgPending struct {
	code string
}

type tagScanning struct {
	rg              string
	attemptConsumed bool
}

type tagPending struct {
	rg   string
	code string
}

func (closedState) phase() capture.Phase { return capture.PhaseRG }
func (closedState) stage() Stage         { return StageClosed }

func (rgScanning) phase() capture.Phase { return capture.PhaseRG }
func (rgScanning) stage() Stage         { return StageScanning }

func (rgPending) phase() capture.Phase { return capture.PhaseRG }
func (rgPending) stage() Stage         { return StagePendingConfirmation }

func (tagScanning) phase() capture.Phase { return capture.PhaseTag }
func (s tagScanning) stage() Stage {
	if s.attemptConsumed {
		return StageAwaitingOperator
	}
	return StageScanning
}

func (tagPending) phase() capture.Phase { return capture.PhaseTag }
func (tagPending) stage() Stage         { return StagePendingConfirmation }
