package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/equipment-scanner/internal/allocation"
	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/labeltext"
	"github.com/zombor/equipment-scanner/internal/ocr"
)

// DefaultInterval is the delay between automatic reads.
const DefaultInterval = 900 * time.Millisecond

// FormCodes are the codes written into the destination form.
type FormCodes struct {
	RGCode  string `json:"rg_code"`
	TagCode string `json:"tag_code"`
}

// FormSink receives the codes of a completed FormFill session. It must only
// fill the form, never submit it.
type FormSink interface {
	WriteCodes(ctx context.Context, codes FormCodes) error
}

// FormSinkFunc adapts a function to FormSink.
type FormSinkFunc func(ctx context.Context, codes FormCodes) error

// WriteCodes calls f.
func (f FormSinkFunc) WriteCodes(ctx context.Context, codes FormCodes) error {
	return f(ctx, codes)
}

// LookupDispatcher starts allocation lookups for confirmed RGs.
type LookupDispatcher interface {
	Dispatch(ctx context.Context, rgCode string) (uint64, bool)
	Reset()
	Latest() allocation.Outcome
}

// Config holds a session's collaborators.
type Config struct {
	Camera     capture.Camera
	Facing     capture.Facing
	Recognizer ocr.Recognizer
	Extractor  *labeltext.Extractor
	Languages  []string
	Interval   time.Duration

	// Sink is required for ModeFormFill.
	Sink FormSink
	// Lookup is required for ModeAllocationLookup.
	Lookup LookupDispatcher
}

// Completion describes how a session finished.
type Completion struct {
	Mode    Mode   `json:"mode"`
	RGCode  string `json:"rg_code"`
	TagCode string `json:"tag_code"`
	// Skipped is set when the operator finished without a tag.
	Skipped bool `json:"skipped"`
	// LookupRequestID identifies the lookup dispatched for an allocation session.
	LookupRequestID uint64 `json:"lookup_request_id,omitempty"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID                   string              `json:"id"`
	Mode                 Mode                `json:"mode"`
	Open                 bool                `json:"open"`
	Phase                capture.Phase       `json:"phase"`
	Stage                Stage               `json:"stage"`
	Pending              labeltext.Codes     `json:"pending"`
	Confirmed            labeltext.Codes     `json:"confirmed"`
	AwaitingConfirmation bool                `json:"awaiting_confirmation"`
	TagAttemptConsumed   bool                `json:"tag_attempt_consumed"`
	Busy                 bool                `json:"busy"`
	Step                 string              `json:"step"`
	Error                string              `json:"error,omitempty"`
	Preview              ocr.Preview         `json:"preview"`
	Region               capture.Region      `json:"region"`
	Completion           *Completion         `json:"completion,omitempty"`
	Lookup               *allocation.Outcome `json:"lookup,omitempty"`
}

// Session is one scan session. All methods are safe for concurrent use.
// OCR passes and lookups run outside the session lock; every reopen, retry,
// phase change and close advances a generation counter so that results of
// passes started before the change are discarded.
type Session struct {
	id  string
	cfg Config

	mu         sync.Mutex
	mode       Mode
	st         state
	gen        uint64
	timer      *time.Timer
	loopCtx    context.Context
	cancel     context.CancelFunc
	source     capture.FrameSource
	runner     *ocr.PassRunner
	cameraErr  error
	step       string
	errMsg     string
	completion *Completion
}

// NewSession creates a closed session.
func NewSession(id string, cfg Config) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Facing == "" {
		cfg.Facing = capture.FacingEnvironment
	}
	if cfg.Extractor == nil {
		cfg.Extractor = labeltext.NewExtractor()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = ocr.DefaultLanguages
	}
	return &Session{id: id, cfg: cfg, st: closedState{}}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Open starts the session in the RG phase and begins polling the camera.
// Opening an open session restarts it. When the camera cannot be opened the
// error is returned and also recorded on the session, which stays open
// without polling.
func (s *Session) Open(ctx context.Context, mode Mode) error {
	switch {
	case mode == ModeFormFill && s.cfg.Sink == nil:
		return fmt.Errorf("form mode requires a form sink")
	case mode == ModeAllocationLookup && s.cfg.Lookup == nil:
		return fmt.Errorf("allocation mode requires a lookup dispatcher")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.mode = mode
	s.st = rgScanning{}
	s.completion = nil
	s.cameraErr = nil
	s.errMsg = ""
	s.step = stepPointRG
	if mode == ModeAllocationLookup {
		s.cfg.Lookup.Reset()
	}

	src, err := s.cfg.Camera.Open(ctx, s.cfg.Facing)
	if err != nil {
		if !errors.Is(err, ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		}
		slog.Error("failed to open camera", "session", s.id, "error", err)
		s.cameraErr = err
		s.errMsg = msgCameraUnavailable
		s.step = ""
		return err
	}

	s.source = src
	s.runner = ocr.NewPassRunnerWithDeps(src, s.cfg.Recognizer, s.cfg.Extractor, s.cfg.Languages)
	s.loopCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.scheduleLocked(0)

	slog.Info("scan session opened", "session", s.id, "mode", mode)
	return nil
}

// Close stops polling, releases the camera and clears the session. Closing a
// closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.(closedState); ok {
		return nil
	}
	s.teardownLocked()
	s.st = closedState{}
	s.completion = nil
	s.cameraErr = nil
	s.errMsg = ""
	s.step = ""
	slog.Info("scan session closed", "session", s.id)
	return nil
}

// ReadNow runs an operator-triggered read with both the raw and the enhanced
// pass. A found code moves the session to pending confirmation. When nothing
// is found it returns the pass result with ErrNoCandidate and the session
// keeps scanning.
func (s *Session) ReadNow(ctx context.Context) (*ocr.PassResult, error) {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	phase := s.st.phase()
	gen := s.gen
	runner := s.runner
	prevStep := s.step
	s.step = stepReading(phase.Label())
	s.mu.Unlock()

	res, err := runner.Run(ctx, ocr.PassRequest{Phase: phase, Quick: false, Silent: false})

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		if _, ok := s.st.(closedState); ok {
			return nil, ErrSessionClosed
		}
		return nil, ErrStale
	}

	s.step = prevStep
	if err != nil {
		var loadErr *ocr.BackendLoadError
		switch {
		case errors.Is(err, ErrBusy):
		case errors.Is(err, ErrCameraNotReady):
			s.errMsg = msgCameraNotReady
		case errors.As(err, &loadErr):
			s.errMsg = msgBackendLoad
		default:
			s.errMsg = msgReadFailed
		}
		return nil, err
	}

	if res.Code == "" {
		if phase == capture.PhaseTag {
			s.errMsg = msgTagNotFound
		} else {
			s.errMsg = msgRGNotFound
		}
		return res, ErrNoCandidate
	}

	s.detectLocked(phase, res.Code)
	return res, nil
}

// Confirm confirms the pending code of the current phase.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.phase() == capture.PhaseTag {
		return s.confirmTagLocked(ctx)
	}
	return s.confirmRGLocked(ctx)
}

// ConfirmRG confirms the pending RG. In allocation mode this completes the
// session and dispatches the lookup; in form mode it moves on to the tag.
func (s *Session) ConfirmRG(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmRGLocked(ctx)
}

func (s *Session) confirmRGLocked(ctx context.Context) error {
	if _, ok := s.st.(closedState); ok {
		return ErrSessionClosed
	}

	var code string
	switch st := s.st.(type) {
	case rgPending:
		code = labeltext.NormalizeCodeInput(st.code)
	case rgScanning:
	default:
		return ErrWrongPhase
	}
	if code == "" {
		s.errMsg = msgNoValidRG
		return ErrNoCandidate
	}

	if s.mode == ModeAllocationLookup {
		c := Completion{Mode: s.mode, RGCode: code}
		s.completeLocked(&c)
		s.step = stepLookingUp(code)
		if id, ok := s.cfg.Lookup.Dispatch(ctx, code); ok {
			c.LookupRequestID = id
		}
		slog.Info("rg confirmed, lookup dispatched", "session", s.id, "rg_code", code, "request_id", c.LookupRequestID)
		return nil
	}

	s.gen++
	s.st = tagScanning{rg: code}
	s.errMsg = ""
	s.step = stepRGConfirmed(code)
	s.scheduleLocked(0)
	slog.Info("rg confirmed", "session", s.id, "rg_code", code)
	return nil
}

// ConfirmTag confirms the pending tag, writes both codes into the form and
// completes the session.
func (s *Session) ConfirmTag(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmTagLocked(ctx)
}

func (s *Session) confirmTagLocked(ctx context.Context) error {
	if _, ok := s.st.(closedState); ok {
		return ErrSessionClosed
	}
	if s.mode != ModeFormFill {
		return ErrWrongPhase
	}

	var rg, tag string
	switch st := s.st.(type) {
	case tagPending:
		rg, tag = st.rg, labeltext.NormalizeCodeInput(st.code)
	case tagScanning:
		rg = st.rg
	default:
		s.errMsg = msgRGRequiredForTag
		return ErrRGNotConfirmed
	}
	if tag == "" {
		s.errMsg = msgNoValidTag
		return ErrNoCandidate
	}

	return s.finishFormLocked(ctx, rg, tag)
}

// SkipTag completes a form session with the confirmed RG and no tag.
func (s *Session) SkipTag(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.(closedState); ok {
		return ErrSessionClosed
	}
	if s.mode != ModeFormFill {
		return ErrWrongPhase
	}

	var rg string
	switch st := s.st.(type) {
	case tagPending:
		rg = st.rg
	case tagScanning:
		rg = st.rg
	default:
		s.errMsg = msgRGRequiredToSkip
		return ErrRGNotConfirmed
	}

	return s.finishFormLocked(ctx, rg, "")
}

// Retry drops the pending code of the current phase and resumes polling. In
// the tag phase the automatic attempt is re-armed; in allocation mode any
// previous lookup is forgotten.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}

	s.gen++
	s.errMsg = ""
	switch st := s.st.(type) {
	case tagScanning:
		s.st = tagScanning{rg: st.rg}
		s.step = stepPointTag
	case tagPending:
		s.st = tagScanning{rg: st.rg}
		s.step = stepPointTag
	default:
		s.st = rgScanning{}
		s.step = stepPointRG
	}
	if s.mode == ModeAllocationLookup {
		s.cfg.Lookup.Reset()
	}
	s.scheduleLocked(0)
	return nil
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, closed := s.st.(closedState)
	snap := Snapshot{
		ID:     s.id,
		Mode:   s.mode,
		Open:   !closed,
		Phase:  s.st.phase(),
		Stage:  s.st.stage(),
		Step:   s.step,
		Error:  s.errMsg,
		Region: capture.RegionFor(s.st.phase()),
	}

	switch st := s.st.(type) {
	case rgPending:
		snap.Pending.RGCode = st.code
		snap.AwaitingConfirmation = true
	case tagScanning:
		snap.Confirmed.RGCode = st.rg
		snap.TagAttemptConsumed = st.attemptConsumed
		snap.AwaitingConfirmation = st.attemptConsumed
	case tagPending:
		snap.Confirmed.RGCode = st.rg
		snap.Pending.TagCode = st.code
		snap.AwaitingConfirmation = true
		snap.TagAttemptConsumed = true
	}
	if s.completion != nil {
		c := *s.completion
		snap.Completion = &c
		snap.Confirmed = labeltext.Codes{RGCode: c.RGCode, TagCode: c.TagCode}
	}

	if s.runner != nil {
		snap.Busy = s.runner.Busy()
		snap.Preview = s.runner.Preview()
	}
	if s.mode == ModeAllocationLookup && s.cfg.Lookup != nil {
		if o := s.cfg.Lookup.Latest(); o.RequestID != 0 {
			snap.Lookup = &o
		}
	}
	return snap
}

// tick is one automatic read. It only runs while nothing awaits the operator.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.runner == nil {
		s.mu.Unlock()
		return
	}

	var want state
	switch st := s.st.(type) {
	case rgScanning:
		want = st
	case tagScanning:
		if st.attemptConsumed {
			s.mu.Unlock()
			return
		}
		// The tag gets a single automatic attempt.
		want = tagScanning{rg: st.rg, attemptConsumed: true}
		s.st = want
	default:
		s.mu.Unlock()
		return
	}
	phase := want.phase()
	runner, ctx := s.runner, s.loopCtx
	s.mu.Unlock()

	res, err := runner.Run(ctx, ocr.PassRequest{Phase: phase, Quick: true, Silent: true})

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.st != want {
		return
	}

	if errors.Is(err, ErrBusy) {
		// A manual read is in flight and will decide the outcome.
		if st, ok := want.(tagScanning); ok {
			s.st = tagScanning{rg: st.rg}
		}
		s.scheduleLocked(s.cfg.Interval)
		return
	}

	if res != nil && res.Code != "" {
		s.detectLocked(phase, res.Code)
		return
	}

	if phase == capture.PhaseTag {
		s.errMsg = msgTagMissed
		s.step = stepTagAttemptDone
		return
	}
	s.scheduleLocked(s.cfg.Interval)
}

// detectLocked records a found code as pending confirmation.
func (s *Session) detectLocked(phase capture.Phase, code string) {
	code = labeltext.NormalizeCodeInput(code)
	if code == "" || phase != s.st.phase() {
		return
	}

	switch st := s.st.(type) {
	case rgScanning, rgPending:
		s.st = rgPending{code: code}
		s.step = stepRGDetected(s.mode, code)
	case tagScanning:
		s.st = tagPending{rg: st.rg, code: code}
		s.step = stepTagDetected(code)
	case tagPending:
		s.st = tagPending{rg: st.rg, code: code}
		s.step = stepTagDetected(code)
	default:
		return
	}
	s.errMsg = ""
	s.stopTimerLocked()
	slog.Info("code detected", "session", s.id, "phase", phase, "code", code)
}

func (s *Session) finishFormLocked(ctx context.Context, rg, tag string) error {
	codes := FormCodes{RGCode: rg, TagCode: tag}
	if err := s.cfg.Sink.WriteCodes(ctx, codes); err != nil {
		s.errMsg = msgFormWriteFailed
		return fmt.Errorf("writing codes to form: %w", err)
	}

	s.completeLocked(&Completion{Mode: s.mode, RGCode: rg, TagCode: tag, Skipped: tag == ""})
	s.step = stepCompleted(rg, tag)
	slog.Info("scan session completed", "session", s.id, "rg_code", rg, "tag_code", tag)
	return nil
}

func (s *Session) completeLocked(c *Completion) {
	s.teardownLocked()
	s.st = closedState{}
	s.completion = c
	s.cameraErr = nil
	s.errMsg = ""
}

// activeLocked returns the error that prevents reading in the current state.
func (s *Session) activeLocked() error {
	if _, ok := s.st.(closedState); ok {
		return ErrSessionClosed
	}
	if s.cameraErr != nil {
		return s.cameraErr
	}
	return nil
}

func (s *Session) scheduleLocked(delay time.Duration) {
	s.stopTimerLocked()
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.tick(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) teardownLocked() {
	s.gen++
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loopCtx = nil
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			slog.Warn("failed to release camera", "session", s.id, "error", err)
		}
		s.source = nil
	}
	s.runner = nil
}
