package equipment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zombor/equipment-scanner/internal/allocation"
	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/scanner"
)

// defaultWorkspace keys allocation lookups opened without a draft id.
const defaultWorkspace = "default"

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoFrameBuffer is returned when frames are pushed to a session that
	// reads from a local camera.
	ErrNoFrameBuffer = errors.New("session does not accept uploaded frames")
)

// IDGenerator generates unique IDs for sessions and drafts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns the scan sessions, the allocation lookups and the drafts that
// form sessions fill.
type Service struct {
	db         DB
	template   scanner.Config
	looker     allocation.Looker
	idGen      IDGenerator
	timeSource TimeSource

	mu           sync.Mutex
	sessions     map[string]*entry
	coordinators map[string]*allocation.Coordinator
}

// entry is a registered session and what it was opened for.
type entry struct {
	session   *scanner.Session
	draftID   string
	workspace string
	buffer    *capture.FrameBuffer
}

// SessionView is a session snapshot with the draft or lookup workspace it
// belongs to.
type SessionView struct {
	scanner.Snapshot
	DraftID   string `json:"draft_id,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

// NewService creates a Service. template supplies the recognizer, extractor
// and polling interval of every session. When template.Camera is nil each
// session reads frames uploaded through PushFrame.
func NewService(db DB, template scanner.Config, looker allocation.Looker) *Service {
	return NewServiceWithDeps(db, template, looker, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with explicit id and time sources.
func NewServiceWithDeps(db DB, template scanner.Config, looker allocation.Looker, idGen IDGenerator, timeSource TimeSource) *Service {
	return &Service{
		db:           db,
		template:     template,
		looker:       looker,
		idGen:        idGen,
		timeSource:   timeSource,
		sessions:     make(map[string]*entry),
		coordinators: make(map[string]*allocation.Coordinator),
	}
}

// OpenSession creates and opens a session. In form mode the session fills
// draftID, which is created when empty or missing. In allocation mode
// draftID names the lookup workspace; sessions sharing it share lookups.
// A camera failure still registers the session so the operator can see the
// error; it is returned alongside the session.
func (s *Service) OpenSession(ctx context.Context, mode scanner.Mode, draftID string) (*scanner.Session, error) {
	cfg := s.template
	e := &entry{}

	switch mode {
	case scanner.ModeFormFill:
		draft, err := s.ensureDraft(draftID)
		if err != nil {
			return nil, err
		}
		e.draftID = draft.ID
		cfg.Sink = &draftSink{service: s, draftID: draft.ID}
	case scanner.ModeAllocationLookup:
		if s.looker == nil {
			return nil, fmt.Errorf("allocation lookup is not configured")
		}
		e.workspace = workspaceKey(draftID)
		cfg.Lookup = s.coordinator(e.workspace)
	}

	id := s.idGen.Generate()
	if cfg.Camera == nil {
		cfg.Camera = s.uploadCamera(id)
	}
	e.session = scanner.NewSession(id, cfg)

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	if err := e.session.Open(ctx, mode); err != nil {
		if errors.Is(err, scanner.ErrCameraUnavailable) {
			return e.session, err
		}
		s.forget(id)
		return nil, err
	}
	return e.session, nil
}

// Session returns a registered session.
func (s *Service) Session(id string) (*scanner.Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// View returns a session snapshot with its draft or workspace. A completed
// session is forgotten once its final snapshot has been read.
func (s *Service) View(id string) (SessionView, error) {
	e, err := s.entry(id)
	if err != nil {
		return SessionView{}, err
	}
	snap := e.session.Snapshot()
	if !snap.Open && snap.Completion != nil {
		s.forget(id)
	}
	return SessionView{Snapshot: snap, DraftID: e.draftID, Workspace: e.workspace}, nil
}

func (s *Service) entry(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// CloseSession closes a session and forgets it.
func (s *Service) CloseSession(id string) error {
	session, err := s.Session(id)
	if err != nil {
		return err
	}
	s.forget(id)
	return session.Close()
}

// PushFrame feeds an uploaded camera frame to a session.
func (s *Service) PushFrame(id string, frame image.Image) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	buf := e.buffer
	s.mu.Unlock()
	if buf == nil {
		return ErrNoFrameBuffer
	}
	buf.Push(frame)
	return nil
}

// Lookup returns the latest allocation lookup of a workspace. Workspaces no
// session has used report an empty outcome.
func (s *Service) Lookup(workspace string) allocation.Outcome {
	s.mu.Lock()
	c, ok := s.coordinators[workspaceKey(workspace)]
	s.mu.Unlock()
	if !ok {
		return allocation.Outcome{}
	}
	return c.Latest()
}

// GetDraft returns a draft.
func (s *Service) GetDraft(id string) (*Draft, error) {
	return s.db.GetDraft(id)
}

// ListDrafts returns all drafts.
func (s *Service) ListDrafts() ([]*Draft, error) {
	return s.db.ListDrafts()
}

// DeleteDraft removes a draft.
func (s *Service) DeleteDraft(id string) error {
	if _, err := s.db.GetDraft(id); err != nil {
		return err
	}
	return s.db.DeleteDraft(id)
}

// Close closes every session.
func (s *Service) Close() error {
	s.mu.Lock()
	sessions := make([]*scanner.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		sessions = append(sessions, e.session)
	}
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteCodes fills the RG and tag of a draft.
func (s *Service) WriteCodes(draftID string, codes scanner.FormCodes) error {
	draft, err := s.db.GetDraft(draftID)
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	draft.RGCode = codes.RGCode
	draft.TagCode = codes.TagCode
	draft.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveDraft(draft); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	slog.Info("draft filled from scan", "draft", draftID, "rg_code", codes.RGCode, "tag_code", codes.TagCode)
	return nil
}

func (s *Service) ensureDraft(id string) (*Draft, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		draft, err := s.db.GetDraft(id)
		if err == nil {
			return draft, nil
		}
		if !errors.Is(err, ErrDraftNotFound) {
			return nil, fmt.Errorf("loading draft: %w", err)
		}
	} else {
		id = s.idGen.Generate()
	}

	now := s.timeSource.Now()
	draft := &Draft{ID: id, CreatedAt: now, UpdatedAt: now}
	if err := s.db.SaveDraft(draft); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	return draft, nil
}

func workspaceKey(workspace string) string {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return defaultWorkspace
	}
	return workspace
}

func (s *Service) coordinator(workspace string) *allocation.Coordinator {
	workspace = workspaceKey(workspace)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coordinators[workspace]
	if !ok {
		c = allocation.NewCoordinator(s.looker)
		s.coordinators[workspace] = c
	}
	return c
}

// uploadCamera returns a camera whose frames come from PushFrame. Every open
// gets a fresh buffer since closing a session closes its source.
func (s *Service) uploadCamera(id string) capture.Camera {
	return capture.CameraFunc(func(ctx context.Context, facing capture.Facing) (capture.FrameSource, error) {
		buf := capture.NewFrameBuffer()
		s.mu.Lock()
		if e, ok := s.sessions[id]; ok {
			e.buffer = buf
		}
		s.mu.Unlock()
		return buf, nil
	})
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// draftSink writes a session's codes into its draft.
type draftSink struct {
	service *Service
	draftID string
}

func (d *draftSink) WriteCodes(ctx context.Context, codes scanner.FormCodes) error {
	return d.service.WriteCodes(d.draftID, codes)
}
