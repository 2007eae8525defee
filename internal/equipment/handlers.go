package equipment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/ocr"
	"github.com/zombor/equipment-scanner/internal/scanner"
)

// maxFrameSize bounds uploaded frames. Phone photos can be large.
const maxFrameSize = int64(20 << 20)

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an error response. The session view is attached when
// known so clients can render the operator message.
func writeError(w http.ResponseWriter, err error, view *SessionView) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		msg = "Internal server error"
	}
	body := map[string]any{"error": msg}
	if view != nil {
		body["session"] = view
	}
	writeJSON(w, status, body)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var loadErr *ocr.BackendLoadError
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrSessionClosed),
		errors.Is(err, scanner.ErrWrongPhase),
		errors.Is(err, scanner.ErrStale),
		errors.Is(err, scanner.ErrBusy),
		errors.Is(err, ErrNoFrameBuffer):
		return http.StatusConflict
	case errors.Is(err, scanner.ErrRGNotConfirmed), errors.Is(err, scanner.ErrNoCandidate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scanner.ErrCameraUnavailable),
		errors.Is(err, scanner.ErrCameraNotReady),
		errors.As(err, &loadErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleRegions returns the on-screen guides of both phases
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]capture.Region{
		capture.PhaseRG.String():  capture.RGRegion,
		capture.PhaseTag.String(): capture.TagRegion,
	})
}

// handleOpenSession opens a new scan session
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode    scanner.Mode `json:"mode"`
		DraftID string       `json:"draft_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	session, err := s.service.OpenSession(r.Context(), req.Mode, req.DraftID)
	if session == nil {
		slog.Error("Error opening session", "mode", req.Mode, "error", err)
		writeError(w, err, nil)
		return
	}
	if err != nil {
		// The session exists and carries the camera error for the operator.
		slog.Warn("Session opened without camera", "session", session.ID(), "error", err)
	}

	view, err := s.service.View(session.ID())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetSession returns a session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.View(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleReadNow runs an operator-triggered read
func (s *Server) handleReadNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.service.Session(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := session.ReadNow(r.Context())
	view, viewErr := s.service.View(id)
	if viewErr != nil {
		writeError(w, viewErr, nil)
		return
	}
	// A read that finds nothing is an answer, not a failure.
	if err != nil && !errors.Is(err, scanner.ErrNoCandidate) {
		writeError(w, err, &view)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": view,
		"result":  result,
	})
}

// handleConfirm confirms the pending code of the current phase
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(session *scanner.Session) error {
		return session.Confirm(r.Context())
	})
}

// handleRetry discards the pending code and resumes reading
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(session *scanner.Session) error {
		return session.Retry()
	})
}

// handleSkip finishes a form session without a tag
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(session *scanner.Session) error {
		return session.SkipTag(r.Context())
	})
}

// sessionAction runs an operator action and responds with the new snapshot
func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request, action func(*scanner.Session) error) {
	id := r.PathValue("id")
	session, err := s.service.Session(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	actionErr := action(session)
	view, err := s.service.View(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if actionErr != nil {
		writeError(w, actionErr, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handlePushFrame accepts a camera frame for sessions fed by the client
func (s *Server) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	data, contentType, err := readFrame(w, r)
	if err != nil {
		slog.Error("Error reading frame", "session", id, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	frame, err := capture.DecodeImage(data, contentType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.service.PushFrame(id, frame); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readFrame reads an uploaded frame either from a multipart "file" field or
// from the raw request body.
func readFrame(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFrameSize); err != nil {
			return nil, "", err
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return data, r.Header.Get("Content-Type"), nil
}

// handleCloseSession closes and forgets a session
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(r.PathValue("id")); err != nil {
		writeError(w, err, nil)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDraft returns a draft
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.service.GetDraft(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleListDrafts returns all drafts
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.service.ListDrafts()
	if err != nil {
		slog.Error("Error listing drafts", "error", err)
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

// handleDeleteDraft deletes a draft
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDraft(r.PathValue("id")); err != nil {
		writeError(w, err, nil)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetLookup returns the latest allocation lookup of a workspace
func (s *Server) handleGetLookup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Lookup(r.PathValue("workspace")))
}
