package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/checkpoint"
)

const maxRequestBody = 1 << 20

// =============================================================================
// Request / Response Types
// =============================================================================

type startThreadRequest struct {
	Intent       string `json:"intent"`
	Mode         string `json:"mode,omitempty"`
	MaxRevisions int    `json:"maxRevisions,omitempty"`
}

type startThreadResponse struct {
	ThreadID string `json:"threadId"`
}

type resumeRequest struct {
	Action   string             `json:"action"`
	Feedback string             `json:"feedback,omitempty"`
	Draft    *careflow.Exercise `json:"draft,omitempty"`
}

type resumeResponse struct {
	ThreadID string `json:"threadId"`
}

type exerciseRequest struct {
	Intent string `json:"intent"`
}

type threadListResponse struct {
	Threads []checkpoint.ThreadMeta `json:"threads"`
}

type historyResponse struct {
	ThreadID    string                  `json:"threadId"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStartThread starts a thread and returns as soon as its first
// checkpoint is durable. Progress arrives via the stream endpoint.
func (s *Server) handleStartThread(w http.ResponseWriter, r *http.Request) {
	var req startThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}

	var opts []careflow.StartOption
	if req.Mode != "" {
		mode := careflow.Mode(req.Mode)
		if !mode.Valid() {
			writeError(w, http.StatusBadRequest, "mode must be interactive or autonomous", "validation")
			return
		}
		opts = append(opts, careflow.WithStartMode(mode))
	}
	if req.MaxRevisions > 0 {
		opts = append(opts, careflow.WithStartMaxRevisions(req.MaxRevisions))
	}

	threadID, err := s.svc.Start(r.Context(), req.Intent, opts...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startThreadResponse{ThreadID: threadID})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.svc.Threads(r.Context(), queryLimit(r, 100))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if threads == nil {
		threads = []checkpoint.ThreadMeta{}
	}
	writeJSON(w, http.StatusOK, threadListResponse{Threads: threads})
}

// handleGetThread returns the state decoded from the thread's latest
// checkpoint. This is the authoritative point query; stream events are
// best effort.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.GetState(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	if _, err := s.svc.Thread(r.Context(), threadID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	checkpoints, err := s.svc.History(r.Context(), threadID, queryLimit(r, 0))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if checkpoints == nil {
		checkpoints = []checkpoint.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, historyResponse{ThreadID: threadID, Checkpoints: checkpoints})
}

// handleResume applies a reviewer decision to a suspended thread.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req resumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}

	var decision careflow.Decision
	switch req.Action {
	case string(careflow.DecisionApprove):
		decision = careflow.DecisionApprove
	case string(careflow.DecisionRevise):
		decision = careflow.DecisionRevise
	default:
		writeError(w, http.StatusBadRequest, "action must be approve or revise", "validation")
		return
	}

	payload := careflow.ResumePayload{Feedback: req.Feedback, Draft: req.Draft}
	if err := s.svc.Resume(r.Context(), threadID, decision, payload); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{ThreadID: threadID})
}

// handleCreateExercise runs an autonomous thread to completion in the
// request's context and returns the rendered exercise.
func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}

	artifact, err := s.svc.CreateExercise(r.Context(), req.Intent)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// =============================================================================
// Helpers
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps workflow errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case careflow.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, checkpoint.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case careflow.IsTransition(err):
		writeError(w, http.StatusConflict, err.Error(), "invalid_state")
	case errors.Is(err, careflow.ErrThreadBusy):
		writeError(w, http.StatusConflict, err.Error(), "busy")
	case errors.Is(err, careflow.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "shutting_down")
	case careflow.IsPersistence(err):
		writeError(w, http.StatusInternalServerError, err.Error(), "persistence")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "internal")
	}
}
