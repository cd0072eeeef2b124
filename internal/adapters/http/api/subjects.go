package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/deborabastos/esplanada-ratings/internal/app"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
)

// SubjectDependencies defines the interface for subject operations.
type SubjectDependencies interface {
	CreateSubject(ctx context.Context, id, name string) (model.Subject, error)
	SubjectStatistics(ctx context.Context, subjectID string) (model.Statistics, error)
	RebuildSubject(ctx context.Context, subjectID string) (model.Statistics, error)
}

// SubjectsHandler handles subject registration and statistics reads.
type SubjectsHandler struct {
	deps SubjectDependencies
}

// NewSubjectsHandler creates a new subjects handler.
func NewSubjectsHandler(deps SubjectDependencies) *SubjectsHandler {
	return &SubjectsHandler{deps: deps}
}

// HandlePostSubject handles POST /subjects requests.
func (h *SubjectsHandler) HandlePostSubject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing id"))
		return
	}

	sub, err := h.deps.CreateSubject(r.Context(), req.ID, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubject) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// HandleSubjectPath dispatches GET /subjects/{id}/statistics and
// POST /subjects/{id}/rebuild requests.
func (h *SubjectsHandler) HandleSubjectPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/subjects/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	switch {
	case action == "statistics" && r.Method == http.MethodGet:
		h.handleStatistics(w, r, id)
	case action == "rebuild" && r.Method == http.MethodPost:
		h.handleRebuild(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *SubjectsHandler) handleStatistics(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.deps.SubjectStatistics(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSubject) {
			writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *SubjectsHandler) handleRebuild(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.deps.RebuildSubject(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSubject) {
			writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
