package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deborabastos/esplanada-ratings/internal/domain/identity"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
)

// IdentityDependencies defines the interface for identity derivation.
type IdentityDependencies interface {
	ClientIdentity(ctx context.Context, signals model.Signals) (model.Identity, error)
}

// IdentityHandler handles identity derivation requests.
type IdentityHandler struct {
	deps IdentityDependencies
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(deps IdentityDependencies) *IdentityHandler {
	return &IdentityHandler{deps: deps}
}

// HandlePostIdentity handles POST /identity requests.
func (h *IdentityHandler) HandlePostIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req signalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	id, err := h.deps.ClientIdentity(r.Context(), model.Signals{
		UserAgent:    req.UserAgent,
		Platform:     req.Platform,
		Language:     req.Language,
		Timezone:     req.Timezone,
		ScreenWidth:  req.ScreenWidth,
		ScreenHeight: req.ScreenHeight,
		ColorDepth:   req.ColorDepth,
		CanvasDigest: req.CanvasDigest,
		AudioDigest:  req.AudioDigest,
	})
	if err != nil {
		if errors.Is(err, identity.ErrIdentityUnavailable) {
			writeError(w, http.StatusUnprocessableEntity, "identity_unavailable", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}
