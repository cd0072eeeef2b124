package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"

	service "github.com/deborabastos/esplanada-ratings/internal/app"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/internal/domain/validate"
)

// RatingDependencies defines the interface for rating submissions.
type RatingDependencies interface {
	SubmitRating(ctx context.Context, sub model.Submission, meta model.ClientMeta) (service.Receipt, error)
	CanRate(ctx context.Context, identityDigest, subjectID string) (service.Allowance, error)
}

// RatingsHandler handles rating submissions and allowance queries.
type RatingsHandler struct {
	deps RatingDependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingDependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandlePostRating handles POST /ratings requests.
func (h *RatingsHandler) HandlePostRating(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	ts, err := parseTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid ts; must be RFC3339"))
		return
	}

	sub := model.Submission{
		SubjectID:   req.SubjectID,
		Identity:    req.Identity,
		Score:       req.Score,
		Comment:     req.Comment,
		PhotoRefs:   req.PhotoRefs,
		SubmittedAt: ts,
	}
	meta := model.ClientMeta{
		Description: r.UserAgent(),
		RemoteAddr:  remoteAddr(r),
	}

	receipt, err := h.deps.SubmitRating(r.Context(), sub, meta)
	if err != nil {
		var rej *validate.Rejection
		if errors.As(err, &rej) {
			writeRejection(w, rej)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	status := http.StatusCreated
	if receipt.Updated {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

// allowanceResponse is the read shape for GET /ratings/allowance.
type allowanceResponse struct {
	Allowed           bool `json:"allowed"`
	Update            bool `json:"update"`
	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
}

// HandleGetAllowance handles GET /ratings/allowance?subject=&identity=
// requests. The check is read-only; no budget is consumed.
func (h *RatingsHandler) HandleGetAllowance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	subjectID := r.URL.Query().Get("subject")
	identityDigest := r.URL.Query().Get("identity")
	if subjectID == "" || identityDigest == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing subject or identity"))
		return
	}

	allowance, err := h.deps.CanRate(r.Context(), identityDigest, subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	resp := allowanceResponse{Allowed: allowance.Allowed, Update: allowance.Update}
	if allowance.RetryAfter > 0 {
		resp.RetryAfterSeconds = int(math.Ceil(allowance.RetryAfter.Seconds()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// remoteAddr strips the port from the peer address.
func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
