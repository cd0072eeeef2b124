// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/adapters/broadcast"
	service "github.com/deborabastos/esplanada-ratings/internal/app"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/internal/domain/validate"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ClientIdentity(ctx context.Context, signals model.Signals) (model.Identity, error)
	CreateSubject(ctx context.Context, id, name string) (model.Subject, error)
	SubmitRating(ctx context.Context, sub model.Submission, meta model.ClientMeta) (service.Receipt, error)
	CanRate(ctx context.Context, identityDigest, subjectID string) (service.Allowance, error)
	SubjectStatistics(ctx context.Context, subjectID string) (model.Statistics, error)
	RebuildSubject(ctx context.Context, subjectID string) (model.Statistics, error)
	Subscribe(name string) (<-chan broadcast.Update, func())
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	identityHandler *IdentityHandler
	ratingsHandler  *RatingsHandler
	subjectsHandler *SubjectsHandler
	streamHandler   *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		identityHandler: NewIdentityHandler(deps),
		ratingsHandler:  NewRatingsHandler(deps),
		subjectsHandler: NewSubjectsHandler(deps),
		streamHandler:   NewStreamHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/identity", MetricsMiddleware(s.identityHandler.HandlePostIdentity, "identity"))
	mux.HandleFunc("/ratings/allowance", MetricsMiddleware(s.ratingsHandler.HandleGetAllowance, "allowance"))
	mux.HandleFunc("/ratings", MetricsMiddleware(s.ratingsHandler.HandlePostRating, "ratings"))
	mux.HandleFunc("/subjects", MetricsMiddleware(s.subjectsHandler.HandlePostSubject, "subjects"))
	mux.HandleFunc("/subjects/", MetricsMiddleware(s.subjectsHandler.HandleSubjectPath, "subject"))
	mux.HandleFunc("/ws", s.streamHandler.HandleStream)
}

// ratingRequest mirrors the public schema for POST /ratings.
type ratingRequest struct {
	SubjectID string   `json:"subject_id"`
	Identity  string   `json:"identity"`
	Score     int      `json:"score"`
	Comment   string   `json:"comment,omitempty"`
	PhotoRefs []string `json:"photo_refs,omitempty"`
	TS        string   `json:"ts,omitempty"`
}

// signalsRequest mirrors the public schema for POST /identity.
type signalsRequest struct {
	UserAgent    string `json:"user_agent"`
	Platform     string `json:"platform"`
	Language     string `json:"language"`
	Timezone     string `json:"timezone"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	ColorDepth   int    `json:"color_depth"`
	CanvasDigest string `json:"canvas_digest"`
	AudioDigest  string `json:"audio_digest"`
}

type subjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type errorResponse struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeRejection translates a pipeline rejection into its HTTP shape.
// The message comes from Rejection.Message, so flagged submissions get
// the same generic wording as any other refusal.
func writeRejection(w http.ResponseWriter, rej *validate.Rejection) {
	status := rejectionStatus(rej.Kind)
	resp := errorResponse{Code: string(rej.Kind), Message: rej.Message()}
	if rej.RetryAfter > 0 {
		secs := int(math.Ceil(rej.RetryAfter.Seconds()))
		resp.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, resp)
}

func rejectionStatus(kind validate.Kind) int {
	switch kind {
	case validate.KindRateLimited:
		return http.StatusTooManyRequests
	case validate.KindDuplicateActive:
		return http.StatusConflict
	case validate.KindSuspicious:
		return http.StatusForbidden
	case validate.KindStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// parseTS accepts an optional RFC3339 client timestamp.
func parseTS(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
