// Package model contains domain models passed between layers.
package model

import "time"

// Score bounds for a rating.
const (
	MinScore = 1
	MaxScore = 5
)

// Confidence describes how trustworthy an identity digest is.
type Confidence string

// Identity confidence levels.
const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Signals carries the raw client signals used for fingerprinting.
// Each field is best-effort; an empty value means the client could not
// collect that signal.
type Signals struct {
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

// Identity is the pseudonymous client identifier derived from Signals.
// The digest is one-way; raw signals are never recoverable from it.
type Identity struct {
	Digest     string     `json:"digest"`
	Confidence Confidence `json:"confidence"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Expired reports whether the identity is past its validity window.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Submission is a client rating submission before validation.
type Submission struct {
	SubjectID   string
	Identity    string
	Score       int
	Comment     string
	PhotoRefs   []string
	SubmittedAt time.Time
}

// ClientMeta carries request-level client metadata used by the
// suspicious-activity heuristics and recorded on security events.
type ClientMeta struct {
	Description string `json:"description"` // client-reported description string
	RemoteAddr  string `json:"remote_addr"`
}

// Record is the persisted, accepted form of a Submission. At most one
// Record per (identity, subject) pair is active at any time; an update
// in place bumps Revision and keeps the same statistics slot.
type Record struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Identity    string    `json:"identity"`
	Score       int       `json:"score"`
	Comment     string    `json:"comment,omitempty"`
	PhotoRefs   []string  `json:"photo_refs,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	AcceptedAt  time.Time `json:"accepted_at"`
	Revision    int       `json:"revision"`
}

// Subject is a rateable entity. CreatedAt feeds the pre-seeded-vote
// heuristic.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Trend classifies the recent direction of a subject's ratings.
type Trend string

// Trend classifications.
const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Statistics is the derived per-subject view maintained by the
// aggregation engine. It is a cache: always rebuildable from the full
// Record set for the subject.
type Statistics struct {
	SubjectID    string    `json:"subject_id"`
	Count        int       `json:"count"`
	Mean         float64   `json:"mean"` // rounded to 1 decimal
	StdDev       float64   `json:"std_dev"`
	Median       float64   `json:"median"`
	Mode         int       `json:"mode"`
	Distribution [5]int    `json:"distribution"` // index 0 holds score 1
	Confidence   float64   `json:"confidence"`
	Trend        Trend     `json:"trend"`
	LastUpdated  time.Time `json:"last_updated"`
}

// SecurityEvent records a flagged submission for later audit.
type SecurityEvent struct {
	SubjectID string     `json:"subject_id"`
	Identity  string     `json:"identity"`
	Reason    string     `json:"reason"`
	Client    ClientMeta `json:"client"`
	At        time.Time  `json:"at"`
}
