// Package suspect flags automated or abusive submissions with
// independently disqualifying heuristics.
package suspect

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default detector configuration constants.
const (
	defaultMinInterval = time.Second
	defaultSeedWindow  = time.Second
	defaultGCThreshold = 10000
)

// Heuristic reasons recorded on security events.
const (
	ReasonAutomation = "automation_signature"
	ReasonBurst      = "submission_interval"
	ReasonSeeded     = "subject_seeding"
)

// defaultMarkers are automation fingerprints matched against the
// client-description string.
var defaultMarkers = []string{
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"electron",
	"bot",
	"crawler",
	"spider",
	"scrape",
	"curl/",
	"wget/",
	"python-requests",
	"httpclient",
}

// SubjectInfo is the read port for the pre-seeded-vote heuristic.
// ok=false means the subject's creation time is unknown.
type SubjectInfo interface {
	SubjectCreatedAt(ctx context.Context, subjectID string) (time.Time, bool, error)
}

// Emitter receives security events for audit. Emit must not block the
// caller for long; the audit sink queues internally.
type Emitter interface {
	Emit(ctx context.Context, ev model.SecurityEvent)
}

// Verdict is the outcome of an evaluation.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Detector evaluates submissions against the heuristic set. Every flag
// is emitted as a security event before the verdict is returned; a flag
// never skips logging.
type Detector struct {
	subjects SubjectInfo
	emitter  Emitter

	markers     []string
	minInterval time.Duration
	seedWindow  time.Duration
	gcThreshold int

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewDetector creates a detector with the default heuristic set.
func NewDetector(subjects SubjectInfo, emitter Emitter, opts ...Option) *Detector {
	d := &Detector{
		subjects:    subjects,
		emitter:     emitter,
		markers:     defaultMarkers,
		minInterval: defaultMinInterval,
		seedWindow:  defaultSeedWindow,
		gcThreshold: defaultGCThreshold,
		lastSeen:    make(map[string]time.Time),
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Evaluate runs all heuristics against the submission. The first match
// wins; the attempt time is recorded for the interval heuristic whether
// or not the submission is flagged.
func (d *Detector) Evaluate(ctx context.Context, sub model.Submission, meta model.ClientMeta, now time.Time) Verdict {
	if reason := d.check(ctx, sub, meta, now); reason != "" {
		metrics.RecordSuspiciousFlag(reason)
		if d.emitter != nil {
			d.emitter.Emit(ctx, model.SecurityEvent{
				SubjectID: sub.SubjectID,
				Identity:  sub.Identity,
				Reason:    reason,
				Client:    meta,
				At:        now,
			})
		}
		return Verdict{Flagged: true, Reason: reason}
	}
	return Verdict{}
}

func (d *Detector) check(ctx context.Context, sub model.Submission, meta model.ClientMeta, now time.Time) string {
	if d.matchAutomation(meta.Description) {
		d.touch(sub.Identity, now)
		return ReasonAutomation
	}

	if d.tooSoon(sub.Identity, now) {
		return ReasonBurst
	}

	if createdAt, ok, err := d.subjects.SubjectCreatedAt(ctx, sub.SubjectID); err == nil && ok {
		delta := sub.SubmittedAt.Sub(createdAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= d.seedWindow {
			return ReasonSeeded
		}
	}

	return ""
}

// matchAutomation scans the client-description string for known
// automation markers.
func (d *Detector) matchAutomation(description string) bool {
	desc := strings.ToLower(description)
	for _, marker := range d.markers {
		if strings.Contains(desc, marker) {
			return true
		}
	}
	return false
}

// tooSoon records the attempt and reports whether the previous attempt
// by the same identity was under the interval floor.
func (d *Detector) tooSoon(identityDigest string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.lastSeen) > d.gcThreshold {
		for k, t := range d.lastSeen {
			if now.Sub(t) > d.minInterval*100 {
				delete(d.lastSeen, k)
			}
		}
	}

	last, seen := d.lastSeen[identityDigest]
	d.lastSeen[identityDigest] = now
	return seen && now.Sub(last) < d.minInterval
}

// touch records the attempt time without evaluating the interval.
func (d *Detector) touch(identityDigest string, now time.Time) {
	d.mu.Lock()
	d.lastSeen[identityDigest] = now
	d.mu.Unlock()
}
