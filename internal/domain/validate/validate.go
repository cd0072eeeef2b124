// Package validate orchestrates the submission acceptance pipeline:
// FormatCheck -> RateLimit -> DuplicateResolve -> SuspiciousActivity ->
// TemporalBounds. Stages are named predicates run in fixed order,
// short-circuiting on the first failure.
package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/deborabastos/esplanada-ratings/internal/domain/dupguard"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/internal/domain/ratelimit"
	"github.com/deborabastos/esplanada-ratings/internal/domain/suspect"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default pipeline configuration constants.
const (
	defaultCommentMaxLen   = 500
	defaultMaxPhotoRefs    = 2
	defaultClockSkew       = time.Minute
	defaultStalenessWindow = 30 * 24 * time.Hour
	defaultCheckTimeout    = 500 * time.Millisecond

	// ActionSubmit is the rate-limited action type for rating submissions.
	ActionSubmit = "rating_submit"
)

// structValidator covers the fixed submission constraints; configurable
// bounds (comment length, photo count) are checked explicitly.
var structValidator = validator.New()

// submissionShape mirrors the fixed RatingSubmission invariants as
// validator tags.
type submissionShape struct {
	SubjectID string `validate:"required"`
	Identity  string `validate:"required"`
	Score     int    `validate:"required,min=1,max=5"`
}

// Action tells storage what an accepted submission becomes.
type Action int

// Accepted actions.
const (
	// ActionCreate stores a new active record.
	ActionCreate Action = iota
	// ActionUpdate replaces the existing active record in place.
	ActionUpdate
)

// Result carries the acceptance decision to the storage layer.
type Result struct {
	Action     Action
	ExistingID string // record replaced for ActionUpdate
	Revision   int    // revision of the record being replaced
}

// Stage is one named predicate in the pipeline. A nil return passes.
type Stage struct {
	Name  string
	Check func(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection
}

// Pipeline runs the ordered stage list against a submission.
type Pipeline struct {
	stages []Stage

	commentMaxLen   int
	maxPhotoRefs    int
	clockSkew       time.Duration
	stalenessWindow time.Duration
	checkTimeout    time.Duration
	now             func() time.Time
}

// NewPipeline builds the standard pipeline over the three guards.
func NewPipeline(limiter ratelimit.Limiter, guard *dupguard.Guard, detector *suspect.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		commentMaxLen:   defaultCommentMaxLen,
		maxPhotoRefs:    defaultMaxPhotoRefs,
		clockSkew:       defaultClockSkew,
		stalenessWindow: defaultStalenessWindow,
		checkTimeout:    defaultCheckTimeout,
		now:             time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	p.stages = []Stage{
		{Name: "format", Check: p.formatCheck},
		{Name: "rate_limit", Check: p.rateLimitCheck(limiter)},
		{Name: "duplicate", Check: p.duplicateCheck(guard)},
		{Name: "suspicious", Check: p.suspiciousCheck(detector)},
		{Name: "temporal", Check: p.temporalCheck},
	}

	return p
}

// Run evaluates all stages in order. The first failing stage wins and
// nothing later runs, so a rejected submission leaves no stray side
// effects beyond the stage that produced the decision.
func (p *Pipeline) Run(ctx context.Context, sub model.Submission, meta model.ClientMeta) (Result, *Rejection) {
	var res Result
	for _, stage := range p.stages {
		if rej := stage.Check(ctx, sub, meta, &res); rej != nil {
			metrics.RecordSubmissionRejected(string(rej.Kind))
			return Result{}, rej
		}
	}
	return res, nil
}

// Stages returns the ordered stage names, for introspection and tests.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// formatCheck enforces the RatingSubmission field invariants. It runs
// first: malformed input is rejected before any limiter or guard state
// is touched.
func (p *Pipeline) formatCheck(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection {
	if sub.Identity == "" {
		return &Rejection{Kind: KindIdentityUnavailable, Reason: "no identity attached"}
	}
	if err := structValidator.Struct(submissionShape{
		SubjectID: sub.SubjectID,
		Identity:  sub.Identity,
		Score:     sub.Score,
	}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &Rejection{Kind: KindInvalidFormat, Reason: fieldReason(verrs[0])}
		}
		return &Rejection{Kind: KindInvalidFormat, Reason: "invalid submission"}
	}
	if len([]rune(sub.Comment)) > p.commentMaxLen {
		return &Rejection{Kind: KindInvalidFormat, Reason: fmt.Sprintf("comment exceeds %d characters", p.commentMaxLen)}
	}
	if len(sub.PhotoRefs) > p.maxPhotoRefs {
		return &Rejection{Kind: KindInvalidFormat, Reason: fmt.Sprintf("at most %d photos allowed", p.maxPhotoRefs)}
	}
	if sub.SubmittedAt.IsZero() {
		return &Rejection{Kind: KindInvalidFormat, Reason: "missing submission timestamp"}
	}
	return nil
}

// fieldReason turns a validator error into user-correctable guidance.
func fieldReason(fe validator.FieldError) string {
	switch fe.Field() {
	case "Score":
		return fmt.Sprintf("score must be between %d and %d", model.MinScore, model.MaxScore)
	case "SubjectID":
		return "missing subject"
	default:
		return "invalid submission"
	}
}

// rateLimitCheck runs the sliding-window limiter under the check
// timeout. A denial or timeout carries the retry hint back to the
// client; a timeout is a deny, never an allow.
func (p *Pipeline) rateLimitCheck(limiter ratelimit.Limiter) func(context.Context, model.Submission, model.ClientMeta, *Result) *Rejection {
	return func(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection {
		cctx, cancel := context.WithTimeout(ctx, p.checkTimeout)
		defer cancel()

		d := limiter.CheckAndRecord(cctx, sub.Identity, ActionSubmit, p.now())
		if d.Allowed {
			return nil
		}
		if cctx.Err() != nil {
			metrics.RecordCheckTimeout("rate_limit")
		}
		metrics.RecordRateLimitDenial(d.Scope)
		return &Rejection{
			Kind:       KindRateLimited,
			Reason:     "submission frequency limit exceeded (" + d.Scope + ")",
			RetryAfter: d.RetryAfter,
		}
	}
}

// duplicateCheck resolves the submission against the active record for
// its (identity, subject) pair. Storage faults and timeouts fail closed
// as a transient storage rejection.
func (p *Pipeline) duplicateCheck(guard *dupguard.Guard) func(context.Context, model.Submission, model.ClientMeta, *Result) *Rejection {
	return func(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection {
		cctx, cancel := context.WithTimeout(ctx, p.checkTimeout)
		defer cancel()

		resolution, err := guard.Resolve(cctx, sub.Identity, sub.SubjectID, p.now())
		if err != nil {
			if cctx.Err() != nil {
				metrics.RecordCheckTimeout("duplicate_guard")
			}
			return &Rejection{Kind: KindStorageFailure, Reason: err.Error()}
		}

		switch resolution.Kind {
		case dupguard.KindNew:
			res.Action = ActionCreate
		case dupguard.KindUpdate:
			res.Action = ActionUpdate
			res.ExistingID = resolution.ExistingID
			res.Revision = resolution.Revision
		case dupguard.KindDenied:
			metrics.RecordDuplicateDenial()
			return &Rejection{
				Kind:       KindDuplicateActive,
				Reason:     "active rating exists within cooldown",
				RetryAfter: resolution.RetryAfter,
			}
		}
		return nil
	}
}

// suspiciousCheck runs the heuristic detector. The detector has already
// emitted the security event by the time a flag comes back.
func (p *Pipeline) suspiciousCheck(detector *suspect.Detector) func(context.Context, model.Submission, model.ClientMeta, *Result) *Rejection {
	return func(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection {
		if v := detector.Evaluate(ctx, sub, meta, p.now()); v.Flagged {
			return &Rejection{Kind: KindSuspicious, Reason: v.Reason}
		}
		return nil
	}
}

// temporalCheck enforces the staleness and future-clock bounds relative
// to ingestion time.
func (p *Pipeline) temporalCheck(ctx context.Context, sub model.Submission, meta model.ClientMeta, res *Result) *Rejection {
	now := p.now()
	if sub.SubmittedAt.After(now.Add(p.clockSkew)) {
		return &Rejection{Kind: KindInvalidFormat, Reason: "submission timestamp is in the future"}
	}
	if sub.SubmittedAt.Before(now.Add(-p.stalenessWindow)) {
		return &Rejection{Kind: KindInvalidFormat, Reason: "submission is too old to accept"}
	}
	return nil
}
