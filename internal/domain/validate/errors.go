package validate

import (
	"fmt"
	"time"
)

// Kind enumerates the rejection taxonomy. Values double as metric
// labels and API error codes.
type Kind string

// Rejection kinds.
const (
	// KindInvalidFormat - a field constraint was violated; the user can
	// correct the input and resubmit.
	KindInvalidFormat Kind = "invalid_format"
	// KindRateLimited - temporary; carries RetryAfter, client backs off.
	KindRateLimited Kind = "rate_limited"
	// KindDuplicateActive - not retryable until the cooldown elapses.
	KindDuplicateActive Kind = "duplicate_active"
	// KindSuspicious - rejected and logged; no retry guidance is given
	// to avoid aiding evasion.
	KindSuspicious Kind = "suspicious_activity"
	// KindIdentityUnavailable - identity generation failed outright.
	KindIdentityUnavailable Kind = "identity_unavailable"
	// KindStorageFailure - transient infra fault; the caller retries
	// with backoff.
	KindStorageFailure Kind = "storage_failure"
)

// Rejection is the single typed result of any pipeline-stage failure.
type Rejection struct {
	Kind       Kind
	Reason     string        // internal detail for logs, not shown verbatim to users
	RetryAfter time.Duration // positive for rate-limit and cooldown denials
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Reason != "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
	}
	return string(r.Kind)
}

// Message returns user-facing guidance. InvalidFormat and the two
// retryable kinds are specific and actionable; SuspiciousActivity and
// IdentityUnavailable stay deliberately generic.
func (r *Rejection) Message() string {
	switch r.Kind {
	case KindInvalidFormat:
		return r.Reason
	case KindRateLimited:
		return "submission limit reached, please wait before rating again"
	case KindDuplicateActive:
		return "you have already rated this restaurant, your rating can be updated later"
	case KindStorageFailure:
		return "temporary error, please retry in a moment"
	default:
		// suspicious_activity, identity_unavailable
		return "your submission could not be accepted, please try again later"
	}
}
