package identity

import "errors"

// Sentinel kinds for identity errors.
var (
	// ErrIdentityUnavailable means every collector and the minimal
	// fallback failed; callers must refuse actions requiring identity.
	ErrIdentityUnavailable = errors.New("identity unavailable")
)
