package stats

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrScoreOutOfRange    = errors.New("score out of range")
	ErrUnknownSubject     = errors.New("unknown subject")
	ErrInconsistentUpdate = errors.New("update un-counts a score the subject never had")
)
