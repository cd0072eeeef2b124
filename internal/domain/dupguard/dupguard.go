// Package dupguard enforces at-most-one-active-rating per identity per
// subject, with a cooldown-gated update path.
package dupguard

import (
	"context"
	"fmt"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
)

// Default guard configuration constants.
const (
	defaultCooldown = 24 * time.Hour
)

// Lookup is the read port the guard needs from the record store.
// ok=false means no active record exists for the pair.
type Lookup interface {
	Active(ctx context.Context, identityDigest, subjectID string) (model.Record, bool, error)
}

// Kind classifies a resolution.
type Kind int

// Resolution kinds.
const (
	// KindNew means no active record exists; a create is allowed.
	KindNew Kind = iota
	// KindUpdate means the cooldown has elapsed; the existing record is
	// replaced in place, not counted as a second vote.
	KindUpdate
	// KindDenied means the cooldown has not elapsed.
	KindDenied
)

// Resolution is the outcome of resolving a submission against the
// existing active record for its (identity, subject) pair.
type Resolution struct {
	Kind       Kind
	ExistingID string        // set for KindUpdate
	Revision   int           // revision of the record being replaced
	RetryAfter time.Duration // positive for KindDenied
}

// Guard resolves submissions against the active-record index.
type Guard struct {
	lookup   Lookup
	cooldown time.Duration
}

// NewGuard creates a guard over the given lookup.
func NewGuard(lookup Lookup, opts ...Option) *Guard {
	g := &Guard{
		lookup:   lookup,
		cooldown: defaultCooldown,
	}

	// Apply all options
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Resolve looks up the most recent active record for (identity, subject).
// Lookup failures propagate; the caller treats them as a denial, never an
// allow.
func (g *Guard) Resolve(ctx context.Context, identityDigest, subjectID string, now time.Time) (Resolution, error) {
	existing, ok, err := g.lookup.Active(ctx, identityDigest, subjectID)
	if err != nil {
		return Resolution{}, fmt.Errorf("active record lookup: %w", err)
	}
	if !ok {
		return Resolution{Kind: KindNew}, nil
	}

	elapsed := now.Sub(existing.AcceptedAt)
	if elapsed >= g.cooldown {
		return Resolution{
			Kind:       KindUpdate,
			ExistingID: existing.ID,
			Revision:   existing.Revision,
		}, nil
	}

	return Resolution{
		Kind:       KindDenied,
		RetryAfter: g.cooldown - elapsed,
	}, nil
}

// Cooldown returns the configured cooldown period.
func (g *Guard) Cooldown() time.Duration {
	return g.cooldown
}
