// Package identity derives stable pseudonymous client identifiers from
// weak, independently-optional browser signals.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default generator configuration constants.
const (
	defaultTTL = 30 * 24 * time.Hour
)

// Generator composes collector outputs into a one-way digest.
type Generator struct {
	collectors []Collector
	ttl        time.Duration
	now        func() time.Time
}

// NewGenerator creates a generator with the standard collector set.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		collectors: []Collector{
			navigatorCollector{},
			canvasCollector{},
			audioCollector{},
		},
		ttl: defaultTTL,
		now: time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate derives an identity from the given signals. Collectors fail
// independently; partial failure falls back to whatever succeeded. When
// every collector fails, a minimal signal set produces a low-confidence
// identity. Only a client offering nothing at all yields
// ErrIdentityUnavailable.
func (g *Generator) Generate(ctx context.Context, s model.Signals) (model.Identity, error) {
	select {
	case <-ctx.Done():
		return model.Identity{}, ctx.Err()
	default:
	}

	var parts []string
	for _, c := range g.collectors {
		if v, ok := c.Collect(s); ok {
			parts = append(parts, c.Name()+"="+v)
		}
	}

	confidence := model.ConfidenceHigh
	if len(parts) == 0 {
		parts = g.minimalSignals(s)
		if len(parts) == 0 {
			return model.Identity{}, ErrIdentityUnavailable
		}
		confidence = model.ConfidenceLow
		metrics.RecordIdentityFallback()
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	metrics.RecordIdentityIssued()

	return model.Identity{
		Digest:     hex.EncodeToString(sum[:]),
		Confidence: confidence,
		ExpiresAt:  g.now().Add(g.ttl),
	}, nil
}

// minimalSignals is the last-resort signal set: user agent, screen size,
// and a day-granular time bucket so the digest stays stable across a
// session without becoming a permanent tracker.
func (g *Generator) minimalSignals(s model.Signals) []string {
	var parts []string
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		parts = append(parts, "ua="+ua)
	}
	if s.ScreenWidth > 0 && s.ScreenHeight > 0 {
		parts = append(parts, "screen="+strconv.Itoa(s.ScreenWidth)+"x"+strconv.Itoa(s.ScreenHeight))
	}
	if len(parts) == 0 {
		return nil
	}
	parts = append(parts, "day="+g.now().UTC().Format("2006-01-02"))
	return parts
}
