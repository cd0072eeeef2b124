// Package stats incrementally maintains per-subject rating statistics:
// mean, distribution, dispersion, median, mode, confidence and trend.
package stats

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/dedupe"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultTrendWindow      = 10
	defaultTrendMargin      = 0.3
	defaultConfidenceTarget = 20
)

// subjectState holds the running moments for one subject. Scores are
// 1..5 integers, so the histogram is a complete order statistic: median
// and mode come out of it exactly in O(1) at any scale.
type subjectState struct {
	count  int
	sum    float64
	sumSq  float64
	hist   [5]int
	recent []int // last trendWindow accepted scores, commit order
	last   time.Time
}

// Engine owns all SubjectStatistics. Single-writer-per-subject is
// enforced by the engine mutex; reads serve loosely-consistent copies.
type Engine struct {
	mu       sync.RWMutex
	subjects map[string]*subjectState

	applied          dedupe.Tracker
	trendWindow      int
	trendMargin      float64
	confidenceTarget int
	now              func() time.Time
}

// NewEngine creates an aggregation engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		subjects:         make(map[string]*subjectState),
		applied:          dedupe.NewInMemoryTracker(),
		trendWindow:      defaultTrendWindow,
		trendMargin:      defaultTrendMargin,
		confidenceTarget: defaultConfidenceTarget,
		now:              time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Apply folds one accepted rating into the subject's statistics.
// commitID must be unique per accepted commit (record id + revision);
// a repeated commitID is a no-op returning the current snapshot, which
// makes Apply idempotent under commit races. prevScore > 0 marks an
// update in place: the previous score is un-counted first and the
// rating count stays flat.
func (e *Engine) Apply(ctx context.Context, subjectID, commitID string, newScore, prevScore int) (model.Statistics, error) {
	if newScore < model.MinScore || newScore > model.MaxScore {
		return model.Statistics{}, ErrScoreOutOfRange
	}
	if prevScore != 0 && (prevScore < model.MinScore || prevScore > model.MaxScore) {
		return model.Statistics{}, ErrScoreOutOfRange
	}

	start := time.Now()
	defer func() {
		metrics.RecordAggregationLatency(float64(time.Since(start).Milliseconds()))
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied.SeenAndRecord(ctx, commitID) {
		if st, ok := e.subjects[subjectID]; ok {
			return e.snapshot(subjectID, st), nil
		}
		return model.Statistics{}, ErrUnknownSubject
	}

	st, ok := e.subjects[subjectID]
	if !ok {
		st = &subjectState{}
		e.subjects[subjectID] = st
		metrics.UpdateTrackedSubjects(len(e.subjects))
	}

	if prevScore > 0 {
		if st.hist[prevScore-1] == 0 {
			e.applied.Unrecord(ctx, commitID)
			return model.Statistics{}, ErrInconsistentUpdate
		}
		st.sum -= float64(prevScore)
		st.sumSq -= float64(prevScore * prevScore)
		st.hist[prevScore-1]--
	} else {
		st.count++
	}

	st.sum += float64(newScore)
	st.sumSq += float64(newScore * newScore)
	st.hist[newScore-1]++
	st.pushRecent(newScore, e.trendWindow)
	st.last = e.now()

	return e.snapshot(subjectID, st), nil
}

// Snapshot returns a loosely-consistent copy of a subject's statistics.
func (e *Engine) Snapshot(ctx context.Context, subjectID string) (model.Statistics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.subjects[subjectID]
	if !ok || st.count == 0 {
		return model.Statistics{}, false
	}
	return e.snapshot(subjectID, st), true
}

// Rebuild reconstructs a subject from its full record set, in acceptance
// order. The incremental state for the subject is replaced wholesale;
// this is the recovery path after a restart or a suspected divergence.
func (e *Engine) Rebuild(ctx context.Context, subjectID string, scores []int) (model.Statistics, error) {
	st := &subjectState{}
	for _, s := range scores {
		if s < model.MinScore || s > model.MaxScore {
			return model.Statistics{}, ErrScoreOutOfRange
		}
		st.count++
		st.sum += float64(s)
		st.sumSq += float64(s * s)
		st.hist[s-1]++
		st.pushRecent(s, e.trendWindow)
	}
	st.last = e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects[subjectID] = st
	metrics.UpdateTrackedSubjects(len(e.subjects))
	metrics.RecordStatisticsRebuild()

	if st.count == 0 {
		return model.Statistics{SubjectID: subjectID, Trend: model.TrendStable, LastUpdated: st.last}, nil
	}
	return e.snapshot(subjectID, st), nil
}

// SubjectCount returns the number of subjects with maintained statistics.
func (e *Engine) SubjectCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subjects)
}

// snapshot derives the full Statistics view from running state.
// Must be called with e.mu held (read or write).
func (e *Engine) snapshot(subjectID string, st *subjectState) model.Statistics {
	n := float64(st.count)
	mean := st.sum / n
	variance := st.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0 // float drift
	}

	return model.Statistics{
		SubjectID:    subjectID,
		Count:        st.count,
		Mean:         round1(mean),
		StdDev:       round2(math.Sqrt(variance)),
		Median:       median(st.hist, st.count),
		Mode:         mode(st.hist),
		Distribution: st.hist,
		Confidence:   round2(math.Min(1, n/float64(e.confidenceTarget))),
		Trend:        e.trend(st, mean),
		LastUpdated:  st.last,
	}
}

// trend compares the mean of the most recent scores against the
// all-time mean. Explicitly order-sensitive, unlike everything else here.
func (e *Engine) trend(st *subjectState, mean float64) model.Trend {
	if len(st.recent) == 0 {
		return model.TrendStable
	}
	var sum float64
	for _, s := range st.recent {
		sum += float64(s)
	}
	recentMean := sum / float64(len(st.recent))
	switch {
	case recentMean-mean > e.trendMargin:
		return model.TrendImproving
	case mean-recentMean > e.trendMargin:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// pushRecent appends a score to the bounded recent window.
func (st *subjectState) pushRecent(score, window int) {
	st.recent = append(st.recent, score)
	if len(st.recent) > window {
		st.recent = st.recent[len(st.recent)-window:]
	}
}

// median reads the exact median out of the histogram.
func median(hist [5]int, count int) float64 {
	if count == 0 {
		return 0
	}
	lo := nthScore(hist, (count+1)/2)
	if count%2 == 1 {
		return float64(lo)
	}
	hi := nthScore(hist, count/2+1)
	return float64(lo+hi) / 2
}

// nthScore returns the n-th smallest score (1-based) in the histogram.
func nthScore(hist [5]int, n int) int {
	cum := 0
	for i, c := range hist {
		cum += c
		if cum >= n {
			return i + model.MinScore
		}
	}
	return model.MaxScore
}

// mode returns the most frequent score, lowest score winning ties.
func mode(hist [5]int) int {
	best, bestCount := model.MinScore, -1
	for i, c := range hist {
		if c > bestCount {
			best, bestCount = i+model.MinScore, c
		}
	}
	return best
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
