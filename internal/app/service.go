// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deborabastos/esplanada-ratings/internal/adapters/audit"
	"github.com/deborabastos/esplanada-ratings/internal/adapters/broadcast"
	"github.com/deborabastos/esplanada-ratings/internal/adapters/repository"
	"github.com/deborabastos/esplanada-ratings/internal/config"
	"github.com/deborabastos/esplanada-ratings/internal/domain/dupguard"
	"github.com/deborabastos/esplanada-ratings/internal/domain/identity"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/internal/domain/ratelimit"
	"github.com/deborabastos/esplanada-ratings/internal/domain/stats"
	"github.com/deborabastos/esplanada-ratings/internal/domain/suspect"
	"github.com/deborabastos/esplanada-ratings/internal/domain/validate"
	"github.com/deborabastos/esplanada-ratings/pkg/logger"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// lockStripes sizes the striped lock set serializing the
// validate-write-aggregate section per (identity, subject) pair.
const lockStripes = 64

// Receipt is the outcome of an accepted submission.
type Receipt struct {
	Record     model.Record     `json:"record"`
	Statistics model.Statistics `json:"statistics"`
	Updated    bool             `json:"updated"`
}

// Allowance reports whether an identity may currently rate a subject
// and what that submission would become.
type Allowance struct {
	Allowed    bool          `json:"allowed"`
	Update     bool          `json:"update"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Service wires the acceptance pipeline, storage, aggregation and
// broadcast components behind the operations the HTTP API needs.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	identities *identity.Generator
	limiter    ratelimit.Limiter
	guard      *dupguard.Guard
	detector   *suspect.Detector
	engine     *stats.Engine
	pipeline   *validate.Pipeline
	hub        broadcast.Broadcaster
	sink       *audit.Sink

	// Configuration
	cfg *config.Config
	now func() time.Time

	// Per-pair serialization of resolve -> write -> aggregate
	locks [lockStripes]sync.Mutex

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore sets a pre-built record store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBroadcaster sets a pre-built statistics broadcaster.
func WithBroadcaster(hub broadcast.Broadcaster) Option {
	return func(s *Service) {
		if hub != nil {
			s.hub = hub
		}
	}
}

// WithAuditSink sets a pre-built security event sink.
func WithAuditSink(sink *audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting rating service...")

	cfg := s.cfg
	if s.store == nil {
		store, err := repository.NewBadgerStore(repository.WithDir(cfg.DataDir))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		if cfg.DataDir == "" {
			s.logger.Info(ctx, "using in-memory store")
		} else {
			s.logger.Info(ctx, "using persistent store", logger.String("dir", cfg.DataDir))
		}
	}
	if s.sink == nil {
		s.sink = audit.NewSink(audit.WithSubscriberBuffer(cfg.SubscriberBuffer))
	}
	if s.hub == nil {
		s.hub = broadcast.NewHub(
			broadcast.WithQueueSize(cfg.BroadcastQueueSize),
			broadcast.WithWorkers(cfg.BroadcastWorkers),
			broadcast.WithSubscriberBuffer(cfg.SubscriberBuffer),
		)
	}
	if h, ok := s.hub.(*broadcast.Hub); ok {
		h.Start(ctx)
	}

	s.identities = identity.NewGenerator(
		identity.WithTTL(time.Duration(cfg.IdentityTTLDays) * 24 * time.Hour),
		identity.WithClock(s.now),
	)
	s.limiter = ratelimit.NewInMemoryLimiter(
		ratelimit.WithLimit(cfg.RateLimit),
		ratelimit.WithWindow(time.Duration(cfg.RateWindowMinutes)*time.Minute),
		ratelimit.WithBlockDuration(time.Duration(cfg.RateBlockMinutes)*time.Minute),
		ratelimit.WithGlobalMultiplier(cfg.GlobalMultiplier),
	)
	s.guard = dupguard.NewGuard(s.store,
		dupguard.WithCooldown(time.Duration(cfg.UpdateCooldownHours)*time.Hour),
	)
	s.detector = suspect.NewDetector(s.store, s.sink,
		suspect.WithMinInterval(time.Duration(cfg.MinIntervalMS)*time.Millisecond),
		suspect.WithSeedWindow(time.Duration(cfg.SeedWindowMS)*time.Millisecond),
	)
	s.engine = stats.NewEngine(
		stats.WithTrendWindow(cfg.TrendWindow),
		stats.WithTrendMargin(cfg.TrendMargin),
		stats.WithConfidenceTarget(cfg.ConfidenceTarget),
		stats.WithClock(s.now),
	)
	s.pipeline = validate.NewPipeline(s.limiter, s.guard, s.detector,
		validate.WithCommentMaxLen(cfg.CommentMaxLen),
		validate.WithMaxPhotoRefs(cfg.MaxPhotoRefs),
		validate.WithClockSkew(time.Duration(cfg.ClockSkewMinutes)*time.Minute),
		validate.WithStalenessWindow(time.Duration(cfg.StalenessWindowDays)*24*time.Hour),
		validate.WithCheckTimeout(time.Duration(cfg.CheckTimeoutMS)*time.Millisecond),
		validate.WithClock(s.now),
	)

	if err := s.rebuildAll(ctx); err != nil {
		return err
	}

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("rateLimit", cfg.RateLimit),
		logger.Int("globalMultiplier", cfg.GlobalMultiplier),
		logger.Int("broadcastQueueSize", cfg.BroadcastQueueSize),
	)

	return nil
}

// rebuildAll replays stored scores into the aggregation engine so
// statistics survive restarts without re-running acceptance checks.
func (s *Service) rebuildAll(ctx context.Context) error {
	subjects, err := s.store.Subjects(ctx)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	for _, sub := range subjects {
		scores, err := s.store.SubjectScores(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("load scores for %s: %w", sub.ID, err)
		}
		if _, err := s.engine.Rebuild(ctx, sub.ID, scores); err != nil {
			return fmt.Errorf("rebuild %s: %w", sub.ID, err)
		}
	}
	metrics.UpdateTrackedSubjects(s.engine.SubjectCount())
	if len(subjects) > 0 {
		s.logger.Info(ctx, "statistics rebuilt", logger.Int("subjects", len(subjects)))
	}
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping rating service...")

	if s.hub != nil {
		_ = s.hub.Close()
	}
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "rating service stopped")
}

// ClientIdentity derives a stable identity from browser signals.
func (s *Service) ClientIdentity(ctx context.Context, signals model.Signals) (model.Identity, error) {
	if !s.running() {
		return model.Identity{}, ErrNotStarted
	}
	return s.identities.Generate(ctx, signals)
}

// CreateSubject registers a rateable subject. Registration is
// idempotent; the first creation time wins.
func (s *Service) CreateSubject(ctx context.Context, id, name string) (model.Subject, error) {
	if !s.running() {
		return model.Subject{}, ErrNotStarted
	}
	if id == "" {
		return model.Subject{}, ErrInvalidSubject
	}

	sub := model.Subject{ID: id, Name: name, CreatedAt: s.now()}
	if err := s.store.EnsureSubject(ctx, sub); err != nil {
		return model.Subject{}, fmt.Errorf("register subject: %w", err)
	}
	if createdAt, ok, err := s.store.SubjectCreatedAt(ctx, id); err == nil && ok {
		sub.CreatedAt = createdAt
	}
	metrics.UpdateTrackedSubjects(s.engine.SubjectCount())
	return sub, nil
}

// SubmitRating runs a submission through the acceptance pipeline,
// persists it and folds it into the subject's statistics. A returned
// *validate.Rejection explains a refused submission; any other error is
// an internal fault.
func (s *Service) SubmitRating(ctx context.Context, sub model.Submission, meta model.ClientMeta) (Receipt, error) {
	if !s.running() {
		return Receipt{}, ErrNotStarted
	}

	start := s.now()
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = start
	}

	if _, ok, err := s.store.SubjectCreatedAt(ctx, sub.SubjectID); err != nil {
		return Receipt{}, &validate.Rejection{Kind: validate.KindStorageFailure, Reason: "subject lookup failed"}
	} else if !ok {
		return Receipt{}, &validate.Rejection{Kind: validate.KindInvalidFormat, Reason: "unknown subject"}
	}

	lock := s.stripe(sub.Identity, sub.SubjectID)
	lock.Lock()

	res, rej := s.pipeline.Run(ctx, sub, meta)
	if rej != nil {
		lock.Unlock()
		return Receipt{}, rej
	}

	receipt, err := s.commit(ctx, sub, res)
	lock.Unlock()
	if err != nil {
		return Receipt{}, err
	}

	metrics.RecordAggregationLatency(float64(time.Since(start).Milliseconds()))

	// Published outside the stripe lock. Payloads are full snapshots,
	// so a dropped or reordered update is healed by the next one.
	if s.hub.Publish(ctx, broadcast.Update{SubjectID: sub.SubjectID, Statistics: receipt.Statistics}) {
		metrics.UpdateBroadcastQueueSize(s.hub.Len())
	}

	return receipt, nil
}

// commit persists the accepted submission and applies it to the
// aggregation engine. Caller holds the stripe lock.
func (s *Service) commit(ctx context.Context, sub model.Submission, res validate.Result) (Receipt, error) {
	now := s.now()

	if res.Action == validate.ActionUpdate {
		prev, err := s.store.Get(ctx, res.ExistingID)
		if err != nil {
			return Receipt{}, fmt.Errorf("load record %s: %w", res.ExistingID, err)
		}

		rec := prev
		rec.Score = sub.Score
		rec.Comment = sub.Comment
		rec.PhotoRefs = sub.PhotoRefs
		rec.SubmittedAt = sub.SubmittedAt
		rec.AcceptedAt = now
		rec.Revision = prev.Revision + 1

		if err := s.store.Replace(ctx, rec); err != nil {
			return Receipt{}, fmt.Errorf("replace record %s: %w", rec.ID, err)
		}

		st, err := s.engine.Apply(ctx, sub.SubjectID, commitID(rec.ID, rec.Revision), rec.Score, prev.Score)
		if err != nil {
			return Receipt{}, fmt.Errorf("apply update: %w", err)
		}

		metrics.RecordSubmissionUpdated()
		s.logger.Debug(ctx, "rating updated",
			logger.String("subject", rec.SubjectID),
			logger.String("record", rec.ID),
			logger.Int("revision", rec.Revision),
		)
		return Receipt{Record: rec, Statistics: st, Updated: true}, nil
	}

	rec := model.Record{
		ID:          uuid.NewString(),
		SubjectID:   sub.SubjectID,
		Identity:    sub.Identity,
		Score:       sub.Score,
		Comment:     sub.Comment,
		PhotoRefs:   sub.PhotoRefs,
		SubmittedAt: sub.SubmittedAt,
		AcceptedAt:  now,
		Revision:    1,
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return Receipt{}, fmt.Errorf("store record: %w", err)
	}

	st, err := s.engine.Apply(ctx, sub.SubjectID, commitID(rec.ID, rec.Revision), rec.Score, 0)
	if err != nil {
		return Receipt{}, fmt.Errorf("apply rating: %w", err)
	}

	metrics.RecordSubmissionAccepted()
	s.logger.Debug(ctx, "rating accepted",
		logger.String("subject", rec.SubjectID),
		logger.String("record", rec.ID),
		logger.Int("score", rec.Score),
	)
	return Receipt{Record: rec, Statistics: st}, nil
}

// CanRate reports whether the identity may currently rate the subject,
// without consuming rate limit budget or recording anything.
func (s *Service) CanRate(ctx context.Context, identityDigest, subjectID string) (Allowance, error) {
	if !s.running() {
		return Allowance{}, ErrNotStarted
	}

	resolution, err := s.guard.Resolve(ctx, identityDigest, subjectID, s.now())
	if err != nil {
		return Allowance{}, fmt.Errorf("resolve: %w", err)
	}

	switch resolution.Kind {
	case dupguard.KindUpdate:
		return Allowance{Allowed: true, Update: true}, nil
	case dupguard.KindDenied:
		return Allowance{RetryAfter: resolution.RetryAfter}, nil
	default:
		return Allowance{Allowed: true}, nil
	}
}

// SubjectStatistics returns the current aggregate for a subject. A
// registered subject with no ratings yields an empty aggregate.
func (s *Service) SubjectStatistics(ctx context.Context, subjectID string) (model.Statistics, error) {
	if !s.running() {
		return model.Statistics{}, ErrNotStarted
	}

	if st, ok := s.engine.Snapshot(ctx, subjectID); ok {
		return st, nil
	}

	_, ok, err := s.store.SubjectCreatedAt(ctx, subjectID)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("subject lookup: %w", err)
	}
	if !ok {
		return model.Statistics{}, ErrUnknownSubject
	}
	return model.Statistics{SubjectID: subjectID, Trend: model.TrendStable, LastUpdated: s.now()}, nil
}

// RebuildSubject recomputes a subject's statistics from storage,
// discarding the incremental state.
func (s *Service) RebuildSubject(ctx context.Context, subjectID string) (model.Statistics, error) {
	if !s.running() {
		return model.Statistics{}, ErrNotStarted
	}

	if _, ok, err := s.store.SubjectCreatedAt(ctx, subjectID); err != nil {
		return model.Statistics{}, fmt.Errorf("subject lookup: %w", err)
	} else if !ok {
		return model.Statistics{}, ErrUnknownSubject
	}

	scores, err := s.store.SubjectScores(ctx, subjectID)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("load scores: %w", err)
	}
	return s.engine.Rebuild(ctx, subjectID, scores)
}

// Subscribe attaches a named consumer to the statistics update stream.
func (s *Service) Subscribe(name string) (<-chan broadcast.Update, func()) {
	updates, cancel := s.hub.Subscribe(name, s.cfg.SubscriberBuffer)
	metrics.UpdateBroadcastSubscribers(s.hub.SubscriberCount())
	return updates, cancel
}

// SecurityEvents attaches a named consumer to the audit stream.
func (s *Service) SecurityEvents(name string) (<-chan model.SecurityEvent, func()) {
	return s.sink.Subscribe(name, s.cfg.SubscriberBuffer)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":            s.started,
		"rateLimit":          s.cfg.RateLimit,
		"globalMultiplier":   s.cfg.GlobalMultiplier,
		"broadcastQueueSize": s.cfg.BroadcastQueueSize,
	}

	if s.started {
		records := s.store.Count(ctx)
		subjects := s.engine.SubjectCount()

		stats["totalRecords"] = records
		stats["trackedSubjects"] = subjects
		stats["limiterKeys"] = s.limiter.Size()
		stats["broadcastQueueLength"] = s.hub.Len()
		stats["broadcastSubscribers"] = s.hub.SubscriberCount()

		metrics.UpdateRecordsTotal(records)
		metrics.UpdateTrackedSubjects(subjects)
		metrics.UpdateBroadcastQueueSize(s.hub.Len())
		metrics.UpdateBroadcastSubscribers(s.hub.SubscriberCount())
	}

	return stats
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// stripe maps an (identity, subject) pair onto its serialization lock.
func (s *Service) stripe(identityDigest, subjectID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identityDigest))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(subjectID))
	return &s.locks[h.Sum32()%lockStripes]
}

// commitID names one accepted revision for aggregation idempotency.
func commitID(recordID string, revision int) string {
	return fmt.Sprintf("%s#%d", recordID, revision)
}
