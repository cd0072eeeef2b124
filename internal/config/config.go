// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir is the BadgerDB directory for rating records.
	// Empty selects an in-memory store (tests, throwaway runs).
	DataDir string `koanf:"data_dir"`

	// IdentityTTLDays sets the validity window of issued identities.
	IdentityTTLDays int `koanf:"identity_ttl_days"`

	// RateLimit caps submissions per identity within one window.
	RateLimit int `koanf:"rate_limit"`

	// RateWindowMinutes is the sliding-window length.
	RateWindowMinutes int `koanf:"rate_window_minutes"`

	// RateBlockMinutes is how long an offender stays blocked after
	// exceeding a threshold, independent of window reset.
	RateBlockMinutes int `koanf:"rate_block_minutes"`

	// GlobalMultiplier scales the per-identity limit into the global
	// per-action ceiling.
	GlobalMultiplier int `koanf:"global_multiplier"`

	// UpdateCooldownHours gates the update-in-place path for an existing
	// rating by the same identity.
	UpdateCooldownHours int `koanf:"update_cooldown_hours"`

	// CommentMaxLen caps the optional comment length in characters.
	CommentMaxLen int `koanf:"comment_max_len"`

	// MaxPhotoRefs caps the number of attached photo references.
	MaxPhotoRefs int `koanf:"max_photo_refs"`

	// StalenessWindowDays rejects submissions older than this at ingestion.
	StalenessWindowDays int `koanf:"staleness_window_days"`

	// ClockSkewMinutes tolerates client clocks running ahead.
	ClockSkewMinutes int `koanf:"clock_skew_minutes"`

	// MinIntervalMS floors the interval between submissions from the same
	// client before the suspicion heuristics fire.
	MinIntervalMS int `koanf:"min_interval_ms"`

	// SeedWindowMS flags submissions landing within this window of the
	// subject's creation time.
	SeedWindowMS int `koanf:"seed_window_ms"`

	// TrendWindow is the number of most recent scores compared against the
	// all-time mean for the trend classification.
	TrendWindow int `koanf:"trend_window"`

	// TrendMargin is the mean delta beyond which a trend is not stable.
	TrendMargin float64 `koanf:"trend_margin"`

	// ConfidenceTarget is the rating count at which confidence reaches 1.0.
	ConfidenceTarget int `koanf:"confidence_target"`

	// BroadcastQueueSize bounds the statistics broadcast queue.
	BroadcastQueueSize int `koanf:"broadcast_queue_size"`

	// BroadcastWorkers sets the number of broadcast dispatcher goroutines.
	BroadcastWorkers int `koanf:"broadcast_workers"`

	// SubscriberBuffer sets the per-subscriber channel buffer.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// CheckTimeoutMS bounds rate-limit and duplicate-guard checks.
	// A timeout is a deny, never an allow.
	CheckTimeoutMS int `koanf:"check_timeout_ms"`
}

// New creates a Config populated with production defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DataDir:             "",
		IdentityTTLDays:     30,
		RateLimit:           10,
		RateWindowMinutes:   60,
		RateBlockMinutes:    5,
		GlobalMultiplier:    10,
		UpdateCooldownHours: 24,
		CommentMaxLen:       500,
		MaxPhotoRefs:        2,
		StalenessWindowDays: 30,
		ClockSkewMinutes:    1,
		MinIntervalMS:       1000,
		SeedWindowMS:        1000,
		TrendWindow:         10,
		TrendMargin:         0.3,
		ConfidenceTarget:    20,
		BroadcastQueueSize:  1024,
		BroadcastWorkers:    2,
		SubscriberBuffer:    16,
		CheckTimeoutMS:      500,
	}
}
