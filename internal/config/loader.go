package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if ESPLANADA_CONFIG is set
//  3. env (prefix ESPLANADA_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("ESPLANADA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: ESPLANADA_ADDR, ESPLANADA_RATE_LIMIT, ...
	// Map env keys like ESPLANADA_RATE_LIMIT -> rate_limit (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ESPLANADA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "esplanada_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Basic validation
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.RateLimit < 1 || cfg.GlobalMultiplier < 1 {
		return nil, fmt.Errorf("%w: rate_limit and global_multiplier must be positive", ErrInvalidConfig)
	}
	if cfg.ClockSkewMinutes < 0 || cfg.StalenessWindowDays < 1 {
		return nil, fmt.Errorf("%w: invalid temporal bounds", ErrInvalidConfig)
	}
	return &cfg, nil
}
