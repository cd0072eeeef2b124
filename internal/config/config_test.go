package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	config "github.com/deborabastos/esplanada-ratings/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		t.Setenv("ESPLANADA_CONFIG", "")
		ctx := context.Background()

		// Convey re-runs this closure for every leaf branch, but t.Setenv only
		// restores at the end of the whole test, so branch-local overrides
		// would otherwise leak into sibling branches.
		Reset(func() {
			os.Unsetenv("ESPLANADA_ADDR")
			os.Unsetenv("ESPLANADA_RATE_LIMIT")
			os.Unsetenv("ESPLANADA_LOG_LEVEL")
		})

		Convey("When loading with no overrides", func() {
			cfg, err := config.Load(ctx)

			Convey("Then the defaults apply", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9080")
				So(cfg.RateLimit, ShouldEqual, 10)
				So(cfg.RateWindowMinutes, ShouldEqual, 60)
				So(cfg.RateBlockMinutes, ShouldEqual, 5)
				So(cfg.GlobalMultiplier, ShouldEqual, 10)
				So(cfg.UpdateCooldownHours, ShouldEqual, 24)
				So(cfg.CommentMaxLen, ShouldEqual, 500)
				So(cfg.MaxPhotoRefs, ShouldEqual, 2)
				So(cfg.TrendWindow, ShouldEqual, 10)
				So(cfg.ConfidenceTarget, ShouldEqual, 20)
				So(cfg.DataDir, ShouldBeEmpty)
			})
		})

		Convey("When environment variables override defaults", func() {
			t.Setenv("ESPLANADA_ADDR", ":7070")
			t.Setenv("ESPLANADA_RATE_LIMIT", "5")
			t.Setenv("ESPLANADA_LOG_LEVEL", "debug")
			cfg, err := config.Load(ctx)

			Convey("Then the overrides win", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.RateLimit, ShouldEqual, 5)
				So(cfg.LogLevel, ShouldEqual, "debug")
				// Untouched fields keep their defaults.
				So(cfg.GlobalMultiplier, ShouldEqual, 10)
			})
		})

		Convey("When a config file is provided", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			So(os.WriteFile(path, []byte("addr: \":6060\"\nupdate_cooldown_hours: 48\n"), 0o600), ShouldBeNil)
			t.Setenv("ESPLANADA_CONFIG", path)
			cfg, err := config.Load(ctx)

			Convey("Then file values layer over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
				So(cfg.UpdateCooldownHours, ShouldEqual, 48)
			})

			Convey("And environment variables beat the file", func() {
				t.Setenv("ESPLANADA_ADDR", ":5050")
				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":5050")
				So(cfg.UpdateCooldownHours, ShouldEqual, 48)
			})
		})

		Convey("When the config file is missing", func() {
			t.Setenv("ESPLANADA_CONFIG", "/nonexistent/config.yaml")
			_, err := config.Load(ctx)

			Convey("Then loading fails with the load sentinel", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
			})
		})

		Convey("When validation fails", func() {
			t.Setenv("ESPLANADA_RATE_LIMIT", "0")
			_, err := config.Load(ctx)

			Convey("Then loading fails with the invalid sentinel", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}
