package identity_test

import (
	"context"
	"testing"
	"time"

	identity "github.com/deborabastos/esplanada-ratings/internal/domain/identity"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func fullSignals() model.Signals {
	return model.Signals{
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64)",
		Platform:     "Linux x86_64",
		Language:     "pt-BR",
		Timezone:     "America/Sao_Paulo",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		ColorDepth:   24,
		CanvasDigest: "c4nv4sd1g3st",
		AudioDigest:  "aud10d1g3st",
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a generator with a fixed clock", t, func() {
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		g := identity.NewGenerator(
			identity.WithClock(func() time.Time { return now }),
		)
		ctx := context.Background()

		Convey("When all signals are present", func() {
			id, err := g.Generate(ctx, fullSignals())

			Convey("Then it should produce a high-confidence identity", func() {
				So(err, ShouldBeNil)
				So(id.Digest, ShouldHaveLength, 64)
				So(id.Confidence, ShouldEqual, model.ConfidenceHigh)
				So(id.ExpiresAt, ShouldResemble, now.Add(30*24*time.Hour))
			})

			Convey("Then the digest should be stable for identical signals", func() {
				again, err := g.Generate(ctx, fullSignals())
				So(err, ShouldBeNil)
				So(again.Digest, ShouldEqual, id.Digest)
			})

			Convey("Then a different client should get a different digest", func() {
				other := fullSignals()
				other.CanvasDigest = "somethingelse"
				got, err := g.Generate(ctx, other)
				So(err, ShouldBeNil)
				So(got.Digest, ShouldNotEqual, id.Digest)
			})
		})

		Convey("When only some collectors succeed", func() {
			s := fullSignals()
			s.CanvasDigest = ""
			s.AudioDigest = ""
			id, err := g.Generate(ctx, s)

			Convey("Then the identity is still high confidence", func() {
				So(err, ShouldBeNil)
				So(id.Confidence, ShouldEqual, model.ConfidenceHigh)
			})

			Convey("Then it differs from the full-signal digest", func() {
				full, err := g.Generate(ctx, fullSignals())
				So(err, ShouldBeNil)
				So(id.Digest, ShouldNotEqual, full.Digest)
			})
		})

		Convey("When every collector fails", func() {
			s := model.Signals{
				UserAgent:    "Mozilla/5.0",
				ScreenWidth:  800,
				ScreenHeight: 600,
			}
			id, err := g.Generate(ctx, s)

			Convey("Then the fallback identity is low confidence", func() {
				So(err, ShouldBeNil)
				So(id.Digest, ShouldHaveLength, 64)
				So(id.Confidence, ShouldEqual, model.ConfidenceLow)
			})

			Convey("Then the fallback is stable within the same day", func() {
				again, err := g.Generate(ctx, s)
				So(err, ShouldBeNil)
				So(again.Digest, ShouldEqual, id.Digest)
			})
		})

		Convey("When the client offers nothing at all", func() {
			_, err := g.Generate(ctx, model.Signals{})

			Convey("Then generation fails", func() {
				So(err, ShouldEqual, identity.ErrIdentityUnavailable)
			})
		})

		Convey("When a single navigator field is present", func() {
			s := model.Signals{Platform: "Linux x86_64", UserAgent: "Mozilla/5.0"}
			id, err := g.Generate(ctx, s)

			Convey("Then the navigator collector refuses and fallback applies", func() {
				So(err, ShouldBeNil)
				So(id.Confidence, ShouldEqual, model.ConfidenceLow)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := g.Generate(cctx, fullSignals())

			Convey("Then generation fails with the context error", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})

		Convey("When a custom TTL is configured", func() {
			g := identity.NewGenerator(
				identity.WithTTL(time.Hour),
				identity.WithClock(func() time.Time { return now }),
			)
			id, err := g.Generate(ctx, fullSignals())

			Convey("Then the expiry honours it", func() {
				So(err, ShouldBeNil)
				So(id.ExpiresAt, ShouldResemble, now.Add(time.Hour))
			})
		})
	})
}
