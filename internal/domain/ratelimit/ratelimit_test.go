package ratelimit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	ratelimit "github.com/deborabastos/esplanada-ratings/internal/domain/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

const action = "rating_submit"

func TestInMemoryLimiter(t *testing.T) {
	Convey("Given a limiter with a small identity limit", t, func() {
		base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		l := ratelimit.NewInMemoryLimiter(
			ratelimit.WithLimit(3),
			ratelimit.WithWindow(time.Hour),
			ratelimit.WithBlockDuration(5*time.Minute),
			ratelimit.WithGlobalMultiplier(10),
		)
		ctx := context.Background()

		Convey("When an identity stays under the limit", func() {
			var last ratelimit.Decision
			for i := 0; i < 3; i++ {
				last = l.CheckAndRecord(ctx, "id-1", action, base.Add(time.Duration(i)*time.Minute))
				So(last.Allowed, ShouldBeTrue)
			}

			Convey("Then the remaining allowance counts down", func() {
				So(last.Remaining, ShouldEqual, 0)
			})
		})

		Convey("When an identity exceeds the limit", func() {
			for i := 0; i < 3; i++ {
				So(l.CheckAndRecord(ctx, "id-1", action, base).Allowed, ShouldBeTrue)
			}
			d := l.CheckAndRecord(ctx, "id-1", action, base.Add(time.Minute))

			Convey("Then the excess attempt is denied and blocked", func() {
				So(d.Allowed, ShouldBeFalse)
				So(d.Scope, ShouldEqual, ratelimit.ScopeIdentity)
				So(d.RetryAfter, ShouldEqual, 5*time.Minute)
			})

			Convey("Then attempts during the block stay denied with a shrinking hint", func() {
				d2 := l.CheckAndRecord(ctx, "id-1", action, base.Add(3*time.Minute))
				So(d2.Allowed, ShouldBeFalse)
				So(d2.RetryAfter, ShouldEqual, 3*time.Minute)
			})

			Convey("Then other identities are unaffected", func() {
				So(l.CheckAndRecord(ctx, "id-2", action, base.Add(time.Minute)).Allowed, ShouldBeTrue)
			})

			Convey("Then the window reset clears the counter after the block", func() {
				d3 := l.CheckAndRecord(ctx, "id-1", action, base.Add(61*time.Minute))
				So(d3.Allowed, ShouldBeTrue)
				So(d3.Remaining, ShouldEqual, 2)
			})
		})

		Convey("When the window lapses between attempts", func() {
			for i := 0; i < 3; i++ {
				So(l.CheckAndRecord(ctx, "id-1", action, base).Allowed, ShouldBeTrue)
			}
			d := l.CheckAndRecord(ctx, "id-1", action, base.Add(time.Hour))

			Convey("Then the counter has reset without ever blocking", func() {
				So(d.Allowed, ShouldBeTrue)
				So(d.Remaining, ShouldEqual, 2)
			})
		})

		Convey("When the global ceiling is reached", func() {
			// 3 * 10 across many identities fills the global window.
			for i := 0; i < 30; i++ {
				key := fmt.Sprintf("id-%d", i/3)
				So(l.CheckAndRecord(ctx, key, action, base).Allowed, ShouldBeTrue)
			}
			d := l.CheckAndRecord(ctx, "id-fresh", action, base)

			Convey("Then a fresh identity is denied at global scope", func() {
				So(d.Allowed, ShouldBeFalse)
				So(d.Scope, ShouldEqual, ratelimit.ScopeGlobal)
				So(d.RetryAfter, ShouldEqual, 5*time.Minute)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			d := l.CheckAndRecord(cctx, "id-1", action, base)

			Convey("Then the check fails closed", func() {
				So(d.Allowed, ShouldBeFalse)
				So(d.RetryAfter, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When different actions share an identity", func() {
			for i := 0; i < 3; i++ {
				So(l.CheckAndRecord(ctx, "id-1", action, base).Allowed, ShouldBeTrue)
			}
			d := l.CheckAndRecord(ctx, "id-1", "other_action", base)

			Convey("Then each action has its own window", func() {
				So(d.Allowed, ShouldBeTrue)
			})
		})

		Convey("When entries accumulate past the GC threshold", func() {
			small := ratelimit.NewInMemoryLimiter(
				ratelimit.WithLimit(3),
				ratelimit.WithWindow(time.Hour),
				ratelimit.WithBlockDuration(5*time.Minute),
				ratelimit.WithGCThreshold(10),
			)
			for i := 0; i < 20; i++ {
				small.CheckAndRecord(ctx, fmt.Sprintf("id-%d", i), action, base)
			}
			// A much later attempt triggers collection of lapsed entries.
			small.CheckAndRecord(ctx, "id-late", action, base.Add(3*time.Hour))

			Convey("Then stale counters are dropped", func() {
				So(small.Size(), ShouldBeLessThan, 20)
			})
		})
	})
}
