package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/deborabastos/esplanada-ratings/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryTracker(t *testing.T) {
	Convey("Given a new tracker", t, func() {
		ctx := context.Background()

		Convey("When recording ids", func() {
			tr := dedupe.NewInMemoryTracker()

			Convey("And the id is new", func() {
				seen := tr.SeenAndRecord(ctx, "rec-1#1")

				Convey("Then it should return false and record the id", func() {
					So(seen, ShouldBeFalse)
					So(tr.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id was already recorded", func() {
				tr.SeenAndRecord(ctx, "rec-1#1")
				seen := tr.SeenAndRecord(ctx, "rec-1#1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(tr.Size(), ShouldEqual, 1)
				})
			})

			Convey("And revisions of the same record are distinct ids", func() {
				So(tr.SeenAndRecord(ctx, "rec-1#1"), ShouldBeFalse)
				So(tr.SeenAndRecord(ctx, "rec-1#2"), ShouldBeFalse)
				So(tr.Size(), ShouldEqual, 2)
			})
		})

		Convey("When unrecording an id", func() {
			tr := dedupe.NewInMemoryTracker()
			tr.SeenAndRecord(ctx, "rec-1#1")
			tr.Unrecord(ctx, "rec-1#1")

			Convey("Then the id can be recorded again", func() {
				So(tr.SeenAndRecord(ctx, "rec-1#1"), ShouldBeFalse)
				So(tr.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the tracker reaches its maximum size", func() {
			tr := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(5))
			for i := 0; i < 5; i++ {
				So(tr.SeenAndRecord(ctx, fmt.Sprintf("rec-%d", i)), ShouldBeFalse)
			}
			So(tr.SeenAndRecord(ctx, "rec-5"), ShouldBeFalse)

			Convey("Then the oldest id is evicted", func() {
				So(tr.Size(), ShouldEqual, 5)
				So(tr.SeenAndRecord(ctx, "rec-0"), ShouldBeFalse)
				So(tr.SeenAndRecord(ctx, "rec-5"), ShouldBeTrue)
			})
		})

		Convey("When accessed concurrently", func() {
			tr := dedupe.NewInMemoryTracker()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						tr.SeenAndRecord(ctx, fmt.Sprintf("g%d-rec-%d", g, i))
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every id is tracked exactly once", func() {
				So(tr.Size(), ShouldEqual, 800)
			})
		})
	})
}
