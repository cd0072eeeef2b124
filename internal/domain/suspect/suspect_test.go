package suspect_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	suspect "github.com/deborabastos/esplanada-ratings/internal/domain/suspect"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeSubjects serves a fixed subject creation time.
type fakeSubjects struct {
	createdAt time.Time
	ok        bool
	err       error
}

func (f *fakeSubjects) SubjectCreatedAt(ctx context.Context, subjectID string) (time.Time, bool, error) {
	return f.createdAt, f.ok, f.err
}

// captureEmitter records emitted security events.
type captureEmitter struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (c *captureEmitter) Emit(ctx context.Context, ev model.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestDetector(t *testing.T) {
	Convey("Given a detector over a long-established subject", t, func() {
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		subjects := &fakeSubjects{createdAt: now.Add(-72 * time.Hour), ok: true}
		emitter := &captureEmitter{}
		d := suspect.NewDetector(subjects, emitter)
		ctx := context.Background()

		sub := model.Submission{
			SubjectID:   "subj-1",
			Identity:    "id-1",
			Score:       4,
			SubmittedAt: now,
		}

		Convey("When the client description carries an automation marker", func() {
			meta := model.ClientMeta{Description: "Mozilla/5.0 HeadlessChrome/119.0"}
			v := d.Evaluate(ctx, sub, meta, now)

			Convey("Then the submission is flagged and the event emitted", func() {
				So(v.Flagged, ShouldBeTrue)
				So(v.Reason, ShouldEqual, suspect.ReasonAutomation)
				So(emitter.count(), ShouldEqual, 1)
				So(emitter.events[0].SubjectID, ShouldEqual, "subj-1")
				So(emitter.events[0].Reason, ShouldEqual, suspect.ReasonAutomation)
			})
		})

		Convey("When a plain browser submits at a human pace", func() {
			meta := model.ClientMeta{Description: "Mozilla/5.0 (X11; Linux x86_64) Firefox/131.0"}
			v := d.Evaluate(ctx, sub, meta, now)

			Convey("Then nothing is flagged", func() {
				So(v.Flagged, ShouldBeFalse)
				So(emitter.count(), ShouldEqual, 0)
			})
		})

		Convey("When the same identity submits twice inside the minimum interval", func() {
			meta := model.ClientMeta{Description: "Mozilla/5.0 Firefox/131.0"}
			first := d.Evaluate(ctx, sub, meta, now)
			second := d.Evaluate(ctx, sub, meta, now.Add(400*time.Millisecond))

			Convey("Then the burst is flagged", func() {
				So(first.Flagged, ShouldBeFalse)
				So(second.Flagged, ShouldBeTrue)
				So(second.Reason, ShouldEqual, suspect.ReasonBurst)
			})

			Convey("Then a later attempt outside the interval passes again", func() {
				third := d.Evaluate(ctx, sub, meta, now.Add(5*time.Second))
				So(third.Flagged, ShouldBeFalse)
			})
		})

		Convey("When the submission lands within the subject seeding window", func() {
			seeded := &fakeSubjects{createdAt: now.Add(-500 * time.Millisecond), ok: true}
			d := suspect.NewDetector(seeded, emitter)
			meta := model.ClientMeta{Description: "Mozilla/5.0 Firefox/131.0"}
			v := d.Evaluate(ctx, sub, meta, now)

			Convey("Then the seeding heuristic fires", func() {
				So(v.Flagged, ShouldBeTrue)
				So(v.Reason, ShouldEqual, suspect.ReasonSeeded)
			})
		})

		Convey("When the subject creation time is unknown", func() {
			d := suspect.NewDetector(&fakeSubjects{}, emitter)
			meta := model.ClientMeta{Description: "Mozilla/5.0 Firefox/131.0"}
			v := d.Evaluate(ctx, sub, meta, now)

			Convey("Then the seeding heuristic stays quiet", func() {
				So(v.Flagged, ShouldBeFalse)
			})
		})

		Convey("When custom markers are configured", func() {
			d := suspect.NewDetector(subjects, emitter, suspect.WithMarkers([]string{"acme-robot"}))
			v := d.Evaluate(ctx, sub, model.ClientMeta{Description: "acme-robot/2.1"}, now)
			clean := d.Evaluate(ctx, sub, model.ClientMeta{Description: "HeadlessChrome"}, now.Add(time.Minute))

			Convey("Then only the custom set matches", func() {
				So(v.Flagged, ShouldBeTrue)
				So(v.Reason, ShouldEqual, suspect.ReasonAutomation)
				So(clean.Flagged, ShouldBeFalse)
			})
		})

		Convey("When a wider seeding window is configured", func() {
			seeded := &fakeSubjects{createdAt: now.Add(-30 * time.Second), ok: true}
			d := suspect.NewDetector(seeded, emitter, suspect.WithSeedWindow(time.Minute))
			meta := model.ClientMeta{Description: "Mozilla/5.0 Firefox/131.0"}
			v := d.Evaluate(ctx, sub, meta, now)

			Convey("Then it applies", func() {
				So(v.Flagged, ShouldBeTrue)
				So(v.Reason, ShouldEqual, suspect.ReasonSeeded)
			})
		})
	})
}
