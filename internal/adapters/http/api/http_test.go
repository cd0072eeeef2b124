package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	broadcast "github.com/deborabastos/esplanada-ratings/internal/adapters/broadcast"
	api "github.com/deborabastos/esplanada-ratings/internal/adapters/http/api"
	service "github.com/deborabastos/esplanada-ratings/internal/app"
	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	validate "github.com/deborabastos/esplanada-ratings/internal/domain/validate"
	"github.com/deborabastos/esplanada-ratings/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeService provides canned responses for the handler layer.
type fakeService struct {
	identity   model.Identity
	identityFn func() (model.Identity, error)

	receipt  service.Receipt
	submitFn func() (service.Receipt, error)

	allowance service.Allowance
	stats     model.Statistics
	statsErr  error

	updates chan broadcast.Update
}

func (f *fakeService) ClientIdentity(ctx context.Context, signals model.Signals) (model.Identity, error) {
	if f.identityFn != nil {
		return f.identityFn()
	}
	return f.identity, nil
}

func (f *fakeService) CreateSubject(ctx context.Context, id, name string) (model.Subject, error) {
	return model.Subject{ID: id, Name: name, CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeService) SubmitRating(ctx context.Context, sub model.Submission, meta model.ClientMeta) (service.Receipt, error) {
	if f.submitFn != nil {
		return f.submitFn()
	}
	return f.receipt, nil
}

func (f *fakeService) CanRate(ctx context.Context, identityDigest, subjectID string) (service.Allowance, error) {
	return f.allowance, nil
}

func (f *fakeService) SubjectStatistics(ctx context.Context, subjectID string) (model.Statistics, error) {
	return f.stats, f.statsErr
}

func (f *fakeService) RebuildSubject(ctx context.Context, subjectID string) (model.Statistics, error) {
	return f.stats, f.statsErr
}

func (f *fakeService) Subscribe(name string) (<-chan broadcast.Update, func()) {
	return f.updates, func() {}
}

func (f *fakeService) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestServer(f *fakeService) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(f, f).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func postJSON(ts *httptest.Server, path string, body any) (*http.Response, error) {
	data, _ := json.Marshal(body)
	return http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
}

func decode[T any](resp *http.Response) T {
	defer func() { _ = resp.Body.Close() }()
	var v T
	_ = json.NewDecoder(resp.Body).Decode(&v)
	return v
}

func TestRatingsEndpoints(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		f := &fakeService{
			receipt: service.Receipt{
				Record:     model.Record{ID: "rec-1", SubjectID: "subj-1", Score: 4, Revision: 1},
				Statistics: model.Statistics{SubjectID: "subj-1", Count: 1, Mean: 4.0},
			},
		}
		ts := newTestServer(f)
		defer ts.Close()

		Convey("When a rating is submitted", func() {
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      4,
			})
			So(err, ShouldBeNil)

			Convey("Then it returns 201 with the receipt", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				got := decode[service.Receipt](resp)
				So(got.Record.ID, ShouldEqual, "rec-1")
				So(got.Statistics.Count, ShouldEqual, 1)
			})
		})

		Convey("When the submission updates an existing rating", func() {
			f.receipt.Updated = true
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      3,
			})
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 200", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the body is not JSON", func() {
			resp, err := http.Post(ts.URL+"/ratings", "application/json", strings.NewReader("{nope"))
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the timestamp is malformed", func() {
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      4,
				"ts":         "yesterday",
			})
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the service rejects for rate limiting", func() {
			f.submitFn = func() (service.Receipt, error) {
				return service.Receipt{}, &validate.Rejection{
					Kind:       validate.KindRateLimited,
					Reason:     "submission frequency limit exceeded (identity)",
					RetryAfter: 90 * time.Second,
				}
			}
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      4,
			})
			So(err, ShouldBeNil)

			Convey("Then it returns 429 with a retry hint", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
				So(resp.Header.Get("Retry-After"), ShouldEqual, "90")
				body := decode[map[string]any](resp)
				So(body["code"], ShouldEqual, "rate_limited")
				So(body["retry_after_seconds"], ShouldEqual, 90)
			})
		})

		Convey("When the service rejects a duplicate", func() {
			f.submitFn = func() (service.Receipt, error) {
				return service.Receipt{}, &validate.Rejection{
					Kind:       validate.KindDuplicateActive,
					RetryAfter: 23 * time.Hour,
				}
			}
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      4,
			})
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 409", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When the service flags the submission", func() {
			f.submitFn = func() (service.Receipt, error) {
				return service.Receipt{}, &validate.Rejection{
					Kind:   validate.KindSuspicious,
					Reason: "automation_signature",
				}
			}
			resp, err := postJSON(ts, "/ratings", map[string]any{
				"subject_id": "subj-1",
				"identity":   "id-1",
				"score":      4,
			})
			So(err, ShouldBeNil)

			Convey("Then the response stays generic", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
				body := decode[map[string]any](resp)
				So(body["message"], ShouldNotContainSubstring, "automation")
			})
		})

		Convey("When the allowance is queried", func() {
			f.allowance = service.Allowance{Allowed: false, RetryAfter: time.Hour}
			resp, err := http.Get(ts.URL + "/ratings/allowance?subject=subj-1&identity=id-1")
			So(err, ShouldBeNil)

			Convey("Then the cooldown state comes back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				body := decode[map[string]any](resp)
				So(body["allowed"], ShouldEqual, false)
				So(body["retry_after_seconds"], ShouldEqual, 3600)
			})
		})

		Convey("When the allowance query is incomplete", func() {
			resp, err := http.Get(ts.URL + "/ratings/allowance?subject=subj-1")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unsupported method is used", func() {
			resp, err := http.Get(ts.URL + "/ratings")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestIdentityAndSubjectEndpoints(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		f := &fakeService{
			identity: model.Identity{Digest: strings.Repeat("a", 64), Confidence: model.ConfidenceHigh},
			stats:    model.Statistics{SubjectID: "subj-1", Count: 7, Mean: 3.9},
		}
		ts := newTestServer(f)
		defer ts.Close()

		Convey("When signals are posted to /identity", func() {
			resp, err := postJSON(ts, "/identity", map[string]any{
				"user_agent": "Mozilla/5.0",
				"platform":   "Linux x86_64",
				"language":   "pt-BR",
			})
			So(err, ShouldBeNil)

			Convey("Then the identity is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				got := decode[model.Identity](resp)
				So(got.Digest, ShouldEqual, f.identity.Digest)
				So(got.Confidence, ShouldEqual, model.ConfidenceHigh)
			})
		})

		Convey("When a subject is registered", func() {
			resp, err := postJSON(ts, "/subjects", map[string]any{"id": "subj-1", "name": "Tasca do Zé"})
			So(err, ShouldBeNil)

			Convey("Then it returns 201 with the subject", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				got := decode[model.Subject](resp)
				So(got.ID, ShouldEqual, "subj-1")
			})
		})

		Convey("When a subject registration misses the id", func() {
			resp, err := postJSON(ts, "/subjects", map[string]any{"name": "nameless"})
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When statistics are fetched", func() {
			resp, err := http.Get(ts.URL + "/subjects/subj-1/statistics")
			So(err, ShouldBeNil)

			Convey("Then the aggregate is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				got := decode[model.Statistics](resp)
				So(got.Count, ShouldEqual, 7)
				So(got.Mean, ShouldEqual, 3.9)
			})
		})

		Convey("When statistics are fetched for an unknown subject", func() {
			f.statsErr = service.ErrUnknownSubject
			resp, err := http.Get(ts.URL + "/subjects/ghost/statistics")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a rebuild is requested", func() {
			resp, err := http.Post(ts.URL+"/subjects/subj-1/rebuild", "application/json", nil)
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 200", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the subject path is malformed", func() {
			resp, err := http.Get(ts.URL + "/subjects/")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the stats endpoint is hit", func() {
			resp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)

			Convey("Then the service stats come back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				body := decode[map[string]any](resp)
				So(body["started"], ShouldEqual, true)
			})
		})

		Convey("When the health endpoint is hit", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it serves scrapeable metrics", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStreamEndpoint(t *testing.T) {
	Convey("Given the API with a live update channel", t, func() {
		updates := make(chan broadcast.Update, 4)
		f := &fakeService{updates: updates}
		ts := newTestServer(f)
		defer ts.Close()

		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

		Convey("When a client connects and an update is published", func() {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			if resp != nil {
				_ = resp.Body.Close()
			}
			defer func() { _ = conn.Close() }()

			updates <- broadcast.Update{
				SubjectID:  "subj-1",
				Statistics: model.Statistics{SubjectID: "subj-1", Count: 2, Mean: 4.5},
			}

			Convey("Then the snapshot arrives as JSON", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var got broadcast.Update
				So(conn.ReadJSON(&got), ShouldBeNil)
				So(got.SubjectID, ShouldEqual, "subj-1")
				So(got.Statistics.Count, ShouldEqual, 2)
			})
		})

		Convey("When a client filters by subject", func() {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?subject=subj-2", nil)
			So(err, ShouldBeNil)
			if resp != nil {
				_ = resp.Body.Close()
			}
			defer func() { _ = conn.Close() }()

			updates <- broadcast.Update{SubjectID: "subj-1"}
			updates <- broadcast.Update{SubjectID: "subj-2"}

			Convey("Then only the matching subject comes through", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var got broadcast.Update
				So(conn.ReadJSON(&got), ShouldBeNil)
				So(got.SubjectID, ShouldEqual, "subj-2")
			})
		})
	})
}
