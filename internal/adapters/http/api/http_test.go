package api_test

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/hiscore/internal/adapters/http/api"
	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/model"
	"github.com/okian/hiscore/internal/domain/types"
	"github.com/okian/hiscore/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type mockDeduper struct {
	seen map[string]bool
}

func (m *mockDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeduper) Unrecord(_ context.Context, id string) {
	delete(m.seen, id)
}

func (m *mockDeduper) Size() int64 {
	return int64(len(m.seen))
}

// deps merges enqueued submissions straight into the store.
type deps struct {
	*leaderboard.Store
	mockDeduper
	reject   bool
	enqueued []model.Submission
	reads    []string
}

func (d *deps) ReadPage(list, pageNumber int, set leaderboard.IdentitySet, page []leaderboard.Entry) (int, int) {
	d.reads = append(d.reads, "ReadPage")
	return d.Store.ReadPage(list, pageNumber, set, page)
}

func (d *deps) FillPageAround(list int, identity string, page []leaderboard.Entry) (int, int, int) {
	d.reads = append(d.reads, "FillPageAround")
	return d.Store.FillPageAround(list, identity, page)
}

func (d *deps) FillFilteredPageAround(list int, identity string, set leaderboard.IdentitySet, page []leaderboard.Entry) (int, int, int) {
	d.reads = append(d.reads, "FillFilteredPageAround")
	return d.Store.FillFilteredPageAround(list, identity, set, page)
}

func (d *deps) Enqueue(_ context.Context, s model.Submission) bool {
	if d.reject {
		return false
	}
	d.enqueued = append(d.enqueued, s)
	_, _ = d.SubmitLocalEntry(s.List, leaderboard.Entry{Identity: s.Identity, Score: s.Score}, nil)
	return true
}

type staticStats map[string]any

func (s staticStats) GetStats() map[string]any { return s }

func newTestServer(t *testing.T, opts ...api.ServerOption) (*deps, *http.ServeMux) {
	t.Helper()
	store, err := leaderboard.New(2, 10)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	d := &deps{Store: store}
	mux := http.NewServeMux()
	api.NewServer(d, staticStats{"queue_len": 0}, opts...).Register(mux)
	return d, mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodePage(w *httptest.ResponseRecorder) types.Page {
	var p types.Page
	So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
	return p
}

func seed(d *deps, list int, pairs ...any) {
	for i := 0; i < len(pairs); i += 2 {
		_, err := d.SubmitLocalEntry(list, leaderboard.Entry{Identity: pairs[i].(string), Score: int64(pairs[i+1].(int))}, nil)
		So(err, ShouldBeNil)
	}
}

func TestPostScore(t *testing.T) {
	Convey("POST /scores", t, func() {
		d, mux := newTestServer(t)

		Convey("accepts a valid submission", func() {
			w := do(mux, http.MethodPost, "/scores", `{"submission_id":"s1","list":1,"identity":"bob","score":42}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			var resp api.ScoreResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Status, ShouldEqual, "accepted")
			So(resp.SubmissionID, ShouldEqual, "s1")
			So(d.Contains(1, "bob"), ShouldBeTrue)
		})

		Convey("assigns an id when none is given", func() {
			w := do(mux, http.MethodPost, "/scores", `{"list":0,"identity":"bob","score":1}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(d.enqueued, ShouldHaveLength, 1)
			So(d.enqueued[0].SubmissionID, ShouldNotBeEmpty)
		})

		Convey("acknowledges duplicates without enqueueing", func() {
			body := `{"submission_id":"dup","list":0,"identity":"bob","score":1}`
			So(do(mux, http.MethodPost, "/scores", body).Code, ShouldEqual, http.StatusAccepted)

			w := do(mux, http.MethodPost, "/scores", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "duplicate")
			So(d.enqueued, ShouldHaveLength, 1)
		})

		Convey("rejects malformed bodies", func() {
			So(do(mux, http.MethodPost, "/scores", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/scores", `{"list":0,"identity":"a","score":1,"extra":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("rejects invalid submissions", func() {
			So(do(mux, http.MethodPost, "/scores", `{"list":0,"identity":"","score":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/scores", `{"list":2,"identity":"a","score":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/scores", `{"list":-1,"identity":"a","score":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(d.enqueued, ShouldBeEmpty)
		})

		Convey("returns 429 and forgets the id on backpressure", func() {
			d.reject = true
			body := `{"submission_id":"bp","list":0,"identity":"a","score":1}`
			So(do(mux, http.MethodPost, "/scores", body).Code, ShouldEqual, http.StatusTooManyRequests)
			So(d.Size(), ShouldEqual, 0)

			d.reject = false
			So(do(mux, http.MethodPost, "/scores", body).Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("only allows POST", func() {
			So(do(mux, http.MethodGet, "/scores", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestGetPage(t *testing.T) {
	Convey("GET /leaderboards/{list}", t, func() {
		d, mux := newTestServer(t, api.WithMaxPageSize(3))
		seed(d, 0, "a", 50, "b", 40, "c", 30, "d", 20, "e", 10)

		Convey("returns the first page by default", func() {
			w := do(mux, http.MethodGet, "/leaderboards/0?size=2", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			p := decodePage(w)
			So(p.List, ShouldEqual, 0)
			So(p.Page, ShouldEqual, 0)
			So(p.Size, ShouldEqual, 2)
			So(p.Total, ShouldEqual, 5)
			So(p.Rank, ShouldBeNil)
			So(p.Entries, ShouldResemble, []types.Entry{
				{Rank: 1, Identity: "a", Score: 50},
				{Rank: 2, Identity: "b", Score: 40},
			})
		})

		Convey("returns a short last page", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0?page=2&size=2", ""))
			So(p.Entries, ShouldResemble, []types.Entry{{Rank: 5, Identity: "e", Score: 10}})
		})

		Convey("caps the default page size", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0", ""))
			So(p.Size, ShouldEqual, 3)
			So(p.Entries, ShouldHaveLength, 3)
			So(p.Total, ShouldEqual, 5)
		})

		Convey("caps the page size", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0?size=50", ""))
			So(p.Size, ShouldEqual, 3)
			So(p.Entries, ShouldHaveLength, 3)
		})

		Convey("filters to friends and keeps full-list ranks", func() {
			d.reads = nil
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0?friends=b,d,zed", ""))
			So(d.reads, ShouldResemble, []string{"ReadPage"})
			So(p.Total, ShouldEqual, 2)
			So(p.Entries, ShouldResemble, []types.Entry{
				{Rank: 2, Identity: "b", Score: 40},
				{Rank: 4, Identity: "d", Score: 20},
			})
		})

		Convey("returns an empty page for an empty list", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/1", ""))
			So(p.Total, ShouldEqual, 0)
			So(p.Entries, ShouldBeEmpty)
		})

		Convey("rejects bad parameters", func() {
			So(do(mux, http.MethodGet, "/leaderboards/x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboards/0?page=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboards/0?size=0", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("returns 404 for an unknown list", func() {
			So(do(mux, http.MethodGet, "/leaderboards/7", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestGetAround(t *testing.T) {
	Convey("GET /leaderboards/{list}/around/{identity}", t, func() {
		d, mux := newTestServer(t)
		seed(d, 0, "a", 50, "b", 40, "c", 30, "d", 20, "e", 10)

		Convey("returns the page holding the identity", func() {
			d.reads = nil
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0/around/d?size=2", ""))
			So(d.reads, ShouldResemble, []string{"FillPageAround"})
			So(p.Total, ShouldEqual, 5)
			So(p.Page, ShouldEqual, 1)
			So(p.Rank, ShouldNotBeNil)
			So(*p.Rank, ShouldEqual, 4)
			So(p.Entries, ShouldResemble, []types.Entry{
				{Rank: 3, Identity: "c", Score: 30},
				{Rank: 4, Identity: "d", Score: 20},
			})
		})

		Convey("returns the filtered page holding the identity", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0/around/e?size=1&friends=a,e", ""))
			So(p.Page, ShouldEqual, 1)
			So(*p.Rank, ShouldEqual, 5)
			So(p.Total, ShouldEqual, 2)
			So(p.Entries, ShouldResemble, []types.Entry{{Rank: 5, Identity: "e", Score: 10}})
		})

		Convey("reads rank, page and total of the filtered view in one call", func() {
			d.reads = nil
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0/around/c?size=1&friends=a,c,e", ""))
			So(d.reads, ShouldResemble, []string{"FillFilteredPageAround"})
			So(p.Page, ShouldEqual, 1)
			So(*p.Rank, ShouldEqual, 3)
			So(p.Total, ShouldEqual, 3)
			So(p.Entries, ShouldResemble, []types.Entry{{Rank: 3, Identity: "c", Score: 30}})
		})

		Convey("reports a missing filtered identity without a rank", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0/around/b?size=1&friends=a,e", ""))
			So(p.Page, ShouldEqual, 0)
			So(p.Rank, ShouldBeNil)
			So(p.Total, ShouldEqual, 2)
			So(p.Entries, ShouldResemble, []types.Entry{{Rank: 1, Identity: "a", Score: 50}})
		})

		Convey("falls back to page 0 without a rank when absent", func() {
			p := decodePage(do(mux, http.MethodGet, "/leaderboards/0/around/nobody?size=2", ""))
			So(p.Page, ShouldEqual, 0)
			So(p.Rank, ShouldBeNil)
			So(p.Entries, ShouldHaveLength, 2)
		})

		Convey("returns 404 for an unknown list", func() {
			So(do(mux, http.MethodGet, "/leaderboards/9/around/a", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("health and stats endpoints", t, func() {
		_, mux := newTestServer(t)

		Convey("healthz serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("stats serves the provider snapshot", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")

			var got map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldContainKey, "queue_len")
		})
	})
}

func TestError(t *testing.T) {
	Convey("Error matches its kind and cause", t, func() {
		cause := leaderboard.ErrInvalidEntry
		err := api.WrapKind("op", api.ErrBadRequest, cause)

		So(err.Error(), ShouldEqual, "op: bad request: "+cause.Error())
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(api.Wrap("op", nil), ShouldBeNil)
		So(api.NewKind("op", api.ErrNotFound).Error(), ShouldEqual, "op: not found")
	})
}
