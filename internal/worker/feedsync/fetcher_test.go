package feedsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/jobbridge/internal/job"
	"github.com/hitoshi/jobbridge/internal/metrics"
	"github.com/hitoshi/jobbridge/internal/model"
)

// --- モック定義 ---

type mockStore struct {
	mu                 sync.Mutex
	updateFetchStateFn func(ctx context.Context, feed *model.CompanyFeed) error
	saved              []model.CompanyFeed
}

func (m *mockStore) UpdateFetchState(ctx context.Context, feed *model.CompanyFeed) error {
	m.mu.Lock()
	m.saved = append(m.saved, *feed)
	m.mu.Unlock()
	if m.updateFetchStateFn != nil {
		return m.updateFetchStateFn(ctx, feed)
	}
	return nil
}

func (m *mockStore) last(t *testing.T) model.CompanyFeed {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		t.Fatal("UpdateFetchState が呼ばれるべき")
	}
	return m.saved[len(m.saved)-1]
}

type importCall struct {
	companyID   string
	externalRef string
	in          job.Input
}

type mockImporter struct {
	mu       sync.Mutex
	importFn func(ctx context.Context, companyID, externalRef string, in job.Input) (*model.Job, error)
	calls    []importCall
}

func (m *mockImporter) Import(ctx context.Context, companyID, externalRef string, in job.Input) (*model.Job, error) {
	m.mu.Lock()
	m.calls = append(m.calls, importCall{companyID, externalRef, in})
	m.mu.Unlock()
	if m.importFn != nil {
		return m.importFn(ctx, companyID, externalRef, in)
	}
	return &model.Job{ID: "job-" + externalRef, CompanyID: companyID, ExternalRef: externalRef}, nil
}

// mockGuard はループバックのテストサーバーに接続できるよう、SSRF防止のないクライアントを返す。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(_ string) error {
	return m.validateErr
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes []string
	statuses []int
	latency  int
	imported int
}

func (m *mockMetrics) RecordFeedFetch(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockMetrics) RecordFeedHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockMetrics) RecordFeedFetchLatency(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency++
}

func (m *mockMetrics) RecordJobsImported(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported += count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Acme Careers</title>
    <item>
      <title>Welder</title>
      <link>https://acme.example.com/jobs/1</link>
      <guid>job-1</guid>
      <category>Manufacturing</category>
      <description>Night shift welding</description>
    </item>
    <item>
      <title>Driver</title>
      <link>https://acme.example.com/jobs/2</link>
      <guid>job-2</guid>
      <description>Delivery routes</description>
    </item>
  </channel>
</rss>`

type fetcherFixture struct {
	store    *mockStore
	importer *mockImporter
	guard    *mockGuard
	metrics  *mockMetrics
	logs     *bytes.Buffer
	fetcher  *Fetcher
}

func newFetcherFixture() *fetcherFixture {
	fx := &fetcherFixture{
		store:    &mockStore{},
		importer: &mockImporter{},
		guard:    &mockGuard{},
		metrics:  &mockMetrics{},
		logs:     &bytes.Buffer{},
	}
	fx.fetcher = NewFetcher(fx.store, fx.importer, fx.guard, fx.metrics, newTestLogger(fx.logs),
		5*time.Second, 1<<20, time.Hour)
	fx.fetcher.now = func() time.Time { return testNow }
	return fx
}

func serveFeed(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL + "/careers.xml"
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(&mockStore{}, &mockImporter{}, &mockGuard{}, nil, slog.Default(), time.Second, 1024, 0)
	if f.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", f.interval, DefaultInterval)
	}
	if _, ok := f.metrics.(nopMetrics); !ok {
		t.Errorf("metrics = %T, want nopMetrics", f.metrics)
	}
}

func TestFetcher_Fetch_ImportsEntries(t *testing.T) {
	fx := newFetcherFixture()
	url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "JobBridge/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 01 Apr 2026 00:00:00 GMT")
		fmt.Fprint(w, sampleFeed)
	})
	feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 2}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if len(fx.importer.calls) != 2 {
		t.Fatalf("Import の呼び出し回数 = %d, want 2", len(fx.importer.calls))
	}
	first := fx.importer.calls[0]
	if first.companyID != "c-1" || first.externalRef != "job-1" {
		t.Errorf("first call = %+v", first)
	}
	if first.in.Title != "Welder" || first.in.Category != "Manufacturing" || first.in.Description != "Night shift welding" {
		t.Errorf("first input = %+v", first.in)
	}

	saved := fx.store.last(t)
	if saved.ETag != `"v1"` || saved.LastModified != "Wed, 01 Apr 2026 00:00:00 GMT" {
		t.Errorf("validators = %q / %q", saved.ETag, saved.LastModified)
	}
	if saved.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", saved.ConsecutiveErrors)
	}
	if want := testNow.Add(time.Hour); !saved.NextFetchAt.Equal(want) {
		t.Errorf("NextFetchAt = %v, want %v", saved.NextFetchAt, want)
	}
	if fx.metrics.imported != 2 {
		t.Errorf("imported metric = %d, want 2", fx.metrics.imported)
	}
	if len(fx.metrics.outcomes) != 1 || fx.metrics.outcomes[0] != metrics.FetchOutcomeSuccess {
		t.Errorf("outcomes = %v", fx.metrics.outcomes)
	}
	if len(fx.metrics.statuses) != 1 || fx.metrics.statuses[0] != 200 || fx.metrics.latency != 1 {
		t.Errorf("statuses = %v, latency observations = %d", fx.metrics.statuses, fx.metrics.latency)
	}
	if !strings.Contains(fx.logs.String(), `"jobs_imported":2`) {
		t.Errorf("ログに jobs_imported が記録されていない: %s", fx.logs.String())
	}
}

func TestFetcher_Fetch_SkipsImportedAndInvalidEntries(t *testing.T) {
	fx := newFetcherFixture()
	fx.importer.importFn = func(_ context.Context, _, ref string, _ job.Input) (*model.Job, error) {
		switch ref {
		case "job-1":
			return nil, model.NewJobAlreadyImportedError(ref)
		default:
			return nil, model.NewValidationError("title", "長すぎます")
		}
	}
	url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleFeed)
	})
	feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	saved := fx.store.last(t)
	if saved.ConsecutiveErrors != 0 || saved.FetchStatus != model.FetchStatusActive {
		t.Errorf("saved = %+v", saved)
	}
	if fx.metrics.imported != 0 {
		t.Errorf("imported metric = %d, want 0", fx.metrics.imported)
	}
	if !strings.Contains(fx.logs.String(), `"entries_skipped":1`) || !strings.Contains(fx.logs.String(), `"entries_invalid":1`) {
		t.Errorf("ログに内訳が記録されていない: %s", fx.logs.String())
	}
}

func TestFetcher_Fetch_ImportFailureBacksOff(t *testing.T) {
	fx := newFetcherFixture()
	dbErr := errors.New("connection reset")
	fx.importer.importFn = func(_ context.Context, _, ref string, _ job.Input) (*model.Job, error) {
		if ref == "job-2" {
			return nil, dbErr
		}
		return &model.Job{ID: "j"}, nil
	}
	url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		fmt.Fprint(w, sampleFeed)
	})
	feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive}

	err := fx.fetcher.Fetch(context.Background(), feed)
	if !errors.Is(err, dbErr) {
		t.Fatalf("Fetch() error = %v, want %v", err, dbErr)
	}

	saved := fx.store.last(t)
	if saved.ETag != "" {
		t.Errorf("取り込みに失敗した内容のETagは保存しないべき: %q", saved.ETag)
	}
	if saved.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", saved.ConsecutiveErrors)
	}
	if fx.metrics.imported != 1 {
		t.Errorf("imported metric = %d, want 1", fx.metrics.imported)
	}
}

func TestFetcher_Fetch_ConditionalGET(t *testing.T) {
	fx := newFetcherFixture()
	url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Errorf("If-None-Match = %q", r.Header.Get("If-None-Match"))
		}
		if r.Header.Get("If-Modified-Since") != "Wed, 01 Apr 2026 00:00:00 GMT" {
			t.Errorf("If-Modified-Since = %q", r.Header.Get("If-Modified-Since"))
		}
		w.WriteHeader(http.StatusNotModified)
	})
	feed := &model.CompanyFeed{
		CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive,
		ETag: `"v1"`, LastModified: "Wed, 01 Apr 2026 00:00:00 GMT", ConsecutiveErrors: 1,
	}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if len(fx.importer.calls) != 0 {
		t.Errorf("304 では取り込みを行わないべき: %d calls", len(fx.importer.calls))
	}
	saved := fx.store.last(t)
	if saved.ConsecutiveErrors != 0 || saved.ETag != `"v1"` {
		t.Errorf("saved = %+v", saved)
	}
	if fx.metrics.outcomes[0] != metrics.FetchOutcomeNotModified {
		t.Errorf("outcome = %q, want not_modified", fx.metrics.outcomes[0])
	}
}

func TestFetcher_Fetch_HTTPStatusPolicy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus model.FetchStatus
		wantErrors int
		wantDelay  time.Duration
	}{
		{"404 stops", http.StatusNotFound, model.FetchStatusStopped, 0, 0},
		{"410 stops", http.StatusGone, model.FetchStatusStopped, 0, 0},
		{"401 stops", http.StatusUnauthorized, model.FetchStatusStopped, 0, 0},
		{"429 backs off", http.StatusTooManyRequests, model.FetchStatusActive, 1, 30 * time.Minute},
		{"503 backs off", http.StatusServiceUnavailable, model.FetchStatusActive, 1, 30 * time.Minute},
		{"400 backs off", http.StatusBadRequest, model.FetchStatusActive, 1, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFetcherFixture()
			url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive}

			if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
				t.Fatalf("Fetch() がエラーを返した: %v", err)
			}

			saved := fx.store.last(t)
			if saved.FetchStatus != tt.wantStatus {
				t.Errorf("FetchStatus = %q, want %q", saved.FetchStatus, tt.wantStatus)
			}
			if saved.ConsecutiveErrors != tt.wantErrors {
				t.Errorf("ConsecutiveErrors = %d, want %d", saved.ConsecutiveErrors, tt.wantErrors)
			}
			if tt.wantDelay > 0 && !saved.NextFetchAt.Equal(testNow.Add(tt.wantDelay)) {
				t.Errorf("NextFetchAt = %v, want %v", saved.NextFetchAt, testNow.Add(tt.wantDelay))
			}
			if saved.ErrorMessage == "" {
				t.Error("ErrorMessage は設定されるべき")
			}
			if fx.metrics.outcomes[0] != metrics.FetchOutcomeFailure {
				t.Errorf("outcome = %q, want failure", fx.metrics.outcomes[0])
			}
		})
	}
}

func TestFetcher_Fetch_RejectedURLStopsFeed(t *testing.T) {
	fx := newFetcherFixture()
	fx.guard.validateErr = errors.New("blocked host")
	feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: "http://169.254.169.254/latest", FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("SSRF検証失敗時は Fetch() がエラーを返すべき")
	}

	saved := fx.store.last(t)
	if saved.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", saved.FetchStatus)
	}
	if len(fx.metrics.statuses) != 0 {
		t.Errorf("リクエストは送信されないべき: statuses = %v", fx.metrics.statuses)
	}
}

func TestFetcher_Fetch_ConnectionErrorBacksOff(t *testing.T) {
	fx := newFetcherFixture()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()
	feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 1}

	if err := fx.fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("接続失敗時は Fetch() がエラーを返すべき")
	}

	saved := fx.store.last(t)
	if saved.ConsecutiveErrors != 2 {
		t.Errorf("ConsecutiveErrors = %d, want 2", saved.ConsecutiveErrors)
	}
	if want := testNow.Add(time.Hour); !saved.NextFetchAt.Equal(want) {
		t.Errorf("NextFetchAt = %v, want %v", saved.NextFetchAt, want)
	}
}

func TestFetcher_Fetch_ParseFailure(t *testing.T) {
	fx := newFetcherFixture()
	url := serveFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"broken"`)
		fmt.Fprint(w, "this is not a feed")
	})

	t.Run("counts", func(t *testing.T) {
		feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive}
		if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
			t.Fatalf("パース失敗はエラーとしないべき: %v", err)
		}
		saved := fx.store.last(t)
		if saved.ConsecutiveErrors != 1 || saved.FetchStatus != model.FetchStatusActive {
			t.Errorf("saved = %+v", saved)
		}
		if saved.ETag != "" {
			t.Errorf("パースできなかった内容のETagは保存しないべき: %q", saved.ETag)
		}
	})

	t.Run("stops at threshold", func(t *testing.T) {
		feed := &model.CompanyFeed{CompanyID: "c-1", FeedURL: url, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 9}
		if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
			t.Fatalf("パース失敗はエラーとしないべき: %v", err)
		}
		if saved := fx.store.last(t); saved.FetchStatus != model.FetchStatusStopped {
			t.Errorf("FetchStatus = %q, want stopped", saved.FetchStatus)
		}
	})

	for _, outcome := range fx.metrics.outcomes {
		if outcome != metrics.FetchOutcomeParseFailure {
			t.Errorf("outcome = %q, want parse_failure", outcome)
		}
	}
}
