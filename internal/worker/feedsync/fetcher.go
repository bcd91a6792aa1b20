package feedsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jobbridge/internal/job"
	"github.com/hitoshi/jobbridge/internal/jobfeed"
	"github.com/hitoshi/jobbridge/internal/metrics"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/security"
)

// DefaultInterval は正常にフェッチできたフィードの次回フェッチまでの間隔。
const DefaultInterval = time.Hour

// FetchStateStore はフィードのフェッチ状態を保存するインターフェース。
type FetchStateStore interface {
	UpdateFetchState(ctx context.Context, feed *model.CompanyFeed) error
}

// JobImporter はフィードのエントリを求人として取り込むインターフェース。
// job.Service が満たす。
type JobImporter interface {
	Import(ctx context.Context, companyID, externalRef string, in job.Input) (*model.Job, error)
}

// Metrics はフィード取り込みで記録するメトリクス。
type Metrics interface {
	RecordFeedFetch(outcome string)
	RecordFeedHTTPStatus(statusCode int)
	RecordFeedFetchLatency(duration time.Duration)
	RecordJobsImported(count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordFeedFetch(string)               {}
func (nopMetrics) RecordFeedHTTPStatus(int)             {}
func (nopMetrics) RecordFeedFetchLatency(time.Duration) {}
func (nopMetrics) RecordJobsImported(int)               {}

// ImportSummary は1回のフェッチで処理したエントリの内訳。
type ImportSummary struct {
	Imported int
	Skipped  int
	Invalid  int
}

// Fetcher は1つの採用フィードを取得し、新しいエントリをPENDINGの求人として取り込む。
// ETag/Last-Modifiedによる条件付きGETとSSRF検証を行い、結果に応じてフェッチ状態を更新する。
type Fetcher struct {
	store       FetchStateStore
	importer    JobImporter
	guard       security.URLGuard
	metrics     Metrics
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	interval    time.Duration
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// intervalが0以下の場合は DefaultInterval を使用する。
func NewFetcher(
	store FetchStateStore,
	importer JobImporter,
	guard security.URLGuard,
	m Metrics,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	interval time.Duration,
) *Fetcher {
	if m == nil {
		m = nopMetrics{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Fetcher{
		store:       store,
		importer:    importer,
		guard:       guard,
		metrics:     m,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		interval:    interval,
		now:         time.Now,
	}
}

// Fetch はフィードを取得して取り込み、フェッチ状態を更新する。
// パース失敗は連続回数として数えるだけでエラーとしない。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.CompanyFeed) error {
	start := time.Now()

	if err := f.guard.ValidateURL(feed.FeedURL); err != nil {
		f.logger.Error("careers feed url rejected",
			slog.String("company_id", feed.CompanyID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyStopFeed(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		f.saveState(ctx, feed)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", jobfeed.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		f.logger.Error("careers feed request failed",
			slog.String("company_id", feed.CompanyID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		f.saveState(ctx, feed)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordFeedHTTPStatus(resp.StatusCode)
	f.metrics.RecordFeedFetchLatency(time.Since(start))

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultOK:
	case FetchResultNotModified:
		f.logger.Info("careers feed not modified",
			slog.String("company_id", feed.CompanyID),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplySuccess(feed, f.interval, f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeNotModified)
		return f.store.UpdateFetchState(ctx, feed)
	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("careers feed stopped",
			slog.String("company_id", feed.CompanyID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStopFeed(feed, reason, f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		return f.store.UpdateFetchState(ctx, feed)
	case FetchResultBackoff:
		f.logger.Warn("careers feed backing off",
			slog.String("company_id", feed.CompanyID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		ApplyBackoff(feed, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		return f.store.UpdateFetchState(ctx, feed)
	default:
		f.logger.Warn("unexpected careers feed status",
			slog.String("company_id", feed.CompanyID),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyBackoff(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		return f.store.UpdateFetchState(ctx, feed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		return f.store.UpdateFetchState(ctx, feed)
	}

	entries, err := jobfeed.ParseEntries(body)
	if err != nil {
		f.logger.Error("careers feed parse failed",
			slog.String("company_id", feed.CompanyID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyParseFailure(feed, err.Error(), f.interval, f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeParseFailure)
		f.saveState(ctx, feed)
		return nil
	}

	summary, err := f.importEntries(ctx, feed.CompanyID, entries)
	f.metrics.RecordJobsImported(summary.Imported)
	if err != nil {
		f.logger.Error("careers feed import failed",
			slog.String("company_id", feed.CompanyID),
			slog.Int("jobs_imported", summary.Imported),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("求人の取り込みに失敗: %s", err.Error()), f.now())
		f.metrics.RecordFeedFetch(metrics.FetchOutcomeFailure)
		f.saveState(ctx, feed)
		return err
	}

	// バリデータは取り込みが完了した内容に対してだけ保存する
	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}
	ApplySuccess(feed, f.interval, f.now())
	f.metrics.RecordFeedFetch(metrics.FetchOutcomeSuccess)

	if err := f.store.UpdateFetchState(ctx, feed); err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗: %w", err)
	}

	f.logger.Info("careers feed synced",
		slog.String("company_id", feed.CompanyID),
		slog.String("feed_url", feed.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("entries_total", len(entries)),
		slog.Int("jobs_imported", summary.Imported),
		slog.Int("entries_skipped", summary.Skipped),
		slog.Int("entries_invalid", summary.Invalid),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// importEntries はエントリを順に取り込む。取り込み済みのエントリと検証に失敗した
// エントリは飛ばし、それ以外のエラーでは中断する。
func (f *Fetcher) importEntries(ctx context.Context, companyID string, entries []jobfeed.Entry) (ImportSummary, error) {
	var summary ImportSummary
	for _, e := range entries {
		_, err := f.importer.Import(ctx, companyID, e.ExternalRef, job.Input{
			Title:       e.Title,
			Category:    e.Category,
			Location:    e.Location,
			Description: e.Description,
		})
		switch {
		case err == nil:
			summary.Imported++
		case model.IsCode(err, model.ErrCodeJobAlreadyImported):
			summary.Skipped++
		case model.CategoryOf(err) == model.CategoryValidation:
			summary.Invalid++
			f.logger.Warn("careers feed entry rejected",
				slog.String("company_id", companyID),
				slog.String("external_ref", e.ExternalRef),
				slog.String("error", err.Error()),
			)
		default:
			return summary, err
		}
	}
	return summary, nil
}

func (f *Fetcher) saveState(ctx context.Context, feed *model.CompanyFeed) {
	if err := f.store.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("failed to update careers feed state",
			slog.String("company_id", feed.CompanyID),
			slog.String("error", err.Error()),
		)
	}
}
