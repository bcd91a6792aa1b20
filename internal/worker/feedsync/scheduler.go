// Package feedsync は会社の採用フィードを定期的に取得し、新しいエントリを
// モデレーション待ちの求人として取り込むワーカー処理を提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略を含む。
package feedsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
)

// DueFeedLister はフェッチ対象の採用フィードを返すインターフェース。
// 対象は会社がAPPROVEDで、フェッチ状態がactiveかつ次回フェッチ時刻を過ぎたもの。
type DueFeedLister interface {
	ListDueForFetch(ctx context.Context, now time.Time) ([]*model.CompanyFeed, error)
}

// FeedFetcher は1つのフィードを処理するインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, feed *model.CompanyFeed) error
}

// Scheduler はフェッチ対象フィードを取得し、並列数を制限しながらフェッチを実行する。
// 実行タイミングはcronが RunOnce を呼び出すことで決まる。
type Scheduler struct {
	feeds          DueFeedLister
	fetcher        FeedFetcher
	logger         *slog.Logger
	maxConcurrency int
	now            func() time.Time

	running sync.Mutex
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(feeds DueFeedLister, fetcher FeedFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		feeds:          feeds,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// RunOnce はフェッチ対象フィードを1回取得し、並列でフェッチを実行する。
// 前回のサイクルが終わっていない場合は何もしない。
// 個別フィードのエラーはログに記録するだけで、サイクル全体のエラーにはしない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		s.logger.Warn("feed sync cycle skipped: previous cycle still running")
		return nil
	}
	defer s.running.Unlock()

	start := time.Now()

	feeds, err := s.feeds.ListDueForFetch(ctx, s.now())
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		s.logger.Info("no careers feeds due")
		return nil
	}

	s.logger.Info("feed sync cycle started", slog.Int("feed_count", len(feeds)))

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

loop:
	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(f *model.CompanyFeed) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, f); err != nil {
				s.logger.Error("careers feed fetch failed",
					slog.String("company_id", f.CompanyID),
					slog.String("feed_url", f.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(feed)
	}

	wg.Wait()

	s.logger.Info("feed sync cycle completed",
		slog.Int("feed_count", len(feeds)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return ctx.Err()
}
