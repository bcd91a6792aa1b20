package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/jobbridge/internal/config"
	"github.com/hitoshi/jobbridge/internal/metrics"
	"github.com/hitoshi/jobbridge/internal/worker/cleanup"
	"github.com/hitoshi/jobbridge/internal/worker/expiry"
	"github.com/hitoshi/jobbridge/internal/worker/feedsync"
)

// cronLogger はrobfig/cronのログをslogに流すアダプタ。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}

// scheduledTask はcronに登録する定期処理。
type scheduledTask struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// maintenanceTasks はフィード同期・求人の締切処理・セッション掃除のタスクを組み立てる。
func maintenanceTasks(cfg *config.Config, st *stores, svc *services, collector *metrics.Collector) []scheduledTask {
	logger := slog.Default()

	fetcher := feedsync.NewFetcher(
		st.companyFeeds, svc.jobs, svc.guard, collector, logger,
		cfg.FeedFetchTimeout, cfg.FeedFetchMaxSize, cfg.FeedRefreshInterval,
	)
	feedScheduler := feedsync.NewScheduler(st.companyFeeds, fetcher, logger, cfg.FeedMaxConcurrent)
	expiryJob := expiry.NewJob(svc.jobs, collector, logger)
	cleanupJob := cleanup.NewCleanupJob(st.sessions, logger)

	return []scheduledTask{
		{name: "feed_sync", schedule: cfg.FeedSyncSchedule, run: feedScheduler.RunOnce},
		{name: "job_expiry", schedule: cfg.JobExpirySchedule, run: expiryJob.Run},
		{name: "session_cleanup", schedule: cfg.SessionCleanupSchedule, run: cleanupJob.Run},
	}
}

// newCron はタスクを登録したcronを返す。実行中のタスクと重なる起動はスキップされる。
// 起動は呼び出し側で Start を呼ぶまで行われない。
func newCron(ctx context.Context, tasks []scheduledTask) (*cron.Cron, error) {
	logger := cronLogger{logger: slog.Default()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, task := range tasks {
		if _, err := c.AddFunc(task.schedule, func() { runTask(ctx, task) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", task.schedule, task.name, err)
		}
		slog.Info("scheduled task registered",
			slog.String("task", task.name),
			slog.String("schedule", task.schedule),
		)
	}
	return c, nil
}

func runTask(ctx context.Context, task scheduledTask) {
	if ctx.Err() != nil {
		return
	}
	if err := task.run(ctx); err != nil {
		slog.Error("scheduled task failed",
			slog.String("task", task.name),
			slog.String("error", err.Error()),
		)
	}
}
