// Package expiry は締切日を過ぎた求人をクローズするジョブを提供する。
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredJobCloser は締切済み求人のクローズを抽象化するインターフェース。
// job.Service が満たす。
type ExpiredJobCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Metrics はクローズした求人数を記録するインターフェース。
type Metrics interface {
	RecordJobsExpired(count int64)
}

type nopMetrics struct{}

func (nopMetrics) RecordJobsExpired(int64) {}

// Job は締切日を過ぎたPENDING/OPENの求人をCLOSEDにするジョブ。
// 締切日当日の求人はまだ応募を受け付ける。
type Job struct {
	jobs    ExpiredJobCloser
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(jobs ExpiredJobCloser, m Metrics, logger *slog.Logger) *Job {
	if m == nil {
		m = nopMetrics{}
	}
	return &Job{jobs: jobs, metrics: m, logger: logger, now: time.Now}
}

// Run は締切済み求人をクローズする。冪等で、対象がなくてもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	closed, err := j.jobs.CloseExpired(ctx, now)
	if err != nil {
		j.logger.Error("job expiry failed", slog.String("error", err.Error()))
		return fmt.Errorf("締切済み求人のクローズに失敗: %w", err)
	}
	j.metrics.RecordJobsExpired(closed)

	j.logger.Info("job expiry completed",
		slog.Int64("closed_count", closed),
		slog.Time("as_of", now),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
