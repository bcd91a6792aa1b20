package events

import (
	"context"
	"log/slog"
)

// LogPublisher はイベントを構造化ログとして出力する。
// REDIS_URL未設定時の発行先。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher はLogPublisherを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish はイベントをINFOレベルで記録する。
func (p *LogPublisher) Publish(ctx context.Context, ev Event) {
	p.logger.InfoContext(ctx, "lifecycle event",
		slog.String("event_type", ev.Type),
		slog.String("entity_id", ev.EntityID),
		slog.String("status", ev.Status),
		slog.String("actor_id", ev.ActorID),
		slog.Time("occurred_at", ev.OccurredAt),
	)
}
