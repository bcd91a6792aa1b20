package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// redisPublishClient はRedisPublisherが使うgo-redisの操作。
type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher はイベントをJSONにしてRedisのPub/Subチャネルへ発行する。
type RedisPublisher struct {
	client  redisPublishClient
	channel string
}

// NewRedisClient はredisURLを解析し、疎通確認済みのクライアントを返す。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisPublisher はRedisPublisherを生成する。
func NewRedisPublisher(client redisPublishClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish はイベントを発行する。失敗はWARNログに残して握りつぶす。
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("イベントのシリアライズに失敗しました",
			slog.String("event_type", ev.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	// リクエストのキャンセルに引きずられないよう独立したタイムアウトで発行する
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.channel, payload).Err(); err != nil {
		slog.Warn("イベントの発行に失敗しました",
			slog.String("event_type", ev.Type),
			slog.String("entity_id", ev.EntityID),
			slog.String("channel", p.channel),
			slog.String("error", err.Error()),
		)
	}
}
