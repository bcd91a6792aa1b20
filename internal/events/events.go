// Package events はライフサイクルイベント（作成・ステータス変更）の発行を提供する。
// 通知配信は行わず、購読側が利用できる形でイベントを流すところまでを担う。
package events

import (
	"context"
	"time"
)

// イベント種別
const (
	TypeUserRegistered           = "user.registered"
	TypeResumeVerification       = "user.resume_verification_changed"
	TypeAccountStatusChanged     = "user.account_status_changed"
	TypeUserDeleted              = "user.deleted"
	TypeCompanyCreated           = "company.created"
	TypeCompanyStatusChanged     = "company.status_changed"
	TypeCompanyDeleted           = "company.deleted"
	TypeJobCreated               = "job.created"
	TypeJobStatusChanged         = "job.status_changed"
	TypeJobDeleted               = "job.deleted"
	TypeApplicationCreated       = "application.created"
	TypeApplicationStatusChanged = "application.status_changed"
)

// Event は1件のライフサイクルイベントを表す。
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	Status     string    `json:"status,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New は現在時刻でEventを生成する。
func New(eventType, entityID, status, actorID string) Event {
	return Event{
		Type:       eventType,
		EntityID:   entityID,
		Status:     status,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher はイベントの発行先。
// 発行の失敗で呼び出し元の操作を失敗させてはならないため、
// 実装はエラーを返さずログに残す。
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop は何もしないPublisher。
type Nop struct{}

// Publish はイベントを破棄する。
func (Nop) Publish(context.Context, Event) {}
