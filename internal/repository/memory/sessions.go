package memory

import (
	"context"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
)

// SessionRepo はインメモリのセッションリポジトリ。
type SessionRepo struct{ s *Store }

// Create はセッションを作成する。ユーザーが存在しない場合は ErrPreconditionFailed を返す。
func (r *SessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[session.UserID]; !ok {
		return repository.ErrPreconditionFailed
	}
	cp := *session
	r.s.sessions[session.ID] = &cp
	setFor(r.s.sessionsByUser, session.UserID).add(session.ID)
	return nil
}

// FindByID は有効期限内のセッションを取得する。
func (r *SessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(r.s.now()) {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

// DeleteByID はセッションを削除する。
func (r *SessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sess, ok := r.s.sessions[id]; ok {
		delete(r.s.sessions, id)
		r.s.sessionsByUser[sess.UserID].remove(id)
	}
	return nil
}

// DeleteByUserID はユーザーの全セッションを削除する。
func (r *SessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id := range r.s.sessionsByUser[userID] {
		delete(r.s.sessions, id)
	}
	delete(r.s.sessionsByUser, userID)
	return nil
}

// DeleteExpired は now 時点で期限切れのセッションを削除する。
func (r *SessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.After(now) {
			continue
		}
		delete(r.s.sessions, id)
		r.s.sessionsByUser[sess.UserID].remove(id)
		n++
	}
	return n, nil
}

var _ repository.SessionRepository = (*SessionRepo)(nil)
