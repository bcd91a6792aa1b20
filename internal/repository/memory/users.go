package memory

import (
	"context"
	"strings"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
)

// UserRepo はインメモリのユーザーリポジトリ。
type UserRepo struct{ s *Store }

// Create はユーザーを作成する。
func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := r.s.userByEmail[email]; exists {
		return repository.ErrDuplicate
	}
	if _, exists := r.s.users[user.ID]; exists {
		return repository.ErrDuplicate
	}
	r.s.users[user.ID] = cloneUser(user)
	r.s.userByEmail[email] = user.ID
	return nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if u, ok := r.s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *UserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if id, ok := r.s.userByEmail[strings.ToLower(email)]; ok {
		return cloneUser(r.s.users[id]), nil
	}
	return nil, nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *UserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[user.ID]
	if !ok {
		return nil
	}
	u.Name = user.Name
	u.Mobile = user.Mobile
	u.Skills = cloneStrings(user.Skills)
	u.Experience = user.Experience
	u.Education = user.Education
	u.UpdatedAt = r.s.now()
	return nil
}

// candidateLocked は候補者ユーザーを返す。存在しないか候補者でない場合はnil。
func (r *UserRepo) candidateLocked(id string) *model.User {
	u, ok := r.s.users[id]
	if !ok || u.Role != model.RoleCandidate {
		return nil
	}
	return u
}

// AttachResume は履歴書参照を設定し、審査状態をPENDINGにする。
func (r *UserRepo) AttachResume(_ context.Context, id, resumeRef string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u := r.candidateLocked(id)
	if u == nil {
		return nil, nil
	}
	u.ResumeRef = resumeRef
	u.ResumeVerification = model.ResumeVerificationPending
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

// SetResumeVerification は履歴書審査状態を更新する。
func (r *UserRepo) SetResumeVerification(_ context.Context, id string, status model.ResumeVerification) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u := r.candidateLocked(id)
	if u == nil || u.ResumeRef == "" {
		return nil, nil
	}
	u.ResumeVerification = status
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

// SetAccountStatus はアカウント状態を更新する。
func (r *UserRepo) SetAccountStatus(_ context.Context, id string, status model.AccountStatus) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	u.AccountStatus = status
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

// ListByResumeVerification は指定の履歴書審査状態の候補者を返す。
func (r *UserRepo) ListByResumeVerification(_ context.Context, status model.ResumeVerification) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var users []*model.User
	for _, u := range r.s.users {
		if u.Role == model.RoleCandidate && u.ResumeVerification == status {
			users = append(users, cloneUser(u))
		}
	}
	sortUsers(users)
	return users, nil
}

// List は全ユーザーを返す。
func (r *UserRepo) List(_ context.Context) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, cloneUser(u))
	}
	sortUsers(users)
	return users, nil
}

// DeleteCascade はユーザーと従属エンティティを削除する。
func (r *UserRepo) DeleteCascade(_ context.Context, id string) (*model.CascadeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return nil, nil
	}
	res := &model.CascadeResult{}
	r.s.deleteUserLocked(id, res)
	return res, nil
}

var _ repository.UserRepository = (*UserRepo)(nil)
