// Package moderation は管理者による審査・一括管理の窓口を提供する。
//
// 審査の結果は各レジストリのステータス更新に委譲し、ここでは管理者権限の確認、
// 種別・判定値の検証とメトリクスの記録のみを行う。
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/jobbridge/internal/model"
)

// 審査・管理の対象種別
const (
	KindResumes   = "resumes"
	KindCompanies = "companies"
	KindJobs      = "jobs"
	KindUsers     = "users"
)

// 判定値
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
	DecisionOpen     = "OPEN"
)

// UserRegistry はモデレーションが利用するユーザー操作。
type UserRegistry interface {
	ListByResumeVerification(ctx context.Context, status model.ResumeVerification) ([]*model.User, error)
	SetResumeVerification(ctx context.Context, actorID, userID string, status model.ResumeVerification) (*model.User, error)
	SetAccountStatus(ctx context.Context, actorID, userID string, status model.AccountStatus) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, actorID, userID string) (*model.CascadeResult, error)
}

// CompanyRegistry はモデレーションが利用する会社操作。
type CompanyRegistry interface {
	ListByStatus(ctx context.Context, status model.CompanyStatus) ([]*model.Company, error)
	SetStatus(ctx context.Context, actorID, companyID string, status model.CompanyStatus) (*model.Company, error)
	List(ctx context.Context) ([]*model.Company, error)
	DeleteCompany(ctx context.Context, actorID, companyID string) (*model.CascadeResult, error)
}

// JobRegistry はモデレーションが利用する求人操作。
type JobRegistry interface {
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	SetStatus(ctx context.Context, actorID, jobID string, status model.JobStatus) (*model.Job, error)
}

// Metrics は判定のメトリクス記録先。
type Metrics interface {
	RecordModerationDecision(kind, decision string)
}

type nopMetrics struct{}

func (nopMetrics) RecordModerationDecision(string, string) {}

// Listing は一覧取得の結果。Kindに対応するフィールドのみが設定される。
type Listing struct {
	Kind      string
	Users     []*model.User
	Companies []*model.Company
	Jobs      []*model.Job
}

// Decision は判定の適用結果。Statusは更新後のステータス。
type Decision struct {
	Kind   string
	ID     string
	Status string
}

// Service はモデレーションのサービス層。
type Service struct {
	users     UserRegistry
	companies CompanyRegistry
	jobs      JobRegistry
	metrics   Metrics
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(users UserRegistry, companies CompanyRegistry, jobs JobRegistry, metrics Metrics) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{users: users, companies: companies, jobs: jobs, metrics: metrics}
}

// ListPending は審査待ちのエンティティを返す。kindは resumes, companies, jobs のいずれか。
func (s *Service) ListPending(ctx context.Context, actor model.Actor, kind string) (*Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	l := &Listing{Kind: kind}
	var err error
	switch kind {
	case KindResumes:
		l.Users, err = s.users.ListByResumeVerification(ctx, model.ResumeVerificationPending)
	case KindCompanies:
		l.Companies, err = s.companies.ListByStatus(ctx, model.CompanyStatusPending)
	case KindJobs:
		l.Jobs, err = s.jobs.ListByStatus(ctx, model.JobStatusPending)
	default:
		return nil, model.NewInvalidKindError(kind)
	}
	if err != nil {
		return nil, err
	}
	return l.nonNil(), nil
}

// Decide は審査結果を適用する。decisionは APPROVED または REJECTED で、
// 求人の場合は OPEN も APPROVED と同じ意味で受け付ける。
// 同じ判定の再適用はエラーにならない。
func (s *Service) Decide(ctx context.Context, actor model.Actor, kind, id, decision string) (*Decision, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	normalized := strings.ToUpper(strings.TrimSpace(decision))

	var status string
	switch kind {
	case KindResumes:
		rv, err := resumeDecision(normalized, decision)
		if err != nil {
			return nil, err
		}
		u, err := s.users.SetResumeVerification(ctx, actor.UserID, id, rv)
		if err != nil {
			return nil, err
		}
		status = string(u.ResumeVerification)
	case KindCompanies:
		cs, err := companyDecision(normalized, decision)
		if err != nil {
			return nil, err
		}
		c, err := s.companies.SetStatus(ctx, actor.UserID, id, cs)
		if err != nil {
			return nil, err
		}
		status = string(c.Status)
	case KindJobs:
		js, err := jobDecision(normalized, decision)
		if err != nil {
			return nil, err
		}
		j, err := s.jobs.SetStatus(ctx, actor.UserID, id, js)
		if err != nil {
			return nil, err
		}
		status = string(j.Status)
	default:
		return nil, model.NewInvalidKindError(kind)
	}

	slog.Info("moderation decision",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("status", status),
		slog.String("admin_id", actor.UserID),
	)
	s.metrics.RecordModerationDecision(kind, status)
	return &Decision{Kind: kind, ID: id, Status: status}, nil
}

func resumeDecision(normalized, raw string) (model.ResumeVerification, error) {
	switch normalized {
	case DecisionApproved:
		return model.ResumeVerificationApproved, nil
	case DecisionRejected:
		return model.ResumeVerificationRejected, nil
	}
	return "", model.NewInvalidDecisionError(raw)
}

func companyDecision(normalized, raw string) (model.CompanyStatus, error) {
	switch normalized {
	case DecisionApproved:
		return model.CompanyStatusApproved, nil
	case DecisionRejected:
		return model.CompanyStatusRejected, nil
	}
	return "", model.NewInvalidDecisionError(raw)
}

func jobDecision(normalized, raw string) (model.JobStatus, error) {
	switch normalized {
	case DecisionApproved, DecisionOpen:
		return model.JobStatusOpen, nil
	case DecisionRejected:
		return model.JobStatusRejected, nil
	}
	return "", model.NewInvalidDecisionError(raw)
}

// ListAll は全件を返す管理用の一覧。kindは users または companies。
func (s *Service) ListAll(ctx context.Context, actor model.Actor, kind string) (*Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	l := &Listing{Kind: kind}
	var err error
	switch kind {
	case KindUsers:
		l.Users, err = s.users.ListUsers(ctx)
	case KindCompanies:
		l.Companies, err = s.companies.List(ctx)
	default:
		return nil, model.NewInvalidKindError(kind)
	}
	if err != nil {
		return nil, err
	}
	return l.nonNil(), nil
}

// Purge はユーザーまたは会社を関連エンティティごと削除する。
// 管理者は自分自身を削除できない。
func (s *Service) Purge(ctx context.Context, actor model.Actor, kind, id string) (*model.CascadeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		res *model.CascadeResult
		err error
	)
	switch kind {
	case KindUsers:
		if id == actor.UserID {
			return nil, model.NewForbiddenError("自分自身のアカウントは削除できません")
		}
		res, err = s.users.DeleteUser(ctx, actor.UserID, id)
	case KindCompanies:
		res, err = s.companies.DeleteCompany(ctx, actor.UserID, id)
	default:
		return nil, model.NewInvalidKindError(kind)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("moderation purge",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("admin_id", actor.UserID),
		slog.Int64("users", res.Users),
		slog.Int64("companies", res.Companies),
		slog.Int64("jobs", res.Jobs),
		slog.Int64("applications", res.Applications),
	)
	return res, nil
}

// SetAccountStatus はアカウントを停止または再開する。管理者は自分自身を停止できない。
func (s *Service) SetAccountStatus(ctx context.Context, actor model.Actor, userID, status string) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	st, ok := model.ParseAccountStatus(status)
	if !ok {
		return nil, model.NewInvalidStatusError(status)
	}
	if userID == actor.UserID && st == model.AccountStatusSuspended {
		return nil, model.NewForbiddenError("自分自身のアカウントは停止できません")
	}
	return s.users.SetAccountStatus(ctx, actor.UserID, userID, st)
}

func requireAdmin(actor model.Actor) error {
	if !actor.Is(model.RoleAdmin) {
		return model.NewForbiddenError(fmt.Sprintf("管理者権限が必要です（ロール: %s）", actorRole(actor)))
	}
	return nil
}

func actorRole(actor model.Actor) string {
	if actor.UserID == "" {
		return "anonymous"
	}
	return string(actor.Role)
}

// nonNil は未取得のスライスをnilのままにし、取得済みの空結果を空スライスにそろえる。
func (l *Listing) nonNil() *Listing {
	switch l.Kind {
	case KindResumes, KindUsers:
		if l.Users == nil {
			l.Users = []*model.User{}
		}
	case KindCompanies:
		if l.Companies == nil {
			l.Companies = []*model.Company{}
		}
	case KindJobs:
		if l.Jobs == nil {
			l.Jobs = []*model.Job{}
		}
	}
	return l
}
