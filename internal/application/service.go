// Package application は候補者の応募と雇用者による選考状況管理のドメインロジックを提供する。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/jobbridge/internal/events"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
	"github.com/hitoshi/jobbridge/internal/security"
)

const (
	maxResumeRefLength = 1024
	maxContactLength   = 200
)

// Metrics は応募受付のメトリクス記録先。
type Metrics interface {
	RecordApplicationCreated()
}

type nopMetrics struct{}

func (nopMetrics) RecordApplicationCreated() {}

// Service は応募管理のサービス層。
type Service struct {
	appRepo     repository.ApplicationRepository
	jobRepo     repository.JobRepository
	companyRepo repository.CompanyRepository
	userRepo    repository.UserRepository
	sanitizer   security.Sanitizer
	publisher   events.Publisher
	metrics     Metrics
}

// NewService はServiceの新しいインスタンスを生成する。
// publisherとmetricsはnilでもよい。
func NewService(
	appRepo repository.ApplicationRepository,
	jobRepo repository.JobRepository,
	companyRepo repository.CompanyRepository,
	userRepo repository.UserRepository,
	sanitizer security.Sanitizer,
	publisher events.Publisher,
	metrics Metrics,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		appRepo:     appRepo,
		jobRepo:     jobRepo,
		companyRepo: companyRepo,
		userRepo:    userRepo,
		sanitizer:   sanitizer,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// Apply は候補者として求人に応募する。
// resumeRefが空なら登録済みの履歴書、contactの空項目はプロフィールの値で補う。
// 履歴書の審査状態は応募の可否に影響しない。
func (s *Service) Apply(ctx context.Context, actor model.Actor, jobID, resumeRef string, contact model.Contact) (*model.Application, error) {
	if !actor.Is(model.RoleCandidate) {
		return nil, model.NewInvalidRoleError(model.RoleCandidate)
	}

	j, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if j == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	if j.Status != model.JobStatusOpen {
		return nil, model.NewJobNotOpenError()
	}

	u, err := s.userRepo.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	resumeRef = strings.TrimSpace(resumeRef)
	if resumeRef == "" {
		resumeRef = u.ResumeRef
	}
	if len(resumeRef) > maxResumeRefLength {
		return nil, model.NewValidationError("resume_ref", "長すぎます")
	}
	snapshot, err := s.contactSnapshot(u, contact)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	app := &model.Application{
		ID:          uuid.New().String(),
		JobID:       jobID,
		CandidateID: actor.UserID,
		ResumeRef:   resumeRef,
		Contact:     snapshot,
		Status:      model.ApplicationStatusApplied,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.appRepo.CreateForOpenJob(ctx, app); err != nil {
		return nil, s.applyError(ctx, jobID, err)
	}

	slog.Info("application created",
		slog.String("application_id", app.ID),
		slog.String("job_id", jobID),
		slog.String("candidate_id", actor.UserID),
	)
	s.metrics.RecordApplicationCreated()
	s.publisher.Publish(ctx, events.New(events.TypeApplicationCreated, app.ID, string(app.Status), actor.UserID))
	return app, nil
}

// applyError は条件付きINSERTの失敗を応募のエラーに変換する。
// 前提条件の不成立は、読み取り後に求人が締め切られたか削除された場合に起こる。
func (s *Service) applyError(ctx context.Context, jobID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return model.NewDuplicateApplicationError()
	case errors.Is(err, repository.ErrPreconditionFailed):
		j, findErr := s.jobRepo.FindByID(ctx, jobID)
		if findErr != nil {
			return fmt.Errorf("求人の取得に失敗しました: %w", findErr)
		}
		if j == nil {
			return model.NewJobNotFoundError(jobID)
		}
		if j.Status != model.JobStatusOpen {
			return model.NewJobNotOpenError()
		}
		return model.NewUserNotFoundError()
	default:
		return fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
}

func (s *Service) contactSnapshot(u *model.User, in model.Contact) (model.Contact, error) {
	c := model.Contact{
		Name:  s.sanitizer.PlainText(in.Name),
		Email: strings.TrimSpace(in.Email),
		Phone: s.sanitizer.PlainText(in.Phone),
	}
	if c.Name == "" {
		c.Name = u.Name
	}
	if c.Email == "" {
		c.Email = u.Email
	}
	if c.Phone == "" {
		c.Phone = u.Mobile
	}
	for field, v := range map[string]string{"contact.name": c.Name, "contact.email": c.Email, "contact.phone": c.Phone} {
		if len(v) > maxContactLength {
			return model.Contact{}, model.NewValidationError(field, "長すぎます")
		}
	}
	return c, nil
}

// ListForJob は求人への応募を応募順に返す。求人の会社の所有者（または管理者）のみ参照できる。
func (s *Service) ListForJob(ctx context.Context, actor model.Actor, jobID string) ([]*model.Application, error) {
	if err := s.authorizeJob(ctx, actor, jobID); err != nil {
		return nil, err
	}
	apps, err := s.appRepo.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	if apps == nil {
		apps = []*model.Application{}
	}
	return apps, nil
}

// ListForCandidate は候補者の応募を求人名・会社名付きで新しい順に返す。
func (s *Service) ListForCandidate(ctx context.Context, candidateID string) ([]model.ApplicationWithJob, error) {
	apps, err := s.appRepo.ListByCandidateID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("応募履歴の取得に失敗しました: %w", err)
	}
	if apps == nil {
		apps = []model.ApplicationWithJob{}
	}
	return apps, nil
}

// SetStatus は応募の選考状況を変更する。求人の会社の所有者のみ変更できる。
// 定義済みのステータスであればどの状態からでも変更でき、誤操作の訂正にも使える。
func (s *Service) SetStatus(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	canonical, ok := model.ParseApplicationStatus(string(status))
	if !ok {
		return nil, model.NewInvalidStatusError(string(status))
	}

	before, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if before == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	if err := s.authorizeOwner(ctx, actor, before.JobID); err != nil {
		return nil, err
	}

	app, err := s.appRepo.UpdateStatus(ctx, applicationID, canonical)
	if err != nil {
		return nil, fmt.Errorf("応募ステータスの更新に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}

	if before.Status != app.Status {
		slog.Info("application status changed",
			slog.String("application_id", app.ID),
			slog.String("from", string(before.Status)),
			slog.String("to", string(app.Status)),
			slog.String("actor_id", actor.UserID),
		)
		s.publisher.Publish(ctx, events.New(events.TypeApplicationStatusChanged, app.ID, string(app.Status), actor.UserID))
	}
	return app, nil
}

// authorizeJob は求人の存在を確認し、actorが会社の所有者か管理者であることを確認する。
func (s *Service) authorizeJob(ctx context.Context, actor model.Actor, jobID string) error {
	if actor.Is(model.RoleAdmin) {
		j, err := s.jobRepo.FindByID(ctx, jobID)
		if err != nil {
			return fmt.Errorf("求人の取得に失敗しました: %w", err)
		}
		if j == nil {
			return model.NewJobNotFoundError(jobID)
		}
		return nil
	}
	return s.authorizeOwner(ctx, actor, jobID)
}

// authorizeOwner はactorが求人の会社の所有者であることを確認する。
func (s *Service) authorizeOwner(ctx context.Context, actor model.Actor, jobID string) error {
	j, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if j == nil {
		return model.NewJobNotFoundError(jobID)
	}
	c, err := s.companyRepo.FindByID(ctx, j.CompanyID)
	if err != nil {
		return fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil || actor.UserID == "" || c.OwnerID != actor.UserID {
		return model.NewForbiddenError("求人の会社の所有者ではありません")
	}
	return nil
}
