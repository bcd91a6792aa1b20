// Package job は求人の作成・公開・検索のドメインロジックを提供する。
package job

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

// 一覧取得のページング
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 20000
	maxShortFieldLength  = 200
	maxSkills            = 50
)

// Input は求人作成時の入力値。
type Input struct {
	Title             string
	Category          string
	SubCategory       string
	Location          string
	Type              string
	Salary            string
	Experience        string
	Vacancies         *int
	Shift             string
	WorkMode          string
	FoodAllowance     string
	Accommodation     string
	EducationRequired string
	Deadline          *time.Time
	Description       string
	Skills            []string
}

// Service は求人管理のサービス層。
type Service struct {
	jobRepo     repository.JobRepository
	companyRepo repository.CompanyRepository
	sanitizer   security.Sanitizer
	publisher   events.Publisher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	jobRepo repository.JobRepository,
	companyRepo repository.CompanyRepository,
	sanitizer security.Sanitizer,
	publisher events.Publisher,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		jobRepo:     jobRepo,
		companyRepo: companyRepo,
		sanitizer:   sanitizer,
		publisher:   publisher,
	}
}

// CreateJob は雇用者の会社に求人を作成する。初期ステータスはPENDING。
// 会社が未登録なら COMPANY_REQUIRED、APPROVEDでなければ COMPANY_NOT_APPROVED。
// 承認状態は挿入文の中でも再確認されるため、並行した却下とすれ違うことはない。
func (s *Service) CreateJob(ctx context.Context, actor model.Actor, in Input) (*model.Job, error) {
	if !actor.Is(model.RoleEmployer) {
		return nil, model.NewInvalidRoleError(model.RoleEmployer)
	}

	c, err := s.companyRepo.FindByOwnerID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyRequiredError()
	}
	if c.Status != model.CompanyStatusApproved {
		return nil, model.NewCompanyNotApprovedError(c.Status)
	}

	j, err := s.build(c.ID, in)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, j); err != nil {
		return nil, err
	}

	slog.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("company_id", j.CompanyID),
	)
	s.publisher.Publish(ctx, events.New(events.TypeJobCreated, j.ID, string(j.Status), actor.UserID))
	return j, nil
}

// Import は採用フィードのエントリを求人として取り込む。初期ステータスはPENDINGで、
// 手動作成と同じくモデレーションを経て公開される。
// 同じ会社で externalRef が取り込み済みの場合は JOB_ALREADY_IMPORTED を返す。
func (s *Service) Import(ctx context.Context, companyID, externalRef string, in Input) (*model.Job, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, model.NewValidationError("external_ref", "必須項目です")
	}
	if in.Type == "" {
		in.Type = string(model.JobTypeFullTime)
	}

	j, err := s.build(companyID, in)
	if err != nil {
		return nil, err
	}
	j.ExternalRef = externalRef

	if err := s.insert(ctx, j); err != nil {
		return nil, err
	}

	slog.Info("job imported",
		slog.String("job_id", j.ID),
		slog.String("company_id", companyID),
		slog.String("external_ref", externalRef),
	)
	s.publisher.Publish(ctx, events.New(events.TypeJobCreated, j.ID, string(j.Status), ""))
	return j, nil
}

// insert は承認済み会社に対する条件付き挿入を行い、失敗理由をAPIErrorに変換する。
func (s *Service) insert(ctx context.Context, j *model.Job) error {
	err := s.jobRepo.CreateForApprovedCompany(ctx, j)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		return model.NewJobAlreadyImportedError(j.ExternalRef)
	case errors.Is(err, repository.ErrPreconditionFailed):
		c, findErr := s.companyRepo.FindByID(ctx, j.CompanyID)
		if findErr != nil {
			return fmt.Errorf("会社の取得に失敗しました: %w", findErr)
		}
		if c == nil {
			return model.NewCompanyRequiredError()
		}
		return model.NewCompanyNotApprovedError(c.Status)
	default:
		return fmt.Errorf("求人の作成に失敗しました: %w", err)
	}
}

// build は入力を検証・サニタイズして求人を組み立てる。
func (s *Service) build(companyID string, in Input) (*model.Job, error) {
	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return nil, model.NewValidationError("title", "必須項目です")
	}
	if len(title) > maxTitleLength {
		return nil, model.NewValidationError("title", "長すぎます")
	}

	jobType, ok := model.ParseJobType(in.Type)
	if !ok {
		return nil, model.NewValidationError("type", "Full Time, Part Time, Contract, Freelance のいずれかを指定してください")
	}
	if in.Vacancies != nil && *in.Vacancies <= 0 {
		return nil, model.NewValidationError("vacancies", "1以上を指定してください")
	}
	food, ok := model.ParsePerk(in.FoodAllowance)
	if !ok {
		return nil, model.NewValidationError("food_allowance", "No, Yes, Subsidized/Assistance のいずれかを指定してください")
	}
	accommodation, ok := model.ParsePerk(in.Accommodation)
	if !ok {
		return nil, model.NewValidationError("accommodation", "No, Yes, Subsidized/Assistance のいずれかを指定してください")
	}

	description := s.sanitizer.SanitizeRichText(in.Description)
	if len(description) > maxDescriptionLength {
		return nil, model.NewValidationError("description", "長すぎます")
	}
	skills := model.NormalizeSkills(in.Skills)
	if len(skills) > maxSkills {
		return nil, model.NewValidationError("skills", fmt.Sprintf("%d件までです", maxSkills))
	}

	j := &model.Job{
		ID:            uuid.New().String(),
		CompanyID:     companyID,
		Title:         title,
		Type:          jobType,
		Vacancies:     in.Vacancies,
		FoodAllowance: food,
		Accommodation: accommodation,
		Description:   description,
		Skills:        skills,
		Status:        model.JobStatusPending,
	}
	if in.Deadline != nil {
		d := time.Date(in.Deadline.Year(), in.Deadline.Month(), in.Deadline.Day(), 0, 0, 0, 0, time.UTC)
		j.Deadline = &d
	}

	short := []struct {
		field string
		in    string
		out   *string
	}{
		{"category", in.Category, &j.Category},
		{"sub_category", in.SubCategory, &j.SubCategory},
		{"location", in.Location, &j.Location},
		{"salary", in.Salary, &j.Salary},
		{"experience", in.Experience, &j.Experience},
		{"shift", in.Shift, &j.Shift},
		{"work_mode", in.WorkMode, &j.WorkMode},
		{"education_required", in.EducationRequired, &j.EducationRequired},
	}
	for _, f := range short {
		*f.out = s.sanitizer.PlainText(f.in)
		if len(*f.out) > maxShortFieldLength {
			return nil, model.NewValidationError(f.field, "長すぎます")
		}
	}

	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	return j, nil
}

// ListJobs は求人を検索する。
// filter.OwnerIDが空なら公開一覧（OPENかつ会社がAPPROVED）、指定されていれば
// その雇用者の全ステータスの求人を返す。他人の一覧は FORBIDDEN（管理者を除く）。
func (s *Service) ListJobs(ctx context.Context, actor model.Actor, filter model.JobFilter) ([]*model.Job, error) {
	if filter.OwnerID != "" && filter.OwnerID != actor.UserID && !actor.Is(model.RoleAdmin) {
		return nil, model.NewForbiddenError("他の雇用者の求人一覧は参照できません")
	}
	if filter.Type != "" {
		// 列挙値の表記ゆれ（"full time" など）は正規化し、部分一致はそのまま渡す
		if t, ok := model.ParseJobType(filter.Type); ok {
			filter.Type = string(t)
		}
	}
	filter.Limit, filter.Offset = normalizePaging(filter.Limit, filter.Offset)

	jobs, err := s.jobRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("求人一覧の取得に失敗しました: %w", err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}

func normalizePaging(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetJob は求人を返す。
func (s *Service) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if j == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return j, nil
}

// GetVisibleJob はactorが閲覧できる求人を返す。
// 所有者と管理者は全ステータス、それ以外は公開中（OPENかつ会社がAPPROVED）のみ閲覧でき、
// 非公開の求人は存在しないものとして JOB_NOT_FOUND を返す。
func (s *Service) GetVisibleJob(ctx context.Context, actor model.Actor, jobID string) (*model.Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if actor.Is(model.RoleAdmin) {
		return j, nil
	}

	c, err := s.companyRepo.FindByID(ctx, j.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	if c.OwnerID == actor.UserID && actor.UserID != "" {
		return j, nil
	}
	if j.Status != model.JobStatusOpen || c.Status != model.CompanyStatusApproved {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return j, nil
}

// SetStatus は求人のステータスをOPENまたはREJECTEDに設定する。モデレーションからのみ呼ばれる。
// 同じステータスの再設定はエラーにならない。募集終了済みの求人は JOB_CLOSED となる。
func (s *Service) SetStatus(ctx context.Context, actorID, jobID string, status model.JobStatus) (*model.Job, error) {
	if status != model.JobStatusOpen && status != model.JobStatusRejected {
		return nil, model.NewInvalidStatusError(string(status))
	}
	return s.transition(ctx, actorID, jobID, status)
}

// CloseJob は所有者が求人の募集を終了する。
func (s *Service) CloseJob(ctx context.Context, actor model.Actor, jobID string) (*model.Job, error) {
	if _, err := s.ownedJob(ctx, actor, jobID); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor.UserID, jobID, model.JobStatusClosed)
}

func (s *Service) transition(ctx context.Context, actorID, jobID string, status model.JobStatus) (*model.Job, error) {
	before, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if before == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}

	j, err := s.jobRepo.SetStatus(ctx, jobID, status)
	if err != nil {
		return nil, fmt.Errorf("求人ステータスの更新に失敗しました: %w", err)
	}
	if j == nil {
		return nil, s.transitionError(ctx, jobID)
	}

	if before.Status != j.Status {
		slog.Info("job status changed",
			slog.String("job_id", j.ID),
			slog.String("from", string(before.Status)),
			slog.String("to", string(j.Status)),
			slog.String("actor_id", actorID),
		)
		s.publisher.Publish(ctx, events.New(events.TypeJobStatusChanged, j.ID, string(j.Status), actorID))
	}
	return j, nil
}

// transitionError はステータス更新が行われなかった理由を判定する。
func (s *Service) transitionError(ctx context.Context, jobID string) error {
	j, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if j != nil && j.Status == model.JobStatusClosed {
		return model.NewJobClosedError()
	}
	return model.NewJobNotFoundError(jobID)
}

// DeleteJob は所有者が求人を削除する。応募も同一トランザクションで削除される。
func (s *Service) DeleteJob(ctx context.Context, actor model.Actor, jobID string) (*model.CascadeResult, error) {
	if _, err := s.ownedJob(ctx, actor, jobID); err != nil {
		return nil, err
	}

	result, err := s.jobRepo.DeleteCascade(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の削除に失敗しました: %w", err)
	}
	if result == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}

	slog.Info("job deleted",
		slog.String("job_id", jobID),
		slog.String("actor_id", actor.UserID),
		slog.Int64("applications", result.Applications),
	)
	s.publisher.Publish(ctx, events.New(events.TypeJobDeleted, jobID, "", actor.UserID))
	return result, nil
}

// CloseExpired は締切日を過ぎたPENDING/OPENの求人をCLOSEDにする。ワーカーから呼ばれる。
func (s *Service) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.jobRepo.CloseExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("締切済み求人のクローズに失敗しました: %w", err)
	}
	return n, nil
}

// ListByStatus は指定ステータスの求人を返す。
func (s *Service) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	jobs, err := s.jobRepo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("求人一覧の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// ownedJob は求人を取得し、actorが求人の会社の所有者であることを確認する。
func (s *Service) ownedJob(ctx context.Context, actor model.Actor, jobID string) (*model.Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c, err := s.companyRepo.FindByID(ctx, j.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil || actor.UserID == "" || c.OwnerID != actor.UserID {
		return nil, model.NewForbiddenError("求人の会社の所有者ではありません")
	}
	return j, nil
}
