// Package company は雇用者の会社プロフィール管理のドメインロジックを提供する。
package company

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/jobbridge/internal/events"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
	"github.com/hitoshi/jobbridge/internal/security"
)

const (
	maxNameLength  = 200
	maxFieldLength = 500
)

// FeedDetector は採用ページURLからフィードURLを特定する。
type FeedDetector interface {
	Detect(ctx context.Context, inputURL string) (string, error)
}

// Profile は会社プロフィールの入力値。
type Profile struct {
	Name               string
	Industry           string
	Type               string
	Size               string
	Location           string
	Website            string
	LogoRef            string
	VerificationDocRef string
}

// ProfilePatch は会社プロフィールの部分更新。nilの項目は変更しない。
type ProfilePatch struct {
	Name               *string
	Industry           *string
	Type               *string
	Size               *string
	Location           *string
	Website            *string
	LogoRef            *string
	VerificationDocRef *string
}

// Service は会社管理のサービス層。
type Service struct {
	companyRepo repository.CompanyRepository
	feedRepo    repository.CompanyFeedRepository
	detector    FeedDetector
	guard       security.URLGuard
	sanitizer   security.Sanitizer
	publisher   events.Publisher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	companyRepo repository.CompanyRepository,
	feedRepo repository.CompanyFeedRepository,
	detector FeedDetector,
	guard security.URLGuard,
	sanitizer security.Sanitizer,
	publisher events.Publisher,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		companyRepo: companyRepo,
		feedRepo:    feedRepo,
		detector:    detector,
		guard:       guard,
		sanitizer:   sanitizer,
		publisher:   publisher,
	}
}

// CreateCompany は雇用者の会社を作成する。初期ステータスはPENDING。
// 雇用者1人につき1社のみで、2社目は COMPANY_ALREADY_EXISTS になる。
func (s *Service) CreateCompany(ctx context.Context, actor model.Actor, in Profile) (*model.Company, error) {
	if !actor.Is(model.RoleEmployer) {
		return nil, model.NewInvalidRoleError(model.RoleEmployer)
	}

	now := time.Now()
	c := &model.Company{
		ID:        uuid.New().String(),
		OwnerID:   actor.UserID,
		Status:    model.CompanyStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyPatch(c, patchFromProfile(in)); err != nil {
		return nil, err
	}

	if err := s.companyRepo.Create(ctx, c); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewCompanyExistsError()
		case errors.Is(err, repository.ErrPreconditionFailed):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("会社の作成に失敗しました: %w", err)
	}

	slog.Info("company created",
		slog.String("company_id", c.ID),
		slog.String("owner_id", c.OwnerID),
	)
	s.publisher.Publish(ctx, events.New(events.TypeCompanyCreated, c.ID, string(c.Status), actor.UserID))
	return c, nil
}

// UpdateCompany は会社プロフィールを更新する。ステータスに関わらず編集でき、
// ステータスはリセットしない。所有者以外は FORBIDDEN。
func (s *Service) UpdateCompany(ctx context.Context, actor model.Actor, companyID string, patch ProfilePatch) (*model.Company, error) {
	c, err := s.ownedCompany(ctx, actor, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.applyPatch(c, patch); err != nil {
		return nil, err
	}
	updated, err := s.companyRepo.UpdateProfile(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("会社プロフィールの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}
	return updated, nil
}

// SetStatus は会社のステータスをAPPROVEDまたはREJECTEDに設定する。モデレーションからのみ呼ばれる。
// 同じステータスの再設定はエラーにならない。
func (s *Service) SetStatus(ctx context.Context, actorID, companyID string, status model.CompanyStatus) (*model.Company, error) {
	if status != model.CompanyStatusApproved && status != model.CompanyStatusRejected {
		return nil, model.NewInvalidStatusError(string(status))
	}

	before, err := s.companyRepo.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if before == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}

	c, err := s.companyRepo.SetStatus(ctx, companyID, status)
	if err != nil {
		return nil, fmt.Errorf("会社ステータスの更新に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}

	if before.Status != c.Status {
		slog.Info("company status changed",
			slog.String("company_id", c.ID),
			slog.String("from", string(before.Status)),
			slog.String("to", string(c.Status)),
			slog.String("actor_id", actorID),
		)
		s.publisher.Publish(ctx, events.New(events.TypeCompanyStatusChanged, c.ID, string(c.Status), actorID))
	}
	return c, nil
}

// DeleteCompany は会社と求人・応募・採用フィードを同一トランザクションで削除する。
func (s *Service) DeleteCompany(ctx context.Context, actorID, companyID string) (*model.CascadeResult, error) {
	result, err := s.companyRepo.DeleteCascade(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("会社の削除に失敗しました: %w", err)
	}
	if result == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}

	slog.Info("company deleted",
		slog.String("company_id", companyID),
		slog.String("actor_id", actorID),
		slog.Int64("jobs", result.Jobs),
		slog.Int64("applications", result.Applications),
	)
	s.publisher.Publish(ctx, events.New(events.TypeCompanyDeleted, companyID, "", actorID))
	return result, nil
}

// GetStatus は会社のステータスを返す。求人作成時のゲートとして使われる。
func (s *Service) GetStatus(ctx context.Context, companyID string) (model.CompanyStatus, error) {
	c, err := s.Get(ctx, companyID)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// Get は会社を返す。
func (s *Service) Get(ctx context.Context, companyID string) (*model.Company, error) {
	c, err := s.companyRepo.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyNotFoundError(companyID)
	}
	return c, nil
}

// GetByOwner は雇用者が所有する会社を返す。未登録の場合は COMPANY_REQUIRED。
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (*model.Company, error) {
	c, err := s.companyRepo.FindByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("会社の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyRequiredError()
	}
	return c, nil
}

// ListByStatus は指定ステータスの会社を返す。
func (s *Service) ListByStatus(ctx context.Context, status model.CompanyStatus) ([]*model.Company, error) {
	companies, err := s.companyRepo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("会社一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

// List は全会社を返す。
func (s *Service) List(ctx context.Context) ([]*model.Company, error) {
	companies, err := s.companyRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("会社一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

// SetCareersFeed は承認済みの会社に採用フィードを登録する。
// 採用ページのURLが渡された場合はページ内のフィードリンクを検出して登録する。
// 空文字の場合は登録を解除し、nilを返す。
func (s *Service) SetCareersFeed(ctx context.Context, actor model.Actor, companyID, rawURL string) (*model.CompanyFeed, error) {
	c, err := s.ownedCompany(ctx, actor, companyID)
	if err != nil {
		return nil, err
	}

	if rawURL == "" {
		if err := s.feedRepo.DeleteByCompanyID(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("採用フィードの削除に失敗しました: %w", err)
		}
		slog.Info("careers feed removed", slog.String("company_id", c.ID))
		return nil, nil
	}

	if c.Status != model.CompanyStatusApproved {
		return nil, model.NewCompanyNotApprovedError(c.Status)
	}

	feedURL, err := s.detector.Detect(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	feed := &model.CompanyFeed{
		CompanyID:   c.ID,
		FeedURL:     feedURL,
		FetchStatus: model.FetchStatusActive,
		NextFetchAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.feedRepo.Upsert(ctx, feed); err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, model.NewCompanyNotFoundError(c.ID)
		}
		return nil, fmt.Errorf("採用フィードの登録に失敗しました: %w", err)
	}

	slog.Info("careers feed registered",
		slog.String("company_id", c.ID),
		slog.String("feed_url", feedURL),
	)
	return feed, nil
}

// GetCareersFeed は会社の採用フィードを返す。未登録の場合はnil。
func (s *Service) GetCareersFeed(ctx context.Context, actor model.Actor, companyID string) (*model.CompanyFeed, error) {
	if _, err := s.ownedCompany(ctx, actor, companyID); err != nil {
		return nil, err
	}
	feed, err := s.feedRepo.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("採用フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// ownedCompany は会社を取得し、actorが所有者であることを確認する。
func (s *Service) ownedCompany(ctx context.Context, actor model.Actor, companyID string) (*model.Company, error) {
	c, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actor.UserID {
		return nil, model.NewForbiddenError("会社の所有者ではありません")
	}
	return c, nil
}

func patchFromProfile(p Profile) ProfilePatch {
	return ProfilePatch{
		Name:               &p.Name,
		Industry:           &p.Industry,
		Type:               &p.Type,
		Size:               &p.Size,
		Location:           &p.Location,
		Website:            &p.Website,
		LogoRef:            &p.LogoRef,
		VerificationDocRef: &p.VerificationDocRef,
	}
}

// applyPatch は入力をサニタイズ・検証してから会社に反映する。
// 検証に失敗した場合は会社を変更しない。
func (s *Service) applyPatch(c *model.Company, p ProfilePatch) error {
	next := *c

	if p.Name != nil {
		next.Name = s.sanitizer.PlainText(*p.Name)
		if next.Name == "" {
			return model.NewValidationError("name", "必須項目です")
		}
		if len(next.Name) > maxNameLength {
			return model.NewValidationError("name", "長すぎます")
		}
	}

	plain := []struct {
		field string
		in    *string
		out   *string
	}{
		{"industry", p.Industry, &next.Industry},
		{"type", p.Type, &next.Type},
		{"size", p.Size, &next.Size},
		{"location", p.Location, &next.Location},
		{"logo_ref", p.LogoRef, &next.LogoRef},
		{"verification_doc_ref", p.VerificationDocRef, &next.VerificationDocRef},
	}
	for _, f := range plain {
		if f.in == nil {
			continue
		}
		*f.out = s.sanitizer.PlainText(*f.in)
		if len(*f.out) > maxFieldLength {
			return model.NewValidationError(f.field, "長すぎます")
		}
	}

	if p.Website != nil {
		next.Website = s.sanitizer.PlainText(*p.Website)
		if next.Website != "" {
			if err := s.guard.ValidateURL(next.Website); err != nil {
				return model.NewInvalidURLError(err.Error())
			}
		}
	}

	*c = next
	return nil
}
