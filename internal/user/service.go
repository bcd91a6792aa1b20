// Package user はユーザー（候補者・雇用者・管理者）管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/jobbridge/internal/events"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
	"github.com/hitoshi/jobbridge/internal/security"
)

const (
	maxNameLength   = 200
	maxSkills       = 50
	maxFieldLength  = 2000
	maxResumeRefLen = 1024
)

// CreateUserInput はユーザー作成時の入力値。
type CreateUserInput struct {
	Role         model.Role
	Email        string
	Name         string
	Mobile       string
	PasswordHash string
	Skills       []string
	Experience   string
	Education    string
}

// ProfileInput はプロフィール更新の入力値。nilの項目は変更しない。
type ProfileInput struct {
	Name       *string
	Mobile     *string
	Skills     *[]string
	Experience *string
	Education  *string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.Sanitizer
	publisher   events.Publisher
}

// NewService はServiceの新しいインスタンスを生成する。
// publisherがnilの場合はイベントを発行しない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.Sanitizer,
	publisher events.Publisher,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		publisher:   publisher,
	}
}

// CreateUser は自己登録によるユーザーを作成する。
// ロールは candidate または employer のみ。admin は CreateAdmin で作成する。
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if in.Role != model.RoleCandidate && in.Role != model.RoleEmployer {
		return nil, model.NewValidationError("role", "candidate または employer を指定してください")
	}
	return s.create(ctx, in)
}

// CreateAdmin は管理者ユーザーを作成する。create-adminサブコマンドからのみ呼ばれる。
func (s *Service) CreateAdmin(ctx context.Context, in CreateUserInput) (*model.User, error) {
	in.Role = model.RoleAdmin
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := s.sanitizer.PlainText(in.Name)
	if name == "" {
		return nil, model.NewValidationError("name", "必須項目です")
	}
	if len(name) > maxNameLength {
		return nil, model.NewValidationError("name", "長すぎます")
	}
	skills, err := normalizeSkills(in.Skills)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &model.User{
		ID:                 uuid.New().String(),
		Role:               in.Role,
		Email:              email,
		Name:               name,
		Mobile:             s.sanitizer.PlainText(in.Mobile),
		PasswordHash:       in.PasswordHash,
		AccountStatus:      model.AccountStatusActive,
		ResumeVerification: model.ResumeVerificationNone,
		Skills:             skills,
		Experience:         s.sanitizer.PlainText(in.Experience),
		Education:          s.sanitizer.PlainText(in.Education),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	s.publisher.Publish(ctx, events.New(events.TypeUserRegistered, u.ID, string(u.Role), u.ID))
	return u, nil
}

// GetUser はユーザーのスナップショットを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// UpdateProfile はプロフィール項目を更新する。ステータス類は変更しない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := s.sanitizer.PlainText(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("name", "必須項目です")
		}
		if len(name) > maxNameLength {
			return nil, model.NewValidationError("name", "長すぎます")
		}
		u.Name = name
	}
	if in.Mobile != nil {
		u.Mobile = s.sanitizer.PlainText(*in.Mobile)
	}
	if in.Skills != nil {
		skills, err := normalizeSkills(*in.Skills)
		if err != nil {
			return nil, err
		}
		u.Skills = skills
	}
	if in.Experience != nil {
		if u.Experience = s.sanitizer.PlainText(*in.Experience); len(u.Experience) > maxFieldLength {
			return nil, model.NewValidationError("experience", "長すぎます")
		}
	}
	if in.Education != nil {
		if u.Education = s.sanitizer.PlainText(*in.Education); len(u.Education) > maxFieldLength {
			return nil, model.NewValidationError("education", "長すぎます")
		}
	}
	u.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return u, nil
}

// AttachResume は候補者の履歴書参照を登録し、審査状態をPENDINGに戻す。
// 参照はファイルストレージ上のパスまたはURIで、中身は解釈しない。
func (s *Service) AttachResume(ctx context.Context, userID, resumeRef string) (*model.User, error) {
	resumeRef = strings.TrimSpace(resumeRef)
	if resumeRef == "" {
		return nil, model.NewValidationError("resume_ref", "必須項目です")
	}
	if len(resumeRef) > maxResumeRefLen {
		return nil, model.NewValidationError("resume_ref", "長すぎます")
	}

	u, err := s.userRepo.AttachResume(ctx, userID, resumeRef)
	if err != nil {
		return nil, fmt.Errorf("履歴書の登録に失敗しました: %w", err)
	}
	if u == nil {
		return nil, s.candidateLookupError(ctx, userID)
	}

	s.publisher.Publish(ctx, events.New(events.TypeResumeVerification, u.ID, string(u.ResumeVerification), u.ID))
	return u, nil
}

// SetResumeVerification は候補者の履歴書審査状態を設定する。モデレーションからのみ呼ばれる。
// 履歴書が未提出の候補者は RESUME_NOT_SUBMITTED となる。同じ状態の再設定はエラーにならない。
func (s *Service) SetResumeVerification(ctx context.Context, actorID, userID string, status model.ResumeVerification) (*model.User, error) {
	if _, ok := model.ParseResumeVerification(string(status)); !ok {
		return nil, model.NewInvalidStatusError(string(status))
	}

	before, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	u, err := s.userRepo.SetResumeVerification(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("履歴書審査状態の更新に失敗しました: %w", err)
	}
	if u == nil {
		return nil, s.resumeVerificationError(ctx, userID)
	}

	if before == nil || before.ResumeVerification != u.ResumeVerification {
		slog.Info("resume verification changed",
			slog.String("user_id", u.ID),
			slog.String("status", string(u.ResumeVerification)),
			slog.String("actor_id", actorID),
		)
		s.publisher.Publish(ctx, events.New(events.TypeResumeVerification, u.ID, string(u.ResumeVerification), actorID))
	}
	return u, nil
}

// SetAccountStatus はアカウント状態を設定する。停止時は全セッションを破棄する。
func (s *Service) SetAccountStatus(ctx context.Context, actorID, userID string, status model.AccountStatus) (*model.User, error) {
	if _, ok := model.ParseAccountStatus(string(status)); !ok {
		return nil, model.NewInvalidStatusError(string(status))
	}

	u, err := s.userRepo.SetAccountStatus(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("アカウント状態の更新に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	if status == model.AccountStatusSuspended {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return nil, fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	slog.Info("account status changed",
		slog.String("user_id", u.ID),
		slog.String("status", string(u.AccountStatus)),
		slog.String("actor_id", actorID),
	)
	s.publisher.Publish(ctx, events.New(events.TypeAccountStatusChanged, u.ID, string(u.AccountStatus), actorID))
	return u, nil
}

// ListByResumeVerification は指定の履歴書審査状態の候補者を返す。
func (s *Service) ListByResumeVerification(ctx context.Context, status model.ResumeVerification) ([]*model.User, error) {
	users, err := s.userRepo.ListByResumeVerification(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("候補者一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// ListUsers は全ユーザーを返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// DeleteUser はユーザーを削除する。
// 所有する会社とその求人・応募、本人の応募、セッションを同一トランザクションで削除する。
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) (*model.CascadeResult, error) {
	result, err := s.userRepo.DeleteCascade(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if result == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("user deleted",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID),
		slog.Int64("companies", result.Companies),
		slog.Int64("jobs", result.Jobs),
		slog.Int64("applications", result.Applications),
		slog.Int64("sessions", result.Sessions),
	)
	s.publisher.Publish(ctx, events.New(events.TypeUserDeleted, userID, "", actorID))
	return result, nil
}

// candidateLookupError は候補者限定の更新が0件だった理由を判定する。
func (s *Service) candidateLookupError(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}
	return model.NewInvalidRoleError(model.RoleCandidate)
}

// resumeVerificationError は履歴書審査の更新対象が無かった理由をエラーにする。
func (s *Service) resumeVerificationError(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	switch {
	case u == nil:
		return model.NewUserNotFoundError()
	case u.Role != model.RoleCandidate:
		return model.NewInvalidRoleError(model.RoleCandidate)
	default:
		return model.NewResumeNotSubmittedError()
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", model.NewValidationError("email", "必須項目です")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "メールアドレスの形式が正しくありません")
	}
	return email, nil
}

func normalizeSkills(raw []string) ([]string, error) {
	skills := model.NormalizeSkills(raw)
	if len(skills) > maxSkills {
		return nil, model.NewValidationError("skills", fmt.Sprintf("%d件までです", maxSkills))
	}
	return skills, nil
}
