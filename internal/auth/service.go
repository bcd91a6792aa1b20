// Package auth はパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// bcryptは72バイトを超える入力を扱えない
const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// UserCreator はユーザー作成の委譲先。user.Serviceが実装する。
type UserCreator interface {
	CreateUser(ctx context.Context, in user.CreateUserInput) (*model.User, error)
	CreateAdmin(ctx context.Context, in user.CreateUserInput) (*model.User, error)
}

// UserFinder は認証に必要なユーザー検索。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// SessionStore はセッションの永続化。repository.SessionRepositoryの部分集合。
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int
}

// RegisterInput は自己登録の入力値。
type RegisterInput struct {
	Role       string
	Email      string
	Password   string
	Name       string
	Mobile     string
	Skills     []string
	Experience string
	Education  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users       UserCreator
	userFinder  UserFinder
	sessionRepo SessionStore
	config      ServiceConfig

	// 存在しないメールアドレスでもパスワード照合と同程度の時間をかけるためのハッシュ
	dummyHash []byte
}

// NewService はServiceを生成する。
func NewService(users UserCreator, userFinder UserFinder, sessionRepo SessionStore, config ServiceConfig) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("jobbridge-dummy-password"), config.BcryptCost)
	return &Service{
		users:       users,
		userFinder:  userFinder,
		sessionRepo: sessionRepo,
		config:      config,
		dummyHash:   dummy,
	}
}

// Register は候補者または雇用者として登録し、ログイン済みのセッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *model.Session, error) {
	role, ok := model.ParseRole(in.Role)
	if !ok || role == model.RoleAdmin {
		return nil, nil, model.NewValidationError("role", "candidate または employer を指定してください")
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	u, err := s.users.CreateUser(ctx, user.CreateUserInput{
		Role:         role,
		Email:        in.Email,
		Name:         in.Name,
		Mobile:       in.Mobile,
		PasswordHash: hash,
		Skills:       in.Skills,
		Experience:   in.Experience,
		Education:    in.Education,
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, session, nil
}

// Login はメールアドレスとパスワードを照合し、セッションを発行する。
// 停止中のアカウントは ACCOUNT_SUSPENDED、照合失敗は INVALID_CREDENTIALS を返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	u, err := s.userFinder.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if u.IsSuspended() {
		return nil, nil, model.NewAccountSuspendedError()
	}

	session, err := s.createSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("user logged in",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合は UNAUTHORIZED を返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	u, err := s.userFinder.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUnauthorizedError()
	}
	return u, nil
}

// CreateAdmin は管理者アカウントを作成する。create-adminサブコマンドから呼ばれる。
func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (*model.User, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateAdmin(ctx, user.CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", model.NewValidationError("password", fmt.Sprintf("%d文字以上で入力してください", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return "", model.NewValidationError("password", fmt.Sprintf("%dバイト以下で入力してください", maxPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", model.NewValidationError("password", "長すぎます")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
