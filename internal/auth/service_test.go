package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository/memory"
	"github.com/hitoshi/jobbridge/internal/security"
	"github.com/hitoshi/jobbridge/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// --- モック定義 ---

type mockUserFinder struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserFinder) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

var testConfig = ServiceConfig{SessionMaxAge: 86400, BcryptCost: bcrypt.MinCost}

// newStoreService はメモリストアとuser.Serviceで組み立てたServiceを返す。
func newStoreService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	users := user.NewService(store.Users(), store.Sessions(), security.NewContentSanitizer(), nil)
	return NewService(users, store.Users(), store.Sessions(), testConfig), store
}

// --- テスト ---

func TestRegister_CreatesUserAndSession(t *testing.T) {
	svc, store := newStoreService(t)
	ctx := context.Background()

	u, session, err := svc.Register(ctx, RegisterInput{
		Role: "Candidate", Email: "Asha@Example.com", Password: "correct horse", Name: "Asha",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u.Role != model.RoleCandidate || u.Email != "asha@example.com" {
		t.Errorf("user = %+v", u)
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct horse" {
		t.Error("password must be stored as a bcrypt hash")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if session.ExpiresAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want about 24h ahead", session.ExpiresAt)
	}
	if got, _ := store.Sessions().FindByID(ctx, session.ID); got == nil || got.UserID != u.ID {
		t.Errorf("stored session = %+v", got)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newStoreService(t)

	tests := []struct {
		name string
		in   RegisterInput
		code string
	}{
		{"管理者の自己登録", RegisterInput{Role: "admin", Email: "a@example.com", Password: "password1", Name: "A"}, model.ErrCodeValidation},
		{"未定義のロール", RegisterInput{Role: "guest", Email: "a@example.com", Password: "password1", Name: "A"}, model.ErrCodeValidation},
		{"短いパスワード", RegisterInput{Role: "employer", Email: "a@example.com", Password: "short", Name: "A"}, model.ErrCodeValidation},
		{"不正なメールアドレス", RegisterInput{Role: "employer", Email: "not-an-email", Password: "password1", Name: "A"}, model.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			if !model.IsCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newStoreService(t)
	ctx := context.Background()
	in := RegisterInput{Role: "employer", Email: "boss@example.com", Password: "password1", Name: "Boss"}

	if _, _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	in.Email = "BOSS@example.com"
	if _, _, err := svc.Register(ctx, in); !model.IsCode(err, model.ErrCodeDuplicateEmail) {
		t.Errorf("err = %v, want DUPLICATE_EMAIL", err)
	}
}

func TestLogin(t *testing.T) {
	svc, store := newStoreService(t)
	ctx := context.Background()
	u, _, err := svc.Register(ctx, RegisterInput{Role: "candidate", Email: "ravi@example.com", Password: "s3cret-pass", Name: "Ravi"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("正しい資格情報", func(t *testing.T) {
		got, session, err := svc.Login(ctx, " RAVI@example.com ", "s3cret-pass")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if got.ID != u.ID || session.UserID != u.ID {
			t.Errorf("user = %s, session user = %s", got.ID, session.UserID)
		}
	})

	t.Run("誤ったパスワード", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "ravi@example.com", "wrong-pass")
		if !model.IsCode(err, model.ErrCodeInvalidCredentials) {
			t.Errorf("err = %v, want INVALID_CREDENTIALS", err)
		}
	})

	t.Run("未登録のメールアドレス", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass")
		if !model.IsCode(err, model.ErrCodeInvalidCredentials) {
			t.Errorf("err = %v, want INVALID_CREDENTIALS", err)
		}
	})

	t.Run("停止中のアカウント", func(t *testing.T) {
		if _, err := store.Users().SetAccountStatus(ctx, u.ID, model.AccountStatusSuspended); err != nil {
			t.Fatalf("seed: %v", err)
		}
		_, _, err := svc.Login(ctx, "ravi@example.com", "s3cret-pass")
		if !model.IsCode(err, model.ErrCodeAccountSuspended) {
			t.Errorf("err = %v, want ACCOUNT_SUSPENDED", err)
		}
	})
}

func TestLogin_RepositoryError(t *testing.T) {
	finder := &mockUserFinder{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("db error")
		},
	}
	svc := NewService(nil, finder, &mockSessionRepo{}, testConfig)

	_, _, err := svc.Login(context.Background(), "a@example.com", "password1")
	if err == nil || model.CategoryOf(err) != model.CategorySystem {
		t.Errorf("err = %v, want system error", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	svc, _ := newStoreService(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, "root@example.com", "Root", "admin-password")
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	if admin.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin", admin.Role)
	}
	if _, _, err := svc.Login(ctx, "root@example.com", "admin-password"); err != nil {
		t.Errorf("admin Login() error = %v", err)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedSessionID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedSessionID = id
			return nil
		},
	}
	svc := NewService(nil, nil, sessionRepo, testConfig)

	if err := svc.Logout(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedSessionID != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deletedSessionID, "session-to-delete")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(nil, nil, nil, testConfig)

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	userID := "user-id-123"
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: "session-valid", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "user@example.com", Role: model.RoleEmployer}, nil
		},
	}
	svc := NewService(nil, finder, sessionRepo, testConfig)

	u, err := svc.GetCurrentUser(context.Background(), "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if u.ID != userID {
		t.Errorf("user ID = %q, want %q", u.ID, userID)
	}
}

func TestGetCurrentUser_Unauthorized(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		session   *model.Session
	}{
		{"空のセッションID", "", nil},
		{"期限切れまたは存在しないセッション", "expired", nil},
		{"ユーザーが削除済み", "orphan", &model.Session{ID: "orphan", UserID: "gone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionRepo := &mockSessionRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
					return tt.session, nil
				},
			}
			svc := NewService(nil, &mockUserFinder{}, sessionRepo, testConfig)

			_, err := svc.GetCurrentUser(context.Background(), tt.sessionID)
			if !model.IsCode(err, model.ErrCodeUnauthorized) {
				t.Errorf("err = %v, want UNAUTHORIZED", err)
			}
		})
	}
}

func TestGenerateSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}
