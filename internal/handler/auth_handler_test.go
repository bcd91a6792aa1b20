package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobbridge/internal/auth"
	"github.com/hitoshi/jobbridge/internal/middleware"
	"github.com/hitoshi/jobbridge/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

// --- テストヘルパー ---

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var testAuthConfig = AuthHandlerConfig{SessionMaxAge: 3600}

// --- テスト ---

func TestAuthHandler_Register_SetsSessionCookie(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
			got = in
			return &model.User{
				ID:                 "user-1",
				Role:               model.RoleCandidate,
				Email:              "u1@example.com",
				Name:               "U1",
				PasswordHash:       "$2a$secret",
				AccountStatus:      model.AccountStatusActive,
				ResumeVerification: model.ResumeVerificationNone,
				CreatedAt:          time.Now(),
			}, &model.Session{
				ID:        "session-1",
				UserID:    "user-1",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	body := `{"role":"candidate","email":"u1@example.com","password":"correct horse","name":"U1","skills":["welding"]}`
	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if got.Role != "candidate" || got.Password != "correct horse" || len(got.Skills) != 1 {
		t.Errorf("RegisterInput = %+v", got)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil || cookie.Value != "session-1" {
		t.Fatalf("session cookie = %+v, want session-1", cookie)
	}
	if !cookie.HttpOnly || cookie.MaxAge != 3600 {
		t.Errorf("cookie HttpOnly=%v MaxAge=%d, want true/3600", cookie.HttpOnly, cookie.MaxAge)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if _, ok := raw["password_hash"]; ok {
		t.Error("response must not expose password_hash")
	}
	if raw["resume_verification"] != "NONE" {
		t.Errorf("resume_verification = %v, want NONE", raw["resume_verification"])
	}
}

func TestAuthHandler_Register_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate_email", model.NewDuplicateEmailError(), http.StatusConflict, model.ErrCodeDuplicateEmail},
		{"validation", model.NewValidationError("password", "8文字以上で入力してください"), http.StatusBadRequest, model.ErrCodeValidation},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
					return nil, nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc, testAuthConfig).Register(w,
				httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"role":"employer"}`)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("session cookie must not be set on failure")
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			switch {
			case email == "suspended@example.com":
				return nil, nil, model.NewAccountSuspendedError()
			case password != "correct horse":
				return nil, nil, model.NewInvalidCredentialsError()
			}
			return &model.User{ID: "user-1", Role: model.RoleEmployer, Email: email},
				&model.Session{ID: "session-login"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{"success", `{"email":"e1@example.com","password":"correct horse"}`, http.StatusOK, true},
		{"wrong_password", `{"email":"e1@example.com","password":"nope"}`, http.StatusUnauthorized, false},
		{"suspended", `{"email":"suspended@example.com","password":"correct horse"}`, http.StatusForbidden, false},
		{"malformed", `{"email":`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := findCookie(w.Result(), middleware.SessionCookieName) != nil; got != tt.wantCookie {
				t.Errorf("cookie set = %v, want %v", got, tt.wantCookie)
			}
		})
	}
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-x"})
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if loggedOut != "session-x" {
		t.Errorf("logged out session = %q, want session-x", loggedOut)
	}
	cookie := findCookie(w.Result(), middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want expired cookie", cookie)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid" {
				return &model.User{ID: "user-1", Role: model.RoleEmployer, Email: "e@example.com", Name: "E"}, nil
			}
			return nil, model.NewUnauthorizedError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	t.Run("no_cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "stale"})
		w := httptest.NewRecorder()
		h.Me(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid"})
		w := httptest.NewRecorder()
		h.Me(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var resp userResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if resp.ID != "user-1" || resp.Role != "employer" {
			t.Errorf("resp = %+v", resp)
		}
		if resp.ResumeVerification != "" {
			t.Errorf("employer must not carry resume_verification, got %q", resp.ResumeVerification)
		}
	})
}
