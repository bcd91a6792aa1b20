// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobbridge/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// actorContextKey はリクエストコンテキストに認証済みActorを格納するためのキー。
var actorContextKey = contextKey("actor")

// CurrentUserLoader はセッションIDから現在のユーザーを解決する。auth.Serviceが実装する。
// 無効なセッションには model.APIError（UNAUTHORIZED）を返す。
type CurrentUserLoader interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーをActorとしてリクエストコンテキストに注入する。
// 未認証リクエストには401、停止中のアカウントには403 ACCOUNT_SUSPENDEDを返す。
func NewSessionMiddleware(loader CurrentUserLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := resolveUser(w, r, loader)
			if !ok {
				return
			}
			if u == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actorOf(u))))
		})
	}
}

// NewOptionalSessionMiddleware はセッションがあればActorを注入し、
// なければ匿名のまま次へ渡すミドルウェアを返す。公開エンドポイント用。
// 停止中のアカウントは匿名として扱う。
func NewOptionalSessionMiddleware(loader CurrentUserLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := loader.GetCurrentUser(r.Context(), cookie.Value)
			if err != nil || u == nil || u.IsSuspended() {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actorOf(u))))
		})
	}
}

// resolveUser はCookieのセッションからユーザーを取得する。
// エラーレスポンスを書き込んだ場合はfalseを返す。
func resolveUser(w http.ResponseWriter, r *http.Request, loader CurrentUserLoader) (*model.User, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, true
	}

	u, err := loader.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		if model.CategoryOf(err) == model.CategorySystem {
			slog.Error("failed to load session user",
				slog.String("error", err.Error()),
			)
			WriteInternalServerError(w)
			return nil, false
		}
		return nil, true
	}
	if u != nil && u.IsSuspended() {
		WriteErrorResponse(w, http.StatusForbidden, model.NewAccountSuspendedError())
		return nil, false
	}
	return u, true
}

// RequireRole は指定ロールのいずれかを持つActorのみを通すミドルウェアを返す。
// セッションミドルウェアの後に配置する。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteErrorResponse(w, http.StatusForbidden,
				model.NewForbiddenError(fmt.Sprintf("%s ロールではこの操作を実行できません", actor.Role)))
		})
	}
}

func actorOf(u *model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role}
}

// ActorFromContext はリクエストコンテキストから認証済みActorを取得する。
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(model.Actor)
	if !ok || actor.UserID == "" {
		return model.Actor{}, false
	}
	return actor, true
}

// ContextWithActor はコンテキストにActorを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActor(ctx context.Context, actor model.Actor) context.Context {
	recordActor(ctx, actor)
	return context.WithValue(ctx, actorContextKey, actor)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("user ID not found in context")
	}
	return actor.UserID, nil
}
