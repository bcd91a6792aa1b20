package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobbridge/internal/middleware"
	"github.com/hitoshi/jobbridge/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader     middleware.CurrentUserLoader
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	UserService        UserServiceInterface
	CompanyService     CompanyServiceInterface
	JobService         JobServiceInterface
	ApplicationService interface {
		ApplicationServiceInterface
		CandidateApplicationLister
	}
	ModerationService ModerationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (OptionalSession | Session → RateLimit(General) → CSRF)
//
// 公開ルートは匿名でも閲覧でき、セッションがあれば所有者として扱う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.ApplicationService)
	companyHandler := NewCompanyHandler(deps.CompanyService)
	jobHandler := NewJobHandler(deps.JobService)
	appHandler := NewApplicationHandler(deps.ApplicationService)
	adminHandler := NewAdminHandler(deps.ModerationService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	r.Route("/auth", authHandler.routes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionLoader))
		r.Get("/api/jobs", jobHandler.List)
		r.Get("/api/jobs/{id}", jobHandler.Get)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/users/me", func(r chi.Router) {
			r.Patch("/", userHandler.UpdateProfile)
			r.Put("/resume", userHandler.AttachResume)
			r.With(middleware.RequireRole(model.RoleCandidate)).Get("/applications", userHandler.MyApplications)
		})

		r.Route("/api/companies", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleEmployer))
			r.Post("/", companyHandler.Create)
			r.Get("/me", companyHandler.Mine)
			r.Patch("/{id}", companyHandler.Update)
			r.Put("/{id}/careers-feed", companyHandler.SetCareersFeed)
		})

		r.With(middleware.RequireRole(model.RoleEmployer)).Get("/api/employer/jobs", jobHandler.ListMine)

		r.Post("/api/jobs", jobHandler.Create)
		r.Delete("/api/jobs/{id}", jobHandler.Delete)
		r.Post("/api/jobs/{id}/close", jobHandler.Close)
		r.Get("/api/jobs/{id}/applications", appHandler.ListForJob)
		r.With(deps.RateLimiter.ApplyMiddleware()).Post("/api/jobs/{id}/applications", appHandler.Apply)

		r.Put("/api/applications/{id}/status", appHandler.SetStatus)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/pending/{kind}", adminHandler.ListPending)
			r.Get("/{kind}", adminHandler.ListAll)
			r.Post("/{kind}/{id}/decision", adminHandler.Decide)
			r.Delete("/{kind}/{id}", adminHandler.Purge)
			r.Put("/{kind}/{id}/account-status", adminHandler.SetAccountStatus)
		})
	})

	return r
}
