package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/jobbridge/internal/application"
	"github.com/hitoshi/jobbridge/internal/auth"
	"github.com/hitoshi/jobbridge/internal/company"
	"github.com/hitoshi/jobbridge/internal/config"
	"github.com/hitoshi/jobbridge/internal/database"
	"github.com/hitoshi/jobbridge/internal/events"
	"github.com/hitoshi/jobbridge/internal/handler"
	"github.com/hitoshi/jobbridge/internal/job"
	"github.com/hitoshi/jobbridge/internal/jobfeed"
	"github.com/hitoshi/jobbridge/internal/metrics"
	"github.com/hitoshi/jobbridge/internal/moderation"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
	"github.com/hitoshi/jobbridge/internal/repository/memory"
	"github.com/hitoshi/jobbridge/internal/security"
	"github.com/hitoshi/jobbridge/internal/user"
)

const dbPingTimeout = 5 * time.Second

// stores はストレージドライバに応じたリポジトリ一式。
// dbはPostgreSQL利用時のみ設定される。
type stores struct {
	db           *sql.DB
	users        repository.UserRepository
	sessions     repository.SessionRepository
	companies    repository.CompanyRepository
	companyFeeds repository.CompanyFeedRepository
	jobs         repository.JobRepository
	applications repository.ApplicationRepository
}

// openStores は設定のストレージドライバでリポジトリを構築する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		m := memory.New()
		return &stores{
			users:        m.Users(),
			sessions:     m.Sessions(),
			companies:    m.Companies(),
			companyFeeds: m.CompanyFeeds(),
			jobs:         m.Jobs(),
			applications: m.Applications(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	return &stores{
		db:           db,
		users:        repository.NewPostgresUserRepo(db),
		sessions:     repository.NewPostgresSessionRepo(db),
		companies:    repository.NewPostgresCompanyRepo(db),
		companyFeeds: repository.NewPostgresCompanyFeedRepo(db),
		jobs:         repository.NewPostgresJobRepo(db),
		applications: repository.NewPostgresApplicationRepo(db),
	}, nil
}

// healthChecker はDB接続がある場合のみヘルスチェック対象を返す。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// newPublisher はREDIS_URLが設定されていればRedis、なければslogにイベントを発行するPublisherを返す。
func newPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		return events.NewLogPublisher(slog.Default()), func() {}, nil
	}
	client, err := events.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("publishing lifecycle events to redis", slog.String("channel", cfg.EventsChannel))
	return events.NewRedisPublisher(client, cfg.EventsChannel), func() { client.Close() }, nil
}

// newMetricsRegistry はランタイムとプロセスのメトリクスを含むレジストリと、
// ドメインメトリクスのCollectorを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// services はドメインサービス一式。
type services struct {
	guard        security.URLGuard
	users        *user.Service
	auth         *auth.Service
	companies    *company.Service
	jobs         *job.Service
	applications *application.Service
	moderation   *moderation.Service
}

func newServices(cfg *config.Config, st *stores, pub events.Publisher, collector *metrics.Collector) *services {
	sanitizer := security.NewContentSanitizer()
	guard := security.NewURLGuard()
	detector := jobfeed.NewDetector(guard, cfg.FeedFetchTimeout, cfg.FeedFetchMaxSize)

	users := user.NewService(st.users, st.sessions, sanitizer, pub)
	companies := company.NewService(st.companies, st.companyFeeds, detector, guard, sanitizer, pub)
	jobs := job.NewService(st.jobs, st.companies, sanitizer, pub)

	return &services{
		guard: guard,
		users: users,
		auth: auth.NewService(users, st.users, st.sessions, auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			BcryptCost:    cfg.BcryptCost,
		}),
		companies:    companies,
		jobs:         jobs,
		applications: application.NewService(st.applications, st.jobs, st.companies, st.users, sanitizer, pub, collector),
		moderation:   moderation.NewService(users, companies, jobs, collector),
	}
}

// ensureAdmin はADMIN_EMAIL/ADMIN_PASSWORDの管理者アカウントを作成する。
// 既に同じメールアドレスが登録されている場合は何もしない。
func ensureAdmin(ctx context.Context, cfg *config.Config, authService *auth.Service) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}
	u, err := authService.CreateAdmin(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
	if model.IsCode(err, model.ErrCodeDuplicateEmail) {
		slog.Info("admin account already exists", slog.String("email", cfg.AdminEmail))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	slog.Info("admin account created", slog.String("user_id", u.ID))
	return nil
}
