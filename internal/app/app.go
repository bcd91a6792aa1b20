package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/jobbridge/internal/config"
	"github.com/hitoshi/jobbridge/internal/database"
	"github.com/hitoshi/jobbridge/internal/handler"
	"github.com/hitoshi/jobbridge/internal/logger"
	"github.com/hitoshi/jobbridge/internal/metrics"
	"github.com/hitoshi/jobbridge/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("storage", cfg.StorageDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// コンテキストがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
// インメモリストレージではワーカーと状態を共有できないため、定期処理も同じプロセスで実行する。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, closePub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePub()

	reg, collector := newMetricsRegistry()
	svc := newServices(cfg, st, pub, collector)

	if cfg.StorageDriver == config.StorageDriverMemory {
		if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
			if err := ensureAdmin(ctx, cfg, svc.auth); err != nil {
				return err
			}
		}
		c, err := newCron(ctx, maintenanceTasks(cfg, st, svc, collector))
		if err != nil {
			return err
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitApply))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionLoader:     svc.auth,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		Logger:         slog.Default(),
		HealthChecker:  st.healthChecker(),
		MetricsHandler: metrics.Handler(reg),

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:        svc.users,
		CompanyService:     svc.companies,
		JobService:         svc.jobs,
		ApplicationService: svc.applications,
		ModerationService:  svc.moderation,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// フィード同期・求人の締切処理・セッション掃除をcronで実行し、
// /health と /metrics を公開する。状態を共有するためPostgreSQLが必要。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return fmt.Errorf("worker requires STORAGE_DRIVER=%s; with %s the scheduled tasks run inside serve",
			config.StorageDriverPostgres, cfg.StorageDriver)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, closePub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePub()

	reg, collector := newMetricsRegistry()
	svc := newServices(cfg, st, pub, collector)

	c, err := newCron(ctx, maintenanceTasks(cfg, st, svc, collector))
	if err != nil {
		return err
	}
	c.Start()
	defer func() {
		slog.Info("waiting for running tasks to finish")
		<-c.Stop().Done()
	}()

	slog.Info("worker starting",
		slog.String("feed_sync_schedule", cfg.FeedSyncSchedule),
		slog.Int("max_concurrent", cfg.FeedMaxConcurrent),
	)

	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler(st.healthChecker()))
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveUntilDone(ctx, server, "worker")
}

// serveUntilDone はサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}
	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.StorageDriverPostgres)
	}
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runCreateAdmin はADMIN_EMAIL/ADMIN_NAME/ADMIN_PASSWORDから管理者アカウントを作成する。
// 管理者は自己登録できないため、このサブコマンドが唯一の作成経路となる。
func runCreateAdmin(ctx context.Context, cfg *config.Config) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return fmt.Errorf("create-admin requires STORAGE_DRIVER=%s; with %s set ADMIN_EMAIL and ADMIN_PASSWORD for serve",
			config.StorageDriverPostgres, cfg.StorageDriver)
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	_, collector := newMetricsRegistry()
	svc := newServices(cfg, st, nil, collector)
	return ensureAdmin(ctx, cfg, svc.auth)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
