package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/jobbridge/internal/config"
	"github.com/hitoshi/jobbridge/internal/model"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StorageDriver:          config.StorageDriverMemory,
		SessionMaxAge:          3600,
		BcryptCost:             bcrypt.MinCost,
		FeedSyncSchedule:       "@every 30m",
		FeedFetchTimeout:       time.Second,
		FeedFetchMaxSize:       1 << 20,
		FeedMaxConcurrent:      2,
		FeedRefreshInterval:    time.Hour,
		JobExpirySchedule:      "@hourly",
		SessionCleanupSchedule: "@daily",
		AdminEmail:             "admin@example.com",
		AdminName:              "Admin",
		AdminPassword:          "admin-password",
	}
}

func newMemoryServices(t *testing.T, cfg *config.Config) (*stores, *services) {
	t.Helper()
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	t.Cleanup(st.Close)
	_, collector := newMetricsRegistry()
	return st, newServices(cfg, st, nil, collector)
}

func TestOpenStores_MemoryHasNoHealthChecker(t *testing.T) {
	st, _ := newMemoryServices(t, memoryConfig())
	if st.healthChecker() != nil {
		t.Error("memory storage should not expose a database health checker")
	}
}

func TestEnsureAdmin_CreatesOnceAndLogsIn(t *testing.T) {
	cfg := memoryConfig()
	_, svc := newMemoryServices(t, cfg)
	ctx := context.Background()

	if err := ensureAdmin(ctx, cfg, svc.auth); err != nil {
		t.Fatalf("ensureAdmin() error = %v", err)
	}
	// 2回目は既存アカウントとして成功扱い
	if err := ensureAdmin(ctx, cfg, svc.auth); err != nil {
		t.Fatalf("second ensureAdmin() error = %v", err)
	}

	u, _, err := svc.auth.Login(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", u.Role, model.RoleAdmin)
	}
}

func TestEnsureAdmin_RequiresCredentials(t *testing.T) {
	cfg := memoryConfig()
	_, svc := newMemoryServices(t, cfg)
	cfg.AdminPassword = ""

	if err := ensureAdmin(context.Background(), cfg, svc.auth); err == nil {
		t.Fatal("ensureAdmin() without password should return error")
	}
}

func TestEnsureAdmin_ShortPassword(t *testing.T) {
	cfg := memoryConfig()
	_, svc := newMemoryServices(t, cfg)
	cfg.AdminPassword = "short"

	err := ensureAdmin(context.Background(), cfg, svc.auth)
	if !model.IsCode(err, model.ErrCodeValidation) {
		t.Errorf("ensureAdmin() error = %v, want %s", err, model.ErrCodeValidation)
	}
}

func TestMaintenanceTasks_RegisterOnCron(t *testing.T) {
	cfg := memoryConfig()
	st, svc := newMemoryServices(t, cfg)
	_, collector := newMetricsRegistry()

	tasks := maintenanceTasks(cfg, st, svc, collector)
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.name)
	}
	if got := strings.Join(names, ","); got != "feed_sync,job_expiry,session_cleanup" {
		t.Errorf("task names = %s", got)
	}

	c, err := newCron(context.Background(), tasks)
	if err != nil {
		t.Fatalf("newCron() error = %v", err)
	}
	if got := len(c.Entries()); got != len(tasks) {
		t.Errorf("cron entries = %d, want %d", got, len(tasks))
	}

	// 空のストアに対しては全タスクがエラーなく完了する
	for _, task := range tasks {
		if err := task.run(context.Background()); err != nil {
			t.Errorf("%s run error = %v", task.name, err)
		}
	}
}

func TestNewCron_InvalidSchedule(t *testing.T) {
	tasks := []scheduledTask{{
		name:     "broken",
		schedule: "every now and then",
		run:      func(context.Context) error { return nil },
	}}

	_, err := newCron(context.Background(), tasks)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("newCron() error = %v, want invalid schedule error naming the task", err)
	}
}

func TestRunTask_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	runTask(ctx, scheduledTask{name: "t", run: func(context.Context) error {
		called = true
		return errors.New("unreachable")
	}})
	if called {
		t.Error("runTask should not run after context cancel")
	}
}
