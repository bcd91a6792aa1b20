package feedsync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/jobbridge/internal/job"
	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository/memory"
	"github.com/hitoshi/jobbridge/internal/security"
)

// TestIntegration_FeedSyncFlow はスケジューラ → フェッチ対象取得 → HTTP GET → パース →
// 求人の取り込み → フェッチ状態の更新までを、インメモリストアと実サービスで検証する。
func TestIntegration_FeedSyncFlow(t *testing.T) {
	ctx := context.Background()
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"acme-1"`)
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Acme Careers</title>
    <item><title>Welder</title><guid>acme-welder</guid><description>&lt;p&gt;Weld&lt;/p&gt;&lt;script&gt;x()&lt;/script&gt;</description></item>
    <item><title>Driver</title><link>https://acme.example.com/jobs/driver</link></item>
    <item><description>no title, skipped by the parser</description><guid>untitled</guid></item>
  </channel>
</rss>`)
	}))
	defer server.Close()

	store := memory.New()
	now := time.Now()
	if err := store.Users().Create(ctx, &model.User{
		ID: "emp", Role: model.RoleEmployer, Email: "emp@example.com", Name: "Emp",
		AccountStatus: model.AccountStatusActive, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	if err := store.Companies().Create(ctx, &model.Company{
		ID: "acme", OwnerID: "emp", Name: "Acme", Status: model.CompanyStatusApproved, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("会社作成に失敗: %v", err)
	}
	if err := store.CompanyFeeds().Upsert(ctx, &model.CompanyFeed{
		CompanyID: "acme", FeedURL: server.URL + "/jobs.xml", NextFetchAt: now.Add(-time.Minute), UpdatedAt: now,
	}); err != nil {
		t.Fatalf("フィード登録に失敗: %v", err)
	}

	jobs := job.NewService(store.Jobs(), store.Companies(), security.NewContentSanitizer(), nil)
	m := &mockMetrics{}
	var logs bytes.Buffer
	logger := newTestLogger(&logs)
	fetcher := NewFetcher(store.CompanyFeeds(), jobs, &mockGuard{}, m, logger, 5*time.Second, 1<<20, time.Hour)
	scheduler := NewScheduler(store.CompanyFeeds(), fetcher, logger, 2)

	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	pending, err := store.Jobs().ListByStatus(ctx, model.JobStatusPending)
	if err != nil {
		t.Fatalf("ListByStatus error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("取り込まれた求人 = %d, want 2", len(pending))
	}
	refs := map[string]*model.Job{}
	for _, j := range pending {
		refs[j.ExternalRef] = j
	}
	welder := refs["acme-welder"]
	if welder == nil || welder.CompanyID != "acme" || welder.Type != model.JobTypeFullTime {
		t.Fatalf("welder = %+v", welder)
	}
	if bytes.Contains([]byte(welder.Description), []byte("script")) {
		t.Errorf("取り込んだ説明文はサニタイズされるべき: %q", welder.Description)
	}
	if refs["https://acme.example.com/jobs/driver"] == nil {
		t.Error("GUIDのないエントリはリンクを external_ref にするべき")
	}

	feed, _ := store.CompanyFeeds().FindByCompanyID(ctx, "acme")
	if feed.ETag != `"acme-1"` || feed.ConsecutiveErrors != 0 || !feed.NextFetchAt.After(now) {
		t.Errorf("feed state = %+v", feed)
	}

	// 次回フェッチ時刻前は対象外
	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("2回目の RunOnce() がエラーを返した: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("次回フェッチ時刻前にリクエストされた: %d", n)
	}

	// 時刻を進めて再取得しても、取り込み済みのエントリは重複しない
	scheduler.now = func() time.Time { return now.Add(2 * time.Hour) }
	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("3回目の RunOnce() がエラーを返した: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
	pending, _ = store.Jobs().ListByStatus(ctx, model.JobStatusPending)
	if len(pending) != 2 {
		t.Errorf("再取得後の求人 = %d, want 2", len(pending))
	}
	if m.imported != 2 {
		t.Errorf("imported metric = %d, want 2", m.imported)
	}
}

// TestIntegration_FeedSyncFlow_SkipsUnapprovedCompany は未承認の会社のフィードが取得されないことを検証する。
func TestIntegration_FeedSyncFlow_SkipsUnapprovedCompany(t *testing.T) {
	ctx := context.Background()
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	store := memory.New()
	now := time.Now()
	_ = store.Users().Create(ctx, &model.User{ID: "emp", Role: model.RoleEmployer, Email: "emp@example.com", Name: "Emp", AccountStatus: model.AccountStatusActive})
	_ = store.Companies().Create(ctx, &model.Company{ID: "acme", OwnerID: "emp", Name: "Acme", Status: model.CompanyStatusPending})
	_ = store.CompanyFeeds().Upsert(ctx, &model.CompanyFeed{CompanyID: "acme", FeedURL: server.URL, NextFetchAt: now.Add(-time.Minute), UpdatedAt: now})

	var logs bytes.Buffer
	jobs := job.NewService(store.Jobs(), store.Companies(), security.NewContentSanitizer(), nil)
	fetcher := NewFetcher(store.CompanyFeeds(), jobs, &mockGuard{}, nil, newTestLogger(&logs), time.Second, 1<<20, time.Hour)
	scheduler := NewScheduler(store.CompanyFeeds(), fetcher, newTestLogger(&logs), 2)

	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("未承認の会社のフィードにリクエストされた: %d", n)
	}
}
