package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockSessionDeleter struct {
	called  int
	cutoff  time.Time
	deleted int64
	err     error
}

func (m *mockSessionDeleter) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.called++
	m.cutoff = now
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行から指定キーの値を探す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCleanupJob_Run_DeletesWithCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockSessionDeleter{deleted: 5}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.now = fixedClock(now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if mock.called != 1 {
		t.Fatalf("DeleteExpired の呼び出し回数 = %d, want 1", mock.called)
	}
	if !mock.cutoff.Equal(now) {
		t.Errorf("cutoff = %v, want %v", mock.cutoff, now)
	}
}

func TestCleanupJob_Run_AppliesGrace(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockSessionDeleter{}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.now = fixedClock(now)
	job.Grace = 24 * time.Hour

	_ = job.Run(context.Background())

	if want := now.Add(-24 * time.Hour); !mock.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", mock.cutoff, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	tests := []struct {
		name    string
		deleted int64
	}{
		{"some", 42},
		{"none", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			job := NewCleanupJob(&mockSessionDeleter{deleted: tt.deleted}, newTestLogger(&buf))

			if err := job.Run(context.Background()); err != nil {
				t.Fatalf("Run() がエラーを返した: %v", err)
			}

			v, ok := findLogField(&buf, "deleted_count")
			if !ok || v != float64(tt.deleted) {
				t.Errorf("ログに deleted_count=%d が記録されていない。ログ出力: %s", tt.deleted, buf.String())
			}
			if _, ok := findLogField(&buf, "duration_ms"); !ok {
				t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
			}
		})
	}
}

func TestCleanupJob_Run_ReturnsAndLogsError(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	job := NewCleanupJob(&mockSessionDeleter{err: dbErr}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("Run() error = %v, want wrapping %v", err, dbErr)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockSessionDeleter{}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if mock.called != 2 {
		t.Errorf("DeleteExpired の呼び出し回数 = %d, want 2", mock.called)
	}
}
