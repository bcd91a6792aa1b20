package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
)

const companyFeedColumns = `f.company_id, f.feed_url, f.etag, f.last_modified, f.fetch_status,
	f.consecutive_errors, f.error_message, f.next_fetch_at, f.created_at, f.updated_at`

// PostgresCompanyFeedRepo はPostgreSQLを使用した採用フィードリポジトリ。
type PostgresCompanyFeedRepo struct {
	db *sql.DB
}

// NewPostgresCompanyFeedRepo はPostgresCompanyFeedRepoを生成する。
func NewPostgresCompanyFeedRepo(db *sql.DB) *PostgresCompanyFeedRepo {
	return &PostgresCompanyFeedRepo{db: db}
}

func scanCompanyFeed(row rowScanner) (*model.CompanyFeed, error) {
	f := &model.CompanyFeed{}
	err := row.Scan(
		&f.CompanyID, &f.FeedURL, &f.ETag, &f.LastModified, &f.FetchStatus,
		&f.ConsecutiveErrors, &f.ErrorMessage, &f.NextFetchAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Upsert は採用フィードを登録または置き換える。
// URLが変わる場合に備え、etag・last_modified・エラー情報は初期化する。
func (r *PostgresCompanyFeedRepo) Upsert(ctx context.Context, feed *model.CompanyFeed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO company_feeds (company_id, feed_url, fetch_status, next_fetch_at, created_at, updated_at)
		 VALUES ($1, $2, 'active', $3, $4, $4)
		 ON CONFLICT (company_id) DO UPDATE
		 SET feed_url = EXCLUDED.feed_url, etag = '', last_modified = '',
		     fetch_status = 'active', consecutive_errors = 0, error_message = '',
		     next_fetch_at = EXCLUDED.next_fetch_at, updated_at = EXCLUDED.updated_at`,
		feed.CompanyID, feed.FeedURL, feed.NextFetchAt, feed.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrPreconditionFailed
	}
	if err != nil {
		return fmt.Errorf("failed to upsert company feed: %w", err)
	}
	return nil
}

// FindByCompanyID は会社の採用フィードを取得する。
func (r *PostgresCompanyFeedRepo) FindByCompanyID(ctx context.Context, companyID string) (*model.CompanyFeed, error) {
	f, err := scanCompanyFeed(r.db.QueryRowContext(ctx,
		`SELECT `+companyFeedColumns+` FROM company_feeds f WHERE f.company_id = $1`, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("採用フィードの取得に失敗しました: %w", err)
	}
	return f, nil
}

// DeleteByCompanyID は会社の採用フィードを削除する。
func (r *PostgresCompanyFeedRepo) DeleteByCompanyID(ctx context.Context, companyID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM company_feeds WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("採用フィードの削除に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象の採用フィードを取得する。
// 会社がAPPROVEDでないフィードは対象外。
func (r *PostgresCompanyFeedRepo) ListDueForFetch(ctx context.Context, now time.Time) ([]*model.CompanyFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+companyFeedColumns+`
		 FROM company_feeds f
		 JOIN companies c ON c.id = f.company_id
		 WHERE f.fetch_status = 'active' AND f.next_fetch_at <= $1 AND c.status = 'APPROVED'
		 ORDER BY f.next_fetch_at`, now)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.CompanyFeed
	for rows.Next() {
		f, err := scanCompanyFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("採用フィードのスキャンに失敗しました: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("採用フィードの走査に失敗しました: %w", err)
	}
	return feeds, nil
}

// UpdateFetchState はフェッチ状態を更新する。
func (r *PostgresCompanyFeedRepo) UpdateFetchState(ctx context.Context, feed *model.CompanyFeed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE company_feeds
		 SET etag = $2, last_modified = $3, fetch_status = $4, consecutive_errors = $5,
		     error_message = $6, next_fetch_at = $7, updated_at = now()
		 WHERE company_id = $1`,
		feed.CompanyID, feed.ETag, feed.LastModified, feed.FetchStatus, feed.ConsecutiveErrors,
		feed.ErrorMessage, feed.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CompanyFeedRepository = (*PostgresCompanyFeedRepo)(nil)
