package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/jobbridge/internal/model"
)

const userColumns = `id, role, email, name, mobile, password_hash, account_status,
	resume_verification, resume_ref, skills, experience, education, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Role, &u.Email, &u.Name, &u.Mobile, &u.PasswordHash, &u.AccountStatus,
		&u.ResumeVerification, &u.ResumeRef, pq.Array(&u.Skills), &u.Experience, &u.Education,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresUserRepo) queryOne(ctx context.Context, op, query string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return u, nil
}

func (r *PostgresUserRepo) queryList(ctx context.Context, op, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, role, email, name, mobile, password_hash, account_status,
		                    resume_verification, resume_ref, skills, experience, education,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		user.ID, user.Role, user.Email, user.Name, user.Mobile, user.PasswordHash, user.AccountStatus,
		user.ResumeVerification, user.ResumeRef, pq.Array(skills), user.Experience, user.Education,
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.queryOne(ctx, "find user by ID",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.queryOne(ctx, "find user by email",
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// UpdateProfile はプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET name = $2, mobile = $3, skills = $4, experience = $5, education = $6, updated_at = now()
		 WHERE id = $1`,
		user.ID, user.Name, user.Mobile, pq.Array(skills), user.Experience, user.Education,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

// AttachResume は候補者の履歴書参照を設定し、審査状態をPENDINGにする。
func (r *PostgresUserRepo) AttachResume(ctx context.Context, id, resumeRef string) (*model.User, error) {
	return r.queryOne(ctx, "attach resume",
		`UPDATE users
		 SET resume_ref = $2, resume_verification = 'PENDING', updated_at = now()
		 WHERE id = $1 AND role = 'candidate'
		 RETURNING `+userColumns,
		id, resumeRef)
}

// SetResumeVerification は履歴書審査状態を更新する。
func (r *PostgresUserRepo) SetResumeVerification(ctx context.Context, id string, status model.ResumeVerification) (*model.User, error) {
	return r.queryOne(ctx, "set resume verification",
		`UPDATE users
		 SET resume_verification = $2, updated_at = now()
		 WHERE id = $1 AND role = 'candidate' AND resume_ref <> ''
		 RETURNING `+userColumns,
		id, status)
}

// SetAccountStatus はアカウント状態を更新する。
func (r *PostgresUserRepo) SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) (*model.User, error) {
	return r.queryOne(ctx, "set account status",
		`UPDATE users SET account_status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, status)
}

// ListByResumeVerification は指定の履歴書審査状態の候補者を返す。
func (r *PostgresUserRepo) ListByResumeVerification(ctx context.Context, status model.ResumeVerification) ([]*model.User, error) {
	return r.queryList(ctx, "list users by resume verification",
		`SELECT `+userColumns+` FROM users
		 WHERE role = 'candidate' AND resume_verification = $1
		 ORDER BY created_at, id`, status)
}

// List は全ユーザーを返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	return r.queryList(ctx, "list users",
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
}

// DeleteCascade はユーザーと従属エンティティを同一トランザクションで削除する。
// 削除順序: applications → jobs → companies → sessions → user
// 各段階の削除件数をCascadeResultに記録する。外部キーのON DELETE CASCADEは
// トランザクション中に並行して追加された行の取りこぼしを防ぐ。
func (r *PostgresUserRepo) DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 対象ユーザーの行をロックし、存在を確認する
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	result := &model.CascadeResult{}
	steps := []struct {
		counter *int64
		query   string
	}{
		{&result.Applications, `DELETE FROM applications
			WHERE candidate_id = $1
			   OR job_id IN (SELECT j.id FROM jobs j JOIN companies c ON c.id = j.company_id WHERE c.owner_id = $1)`},
		{&result.Jobs, `DELETE FROM jobs WHERE company_id IN (SELECT id FROM companies WHERE owner_id = $1)`},
		{&result.Companies, `DELETE FROM companies WHERE owner_id = $1`},
		{&result.Sessions, `DELETE FROM sessions WHERE user_id = $1`},
		{&result.Users, `DELETE FROM users WHERE id = $1`},
	}
	for _, step := range steps {
		n, err := execRowsAffected(ctx, tx, step.query, id)
		if err != nil {
			return nil, err
		}
		*step.counter = n
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// execRowsAffected はトランザクション内でSQLを実行し、影響行数を返す。
func execRowsAffected(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute cascade delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
