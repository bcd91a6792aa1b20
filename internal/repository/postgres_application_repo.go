package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobbridge/internal/model"
)

const applicationColumns = `a.id, a.job_id, a.candidate_id, a.resume_ref, a.contact_name,
	a.contact_email, a.contact_phone, a.status, a.created_at, a.updated_at`

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

func applicationDest(a *model.Application) []any {
	return []any{
		&a.ID, &a.JobID, &a.CandidateID, &a.ResumeRef, &a.Contact.Name,
		&a.Contact.Email, &a.Contact.Phone, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	}
}

// CreateForOpenJob は求人がOPENの場合にのみ応募を作成する。
// 二重応募は (job_id, candidate_id) の一意制約で弾かれ、ErrDuplicate になる。
func (r *PostgresApplicationRepo) CreateForOpenJob(ctx context.Context, app *model.Application) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, job_id, candidate_id, resume_ref, contact_name,
		                           contact_email, contact_phone, status, created_at, updated_at)
		 SELECT $1::uuid, j.id, $3::uuid, $4::text, $5::text,
		        $6::text, $7::text, $8::text, $9::timestamptz, $10::timestamptz
		 FROM jobs j
		 WHERE j.id = $2::uuid AND j.status = 'OPEN'
		 FOR SHARE`,
		app.ID, app.JobID, app.CandidateID, app.ResumeRef, app.Contact.Name,
		app.Contact.Email, app.Contact.Phone, app.Status, app.CreatedAt, app.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		// 候補者が並行して削除された
		return ErrPreconditionFailed
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// FindByID は指定IDの応募を取得する。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.id = $1`, id,
	).Scan(applicationDest(app)...)
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application by ID: %w", err)
	}
	return app, nil
}

// ListByJobID は求人の応募を応募順に返す。
func (r *PostgresApplicationRepo) ListByJobID(ctx context.Context, jobID string) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications a
		 WHERE a.job_id = $1
		 ORDER BY a.created_at, a.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications by job: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		app := &model.Application{}
		if err := rows.Scan(applicationDest(app)...); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// ListByCandidateID は候補者の応募を求人名・会社名付きで返す。
func (r *PostgresApplicationRepo) ListByCandidateID(ctx context.Context, candidateID string) ([]model.ApplicationWithJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+`, j.title, c.id, c.name
		 FROM applications a
		 JOIN jobs j ON j.id = a.job_id
		 JOIN companies c ON c.id = j.company_id
		 WHERE a.candidate_id = $1
		 ORDER BY a.created_at DESC, a.id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications by candidate: %w", err)
	}
	defer rows.Close()

	var results []model.ApplicationWithJob
	for rows.Next() {
		var row model.ApplicationWithJob
		dest := append(applicationDest(&row.Application), &row.JobTitle, &row.CompanyID, &row.CompanyName)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return results, nil
}

// UpdateStatus はステータスを更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (*model.Application, error) {
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE applications a SET status = $2, updated_at = now()
		 WHERE a.id = $1
		 RETURNING `+applicationColumns,
		id, status,
	).Scan(applicationDest(app)...)
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}
	return app, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
