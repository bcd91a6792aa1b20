package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/jobbridge/internal/model"
)

const jobColumns = `j.id, j.company_id, j.title, j.category, j.sub_category, j.location, j.type,
	j.salary, j.experience, j.vacancies, j.shift, j.work_mode, j.food_allowance, j.accommodation,
	j.education_required, j.deadline, j.description, j.skills, j.external_ref, j.status,
	j.created_at, j.updated_at`

// PostgresJobRepo はPostgreSQLを使用した求人リポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var vacancies sql.NullInt64
	var deadline sql.NullTime
	err := row.Scan(
		&j.ID, &j.CompanyID, &j.Title, &j.Category, &j.SubCategory, &j.Location, &j.Type,
		&j.Salary, &j.Experience, &vacancies, &j.Shift, &j.WorkMode, &j.FoodAllowance, &j.Accommodation,
		&j.EducationRequired, &deadline, &j.Description, pq.Array(&j.Skills), &j.ExternalRef, &j.Status,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if vacancies.Valid {
		v := int(vacancies.Int64)
		j.Vacancies = &v
	}
	if deadline.Valid {
		d := deadline.Time
		j.Deadline = &d
	}
	return j, nil
}

func (r *PostgresJobRepo) queryOne(ctx context.Context, op, query string, args ...any) (*model.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return j, nil
}

func (r *PostgresJobRepo) queryList(ctx context.Context, op, query string, args ...any) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

// CreateForApprovedCompany は会社がAPPROVEDの場合にのみ求人を作成する。
// 会社行をFOR SHAREでロックするため、並行する却下との間で判定が食い違わない。
func (r *PostgresJobRepo) CreateForApprovedCompany(ctx context.Context, job *model.Job) error {
	skills := job.Skills
	if skills == nil {
		skills = []string{}
	}
	var vacancies sql.NullInt64
	if job.Vacancies != nil {
		vacancies = sql.NullInt64{Int64: int64(*job.Vacancies), Valid: true}
	}
	var deadline sql.NullTime
	if job.Deadline != nil {
		deadline = sql.NullTime{Time: *job.Deadline, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, company_id, title, category, sub_category, location, type,
		                   salary, experience, vacancies, shift, work_mode, food_allowance,
		                   accommodation, education_required, deadline, description, skills,
		                   external_ref, status, created_at, updated_at)
		 SELECT $1::uuid, c.id, $3::text, $4::text, $5::text, $6::text, $7::text,
		        $8::text, $9::text, $10::integer, $11::text, $12::text, $13::text,
		        $14::text, $15::text, $16::date, $17::text, $18::text[],
		        $19::text, $20::text, $21::timestamptz, $22::timestamptz
		 FROM companies c
		 WHERE c.id = $2::uuid AND c.status = 'APPROVED'
		 FOR SHARE`,
		job.ID, job.CompanyID, job.Title, job.Category, job.SubCategory, job.Location, job.Type,
		job.Salary, job.Experience, vacancies, job.Shift, job.WorkMode, job.FoodAllowance,
		job.Accommodation, job.EducationRequired, deadline, job.Description, pq.Array(skills),
		job.ExternalRef, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
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

// FindByID は指定IDの求人を取得する。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	return r.queryOne(ctx, "find job by ID",
		`SELECT `+jobColumns+` FROM jobs j WHERE j.id = $1`, id)
}

// List は検索条件に一致する求人を返す。
// 文字列条件は大文字小文字を区別しない部分一致（ILIKE）で評価する。
func (r *PostgresJobRepo) List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	var conds []string
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID == "" {
		conds = append(conds, "j.status = 'OPEN'", "c.status = 'APPROVED'")
	} else {
		conds = append(conds, "c.owner_id = "+bind(filter.OwnerID))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := bind(likePattern(q))
		conds = append(conds, fmt.Sprintf("(j.title ILIKE %s OR j.description ILIKE %s)", p, p))
	}
	for _, f := range []struct {
		column string
		value  string
	}{
		{"j.location", filter.Location},
		{"j.category", filter.Category},
		{"j.sub_category", filter.SubCategory},
		{"j.type", filter.Type},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			conds = append(conds, f.column+" ILIKE "+bind(likePattern(v)))
		}
	}

	query := `SELECT ` + jobColumns + `
		FROM jobs j JOIN companies c ON c.id = j.company_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY j.created_at DESC, j.id`
	if filter.Limit > 0 {
		query += " LIMIT " + bind(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + bind(filter.Offset)
	}

	return r.queryList(ctx, "list jobs", query, args...)
}

// ListByStatus は指定ステータスの求人を返す。
func (r *PostgresJobRepo) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.queryList(ctx, "list jobs by status",
		`SELECT `+jobColumns+` FROM jobs j WHERE j.status = $1 ORDER BY j.created_at, j.id`, status)
}

// SetStatus はステータスを更新する。
func (r *PostgresJobRepo) SetStatus(ctx context.Context, id string, status model.JobStatus) (*model.Job, error) {
	return r.queryOne(ctx, "set job status",
		`UPDATE jobs j SET status = $2, updated_at = now()
		 WHERE j.id = $1 AND (j.status <> 'CLOSED' OR $2 = 'CLOSED')
		 RETURNING `+jobColumns,
		id, status)
}

// CloseExpired は締切日を過ぎたPENDING/OPENの求人をCLOSEDにする。
func (r *PostgresJobRepo) CloseExpired(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'CLOSED', updated_at = now()
		 WHERE status IN ('PENDING', 'OPEN') AND deadline IS NOT NULL AND deadline < $1::date`,
		asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteCascade は求人と応募を同一トランザクションで削除する。
func (r *PostgresJobRepo) DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}

	result := &model.CascadeResult{}
	if result.Applications, err = execRowsAffected(ctx, tx, `DELETE FROM applications WHERE job_id = $1`, id); err != nil {
		return nil, err
	}
	if result.Jobs, err = execRowsAffected(ctx, tx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// likePattern はILIKEの部分一致パターンを生成する。
// 入力中のワイルドカード文字はエスケープしてリテラルとして扱う。
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
