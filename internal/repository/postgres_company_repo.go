package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobbridge/internal/model"
)

const companyColumns = `id, owner_id, name, industry, type, size, location, website,
	logo_ref, verification_doc_ref, status, created_at, updated_at`

// PostgresCompanyRepo はPostgreSQLを使用した会社リポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

func scanCompany(row rowScanner) (*model.Company, error) {
	c := &model.Company{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Industry, &c.Type, &c.Size, &c.Location, &c.Website,
		&c.LogoRef, &c.VerificationDocRef, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCompanyRepo) queryOne(ctx context.Context, op, query string, args ...any) (*model.Company, error) {
	c, err := scanCompany(r.db.QueryRowContext(ctx, query, args...))
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return c, nil
}

func (r *PostgresCompanyRepo) queryList(ctx context.Context, op, query string, args ...any) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

// Create は会社を作成する。owner_idの一意制約違反は ErrDuplicate として返す。
func (r *PostgresCompanyRepo) Create(ctx context.Context, company *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, owner_id, name, industry, type, size, location, website,
		                        logo_ref, verification_doc_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		company.ID, company.OwnerID, company.Name, company.Industry, company.Type, company.Size,
		company.Location, company.Website, company.LogoRef, company.VerificationDocRef,
		company.Status, company.CreatedAt, company.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrPreconditionFailed
	}
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// FindByID は指定IDの会社を取得する。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	return r.queryOne(ctx, "find company by ID",
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
}

// FindByOwnerID はオーナーの会社を取得する。
func (r *PostgresCompanyRepo) FindByOwnerID(ctx context.Context, ownerID string) (*model.Company, error) {
	return r.queryOne(ctx, "find company by owner",
		`SELECT `+companyColumns+` FROM companies WHERE owner_id = $1`, ownerID)
}

// UpdateProfile はプロフィール項目を更新する。statusは更新対象に含めない。
func (r *PostgresCompanyRepo) UpdateProfile(ctx context.Context, company *model.Company) (*model.Company, error) {
	return r.queryOne(ctx, "update company profile",
		`UPDATE companies
		 SET name = $2, industry = $3, type = $4, size = $5, location = $6, website = $7,
		     logo_ref = $8, verification_doc_ref = $9, updated_at = now()
		 WHERE id = $1
		 RETURNING `+companyColumns,
		company.ID, company.Name, company.Industry, company.Type, company.Size, company.Location,
		company.Website, company.LogoRef, company.VerificationDocRef,
	)
}

// SetStatus はステータスを更新する。
func (r *PostgresCompanyRepo) SetStatus(ctx context.Context, id string, status model.CompanyStatus) (*model.Company, error) {
	return r.queryOne(ctx, "set company status",
		`UPDATE companies SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+companyColumns,
		id, status)
}

// ListByStatus は指定ステータスの会社を返す。
func (r *PostgresCompanyRepo) ListByStatus(ctx context.Context, status model.CompanyStatus) ([]*model.Company, error) {
	return r.queryList(ctx, "list companies by status",
		`SELECT `+companyColumns+` FROM companies WHERE status = $1 ORDER BY created_at, id`, status)
}

// List は全会社を返す。
func (r *PostgresCompanyRepo) List(ctx context.Context) ([]*model.Company, error) {
	return r.queryList(ctx, "list companies",
		`SELECT `+companyColumns+` FROM companies ORDER BY created_at, id`)
}

// DeleteCascade は会社と従属エンティティを同一トランザクションで削除する。
// 削除順序: applications → jobs → company（company_feedsはCASCADE削除）
func (r *PostgresCompanyRepo) DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM companies WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if isMissingRow(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock company: %w", err)
	}

	result := &model.CascadeResult{}
	if result.Applications, err = execRowsAffected(ctx, tx,
		`DELETE FROM applications WHERE job_id IN (SELECT id FROM jobs WHERE company_id = $1)`, id); err != nil {
		return nil, err
	}
	if result.Jobs, err = execRowsAffected(ctx, tx, `DELETE FROM jobs WHERE company_id = $1`, id); err != nil {
		return nil, err
	}
	if result.Companies, err = execRowsAffected(ctx, tx, `DELETE FROM companies WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
