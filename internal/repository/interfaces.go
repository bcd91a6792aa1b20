// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
//
// 見つからない場合の単一取得は (nil, nil) を返す。一意制約違反は ErrDuplicate、
// 条件付きINSERTの前提条件不成立は ErrPreconditionFailed として返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが重複する場合は ErrDuplicate を返す。
	Create(ctx context.Context, user *model.User) error
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateProfile はプロフィール項目のみを更新する。ステータス類は変更しない。
	UpdateProfile(ctx context.Context, user *model.User) error
	// AttachResume は候補者の履歴書参照を設定し、審査状態をPENDINGにする。
	// 対象が存在しないか候補者でない場合はnilを返す。
	AttachResume(ctx context.Context, id, resumeRef string) (*model.User, error)
	// SetResumeVerification は候補者の履歴書審査状態を単一のUPDATEで更新する。
	// 対象が存在しない、候補者でない、または履歴書が未提出の場合はnilを返す。
	SetResumeVerification(ctx context.Context, id string, status model.ResumeVerification) (*model.User, error)
	// SetAccountStatus はアカウント状態を更新する。見つからない場合はnilを返す。
	SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) (*model.User, error)
	// ListByResumeVerification は指定の履歴書審査状態の候補者を登録順に返す。
	ListByResumeVerification(ctx context.Context, status model.ResumeVerification) ([]*model.User, error)
	// List は全ユーザーを登録順に返す。
	List(ctx context.Context) ([]*model.User, error)
	// DeleteCascade はユーザーと所有する会社・求人・応募・セッションを
	// 同一トランザクションで削除する。見つからない場合はnilを返す。
	DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は now 時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CompanyRepository は会社データの永続化インターフェース。
type CompanyRepository interface {
	// Create は会社を作成する。オーナーが既に会社を所有している場合は ErrDuplicate を返す。
	Create(ctx context.Context, company *model.Company) error
	// FindByID は指定IDの会社を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Company, error)
	// FindByOwnerID はオーナーの会社を取得する。見つからない場合はnilを返す。
	FindByOwnerID(ctx context.Context, ownerID string) (*model.Company, error)
	// UpdateProfile はプロフィール項目のみを更新し、書き込み後の行を返す。
	// ステータスは変更しない。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, company *model.Company) (*model.Company, error)
	// SetStatus はステータスを単一のUPDATEで更新する。見つからない場合はnilを返す。
	SetStatus(ctx context.Context, id string, status model.CompanyStatus) (*model.Company, error)
	// ListByStatus は指定ステータスの会社を登録順に返す。
	ListByStatus(ctx context.Context, status model.CompanyStatus) ([]*model.Company, error)
	// List は全会社を登録順に返す。
	List(ctx context.Context) ([]*model.Company, error)
	// DeleteCascade は会社と求人・応募・採用フィードを同一トランザクションで削除する。
	// 見つからない場合はnilを返す。
	DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error)
}

// JobRepository は求人データの永続化インターフェース。
type JobRepository interface {
	// CreateForApprovedCompany は会社がAPPROVEDの場合にのみ求人を作成する。
	// 会社の状態確認と挿入は単一の文で行い、条件を満たさない場合は
	// ErrPreconditionFailed、external_refが重複する場合は ErrDuplicate を返す。
	CreateForApprovedCompany(ctx context.Context, job *model.Job) error
	// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Job, error)
	// List は検索条件に一致する求人を新しい順に返す。
	// filter.OwnerIDが空の場合はOPENかつ会社がAPPROVEDの求人のみを返す。
	List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error)
	// ListByStatus は指定ステータスの求人を登録順に返す。
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	// SetStatus はステータスを単一のUPDATEで更新する。見つからない場合はnilを返す。
	// CLOSEDの求人はCLOSED以外に変更せず、この場合もnilを返す。
	SetStatus(ctx context.Context, id string, status model.JobStatus) (*model.Job, error)
	// CloseExpired は締切日がasOfより前のPENDING/OPENの求人をCLOSEDにし、件数を返す。
	CloseExpired(ctx context.Context, asOf time.Time) (int64, error)
	// DeleteCascade は求人と応募を同一トランザクションで削除する。見つからない場合はnilを返す。
	DeleteCascade(ctx context.Context, id string) (*model.CascadeResult, error)
}

// ApplicationRepository は応募データの永続化インターフェース。
type ApplicationRepository interface {
	// CreateForOpenJob は求人がOPENの場合にのみ応募を作成する。
	// 求人がOPENでなければ ErrPreconditionFailed、(job_id, candidate_id) が
	// 重複する場合は ErrDuplicate を返す。
	CreateForOpenJob(ctx context.Context, app *model.Application) error
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)
	// ListByJobID は求人の応募を応募順に返す。
	ListByJobID(ctx context.Context, jobID string) ([]*model.Application, error)
	// ListByCandidateID は候補者の応募を求人名・会社名付きで新しい順に返す。
	ListByCandidateID(ctx context.Context, candidateID string) ([]model.ApplicationWithJob, error)
	// UpdateStatus はステータスを単一のUPDATEで更新する。見つからない場合はnilを返す。
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (*model.Application, error)
}

// CompanyFeedRepository は採用フィードの永続化インターフェース。
type CompanyFeedRepository interface {
	// Upsert は会社の採用フィードを登録または置き換える。フェッチ状態は初期化される。
	Upsert(ctx context.Context, feed *model.CompanyFeed) error
	// FindByCompanyID は会社の採用フィードを取得する。見つからない場合はnilを返す。
	FindByCompanyID(ctx context.Context, companyID string) (*model.CompanyFeed, error)
	// DeleteByCompanyID は会社の採用フィードを削除する。
	DeleteByCompanyID(ctx context.Context, companyID string) error
	// ListDueForFetch はnext_fetch_at <= now かつactiveで、会社がAPPROVEDのフィードを返す。
	ListDueForFetch(ctx context.Context, now time.Time) ([]*model.CompanyFeed, error)
	// UpdateFetchState はフェッチ状態（etag、last_modified、エラー情報、次回フェッチ日時）を更新する。
	UpdateFetchState(ctx context.Context, feed *model.CompanyFeed) error
}
