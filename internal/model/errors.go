// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, forbidden, invalid_role, conflict, precondition, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ。呼び出し側が区別すべきエラー種別に対応する。
const (
	CategoryAuth         = "auth"
	CategoryValidation   = "validation"
	CategoryNotFound     = "not_found"
	CategoryForbidden    = "forbidden"
	CategoryInvalidRole  = "invalid_role"
	CategoryConflict     = "conflict"
	CategoryPrecondition = "precondition"
	CategorySystem       = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeCompanyNotFound      = "COMPANY_NOT_FOUND"
	ErrCodeJobNotFound          = "JOB_NOT_FOUND"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidRole          = "INVALID_ROLE"
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeCompanyExists        = "COMPANY_ALREADY_EXISTS"
	ErrCodeDuplicateApplication = "DUPLICATE_APPLICATION"
	ErrCodeJobAlreadyImported   = "JOB_ALREADY_IMPORTED"
	ErrCodeCompanyRequired      = "COMPANY_REQUIRED"
	ErrCodeCompanyNotApproved   = "COMPANY_NOT_APPROVED"
	ErrCodeJobNotOpen           = "JOB_NOT_OPEN"
	ErrCodeJobClosed            = "JOB_CLOSED"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeInvalidDecision      = "INVALID_DECISION"
	ErrCodeInvalidKind          = "INVALID_KIND"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeFeedNotDetected      = "FEED_NOT_DETECTED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeResumeNotSubmitted   = "RESUME_NOT_SUBMITTED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// IsCode はエラーチェーン中のAPIErrorが指定コードを持つかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// CategoryOf はエラーチェーン中のAPIErrorのカテゴリを返す。
// APIError以外のエラーはsystemとして扱う。
func CategoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategorySystem
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "指定されたユーザーが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ユーザーIDを確認するか、再度ログインしてください。",
	}
}

// NewCompanyNotFoundError は会社が見つからない場合のエラーを生成する。
func NewCompanyNotFoundError(companyID string) *APIError {
	return &APIError{
		Code:     ErrCodeCompanyNotFound,
		Message:  fmt.Sprintf("指定された会社が見つかりません: %s", companyID),
		Category: CategoryNotFound,
		Action:   "会社IDを確認してください。",
	}
}

// NewJobNotFoundError は求人が見つからない場合のエラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定された求人が見つかりません: %s", jobID),
		Category: CategoryNotFound,
		Action:   "求人が削除された可能性があります。求人一覧に戻ってください。",
	}
}

// NewApplicationNotFoundError は応募が見つからない場合のエラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", applicationID),
		Category: CategoryNotFound,
		Action:   "応募IDを確認してください。",
	}
}

// NewForbiddenError は所有権のないリソースを操作しようとした場合のエラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: CategoryForbidden,
		Action:   "対象を所有するアカウントでログインしてください。",
	}
}

// NewInvalidRoleError はロールが操作と両立しない場合のエラーを生成する。
func NewInvalidRoleError(required Role) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("この操作は %s アカウントのみ利用できます。", required),
		Category: CategoryInvalidRole,
		Action:   fmt.Sprintf("%s アカウントでログインしてください。", required),
	}
}

// NewDuplicateEmailError はメールアドレスが登録済みの場合のエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: CategoryConflict,
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewCompanyExistsError は雇用者が既に会社を所有している場合のエラーを生成する。
func NewCompanyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeCompanyExists,
		Message:  "会社は既に登録されています。",
		Category: CategoryConflict,
		Action:   "登録済みの会社プロフィールを編集してください。",
	}
}

// NewDuplicateApplicationError は同じ求人に二重応募した場合のエラーを生成する。
func NewDuplicateApplicationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateApplication,
		Message:  "この求人には既に応募しています。",
		Category: CategoryConflict,
		Action:   "応募履歴から選考状況を確認してください。",
	}
}

// NewJobAlreadyImportedError はフィード由来の求人が取り込み済みの場合のエラーを生成する。
func NewJobAlreadyImportedError(externalRef string) *APIError {
	return &APIError{
		Code:     ErrCodeJobAlreadyImported,
		Message:  fmt.Sprintf("フィードのエントリは取り込み済みです: %s", externalRef),
		Category: CategoryConflict,
		Action:   "対処は不要です。",
	}
}

// NewCompanyRequiredError は会社未登録の雇用者が求人を作成しようとした場合のエラーを生成する。
func NewCompanyRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCompanyRequired,
		Message:  "求人を作成するには会社プロフィールの登録が必要です。",
		Category: CategoryPrecondition,
		Action:   "会社プロフィールを登録し、承認されるまでお待ちください。",
	}
}

// NewCompanyNotApprovedError は会社が未承認の状態で求人を作成しようとした場合のエラーを生成する。
func NewCompanyNotApprovedError(status CompanyStatus) *APIError {
	return &APIError{
		Code:     ErrCodeCompanyNotApproved,
		Message:  fmt.Sprintf("会社がまだ承認されていません（ステータス: %s）。", status),
		Category: CategoryPrecondition,
		Action:   "管理者が会社を承認すると求人を作成できます。",
	}
}

// NewJobNotOpenError は募集中でない求人に応募しようとした場合のエラーを生成する。
func NewJobNotOpenError() *APIError {
	return &APIError{
		Code:     ErrCodeJobNotOpen,
		Message:  "この求人は現在応募を受け付けていません。",
		Category: CategoryPrecondition,
		Action:   "募集中の他の求人を探してください。",
	}
}

// NewJobClosedError は募集終了済みの求人のステータスを変更しようとした場合のエラーを生成する。
func NewJobClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeJobClosed,
		Message:  "この求人は募集を終了しています。",
		Category: CategoryPrecondition,
		Action:   "募集を再開する場合は新しい求人を作成してください。",
	}
}

// NewResumeNotSubmittedError は履歴書が未提出の候補者を審査しようとした場合のエラーを生成する。
func NewResumeNotSubmittedError() *APIError {
	return &APIError{
		Code:     ErrCodeResumeNotSubmitted,
		Message:  "この候補者はまだ履歴書を提出していません。",
		Category: CategoryPrecondition,
		Action:   "履歴書が提出されてから審査してください。",
	}
}

// NewInvalidStatusError は列挙外のステータス値が指定された場合のエラーを生成する。
func NewInvalidStatusError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", value),
		Category: CategoryValidation,
		Action:   "定義済みのステータスのいずれかを指定してください。",
	}
}

// NewInvalidDecisionError はモデレーション判定値が不正な場合のエラーを生成する。
func NewInvalidDecisionError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDecision,
		Message:  fmt.Sprintf("無効な判定です: %s", value),
		Category: CategoryValidation,
		Action:   "APPROVED または REJECTED を指定してください（求人は OPEN も指定できます）。",
	}
}

// NewInvalidKindError はモデレーション対象の種別が不正な場合のエラーを生成する。
func NewInvalidKindError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効な種別です: %s", value),
		Category: CategoryValidation,
		Action:   "呼び出している管理APIを確認してください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s が不正です: %s", field, reason),
		Category: CategoryValidation,
		Action:   "入力内容を修正して再度送信してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: CategoryValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewFeedNotDetectedError は採用フィードを検出できなかった場合のエラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLから採用情報のRSS/Atomフィードを検出できませんでした: %s", url),
		Category: CategoryValidation,
		Action:   "フィードのURLを直接入力するか、フィードが公開されている採用ページのURLを確認してください。",
	}
}

// NewInvalidCredentialsError はログイン情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewAccountSuspendedError はアカウント停止中の場合のエラーを生成する。
func NewAccountSuspendedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountSuspended,
		Message:  "このアカウントは停止されています。",
		Category: CategoryForbidden,
		Action:   "心当たりがない場合はサポートにお問い合わせください。",
	}
}

// NewUnauthorizedError は未認証の場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: CategoryValidation,
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: CategoryForbidden,
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
