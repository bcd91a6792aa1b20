package model

import (
	"strings"
	"time"
)

// Role はユーザーのロールを表す。
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCandidate, RoleEmployer, RoleAdmin:
		return r, true
	}
	return "", false
}

// AccountStatus はアカウントの状態を表す。
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// ParseAccountStatus は文字列をAccountStatusに変換する。
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch st := AccountStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case AccountStatusActive, AccountStatusSuspended:
		return st, true
	}
	return "", false
}

// ResumeVerification は候補者の履歴書審査状態を表す。
// 履歴書がアップロードされるまではNONE。
type ResumeVerification string

const (
	ResumeVerificationNone     ResumeVerification = "NONE"
	ResumeVerificationPending  ResumeVerification = "PENDING"
	ResumeVerificationApproved ResumeVerification = "APPROVED"
	ResumeVerificationRejected ResumeVerification = "REJECTED"
)

// ParseResumeVerification は文字列をResumeVerificationに変換する。
func ParseResumeVerification(s string) (ResumeVerification, bool) {
	switch st := ResumeVerification(strings.ToUpper(strings.TrimSpace(s))); st {
	case ResumeVerificationNone, ResumeVerificationPending, ResumeVerificationApproved, ResumeVerificationRejected:
		return st, true
	}
	return "", false
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID                 string
	Role               Role
	Email              string
	Name               string
	Mobile             string
	PasswordHash       string
	AccountStatus      AccountStatus
	ResumeVerification ResumeVerification
	ResumeRef          string
	Skills             []string
	Experience         string
	Education          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsSuspended はアカウントが停止中かどうかを返す。
func (u *User) IsSuspended() bool {
	return u.AccountStatus == AccountStatusSuspended
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Actor は操作を要求している認証済みユーザーを表す。
type Actor struct {
	UserID string
	Role   Role
}

// Is はActorが指定ロールを持つかを返す。
func (a Actor) Is(role Role) bool {
	return a.UserID != "" && a.Role == role
}
