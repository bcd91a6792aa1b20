package model

import (
	"strings"
	"time"
)

// CompanyStatus は会社プロフィールの審査状態を表す。
type CompanyStatus string

const (
	CompanyStatusPending  CompanyStatus = "PENDING"
	CompanyStatusApproved CompanyStatus = "APPROVED"
	CompanyStatusRejected CompanyStatus = "REJECTED"
)

// ParseCompanyStatus は文字列をCompanyStatusに変換する。大文字小文字は区別しない。
func ParseCompanyStatus(s string) (CompanyStatus, bool) {
	switch st := CompanyStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case CompanyStatusPending, CompanyStatusApproved, CompanyStatusRejected:
		return st, true
	}
	return "", false
}

// Company は雇用者が所有する会社プロフィールを表す。
// 雇用者1人につき1社のみ。
type Company struct {
	ID                 string
	OwnerID            string
	Name               string
	Industry           string
	Type               string
	Size               string
	Location           string
	Website            string
	LogoRef            string
	VerificationDocRef string
	Status             CompanyStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FetchStatus は採用フィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// CompanyFeed は会社の採用情報フィードとフェッチ状態を表す。
type CompanyFeed struct {
	CompanyID         string
	FeedURL           string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
