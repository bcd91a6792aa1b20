package model

import (
	"strings"
	"time"
)

// JobStatus は求人の状態を表す。
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusOpen     JobStatus = "OPEN"
	JobStatusRejected JobStatus = "REJECTED"
	JobStatusClosed   JobStatus = "CLOSED"
)

// ParseJobStatus は文字列をJobStatusに変換する。大文字小文字は区別しない。
func ParseJobStatus(s string) (JobStatus, bool) {
	switch st := JobStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case JobStatusPending, JobStatusOpen, JobStatusRejected, JobStatusClosed:
		return st, true
	}
	return "", false
}

// JobType は雇用形態を表す。
type JobType string

const (
	JobTypeFullTime  JobType = "Full Time"
	JobTypePartTime  JobType = "Part Time"
	JobTypeContract  JobType = "Contract"
	JobTypeFreelance JobType = "Freelance"
)

// ParseJobType は文字列をJobTypeに変換する。
func ParseJobType(s string) (JobType, bool) {
	for _, t := range []JobType{JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeFreelance} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, true
		}
	}
	return "", false
}

// Perk は食事手当・住居などの福利厚生の提供区分を表す。
type Perk string

const (
	PerkNo         Perk = "No"
	PerkYes        Perk = "Yes"
	PerkSubsidized Perk = "Subsidized/Assistance"
)

// ParsePerk は文字列をPerkに変換する。空文字はNoとして扱う。
func ParsePerk(s string) (Perk, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PerkNo, true
	}
	for _, p := range []Perk{PerkNo, PerkYes, PerkSubsidized} {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Job は会社が掲載する求人を表す。
type Job struct {
	ID                string
	CompanyID         string
	Title             string
	Category          string
	SubCategory       string
	Location          string
	Type              JobType
	Salary            string
	Experience        string
	Vacancies         *int
	Shift             string
	WorkMode          string
	FoodAllowance     Perk
	Accommodation     Perk
	EducationRequired string
	Deadline          *time.Time
	Description       string
	Skills            []string
	ExternalRef       string
	Status            JobStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// JobFilter は求人一覧の検索条件を表す。
// 空のフィールドは全件一致として扱う。
type JobFilter struct {
	Query       string
	Location    string
	Category    string
	SubCategory string
	Type        string
	// OwnerID が指定された場合、その雇用者の会社の求人を全ステータスで返す。
	OwnerID string
	Limit   int
	Offset  int
}
