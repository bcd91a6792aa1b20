package model

import (
	"strings"
	"time"
)

// ApplicationStatus は応募の選考状態を表す。
// 遷移順序は強制せず、どの状態からどの状態へも変更できる。
type ApplicationStatus string

const (
	ApplicationStatusApplied     ApplicationStatus = "Applied"
	ApplicationStatusViewed      ApplicationStatus = "Viewed"
	ApplicationStatusShortlisted ApplicationStatus = "Shortlisted"
	ApplicationStatusInterview   ApplicationStatus = "Interview"
	ApplicationStatusHired       ApplicationStatus = "Hired"
	ApplicationStatusSelected    ApplicationStatus = "Selected"
	ApplicationStatusRejected    ApplicationStatus = "Rejected"
)

// ApplicationStatuses は定義済みの全ての応募ステータスを返す。
func ApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationStatusApplied,
		ApplicationStatusViewed,
		ApplicationStatusShortlisted,
		ApplicationStatusInterview,
		ApplicationStatusHired,
		ApplicationStatusSelected,
		ApplicationStatusRejected,
	}
}

// ParseApplicationStatus は文字列をApplicationStatusに変換する。大文字小文字は区別しない。
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	for _, st := range ApplicationStatuses() {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

// Contact は応募時点の連絡先スナップショット。
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Application は候補者の求人への応募を表す。
// (JobID, CandidateID) の組は一意。
type Application struct {
	ID          string
	JobID       string
	CandidateID string
	ResumeRef   string
	Contact     Contact
	Status      ApplicationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplicationWithJob は応募と求人・会社の表示用情報を結合した構造体。
type ApplicationWithJob struct {
	Application
	JobTitle    string
	CompanyID   string
	CompanyName string
}
