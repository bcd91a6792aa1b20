package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
)

// JobRepo はインメモリの求人リポジトリ。
type JobRepo struct{ s *Store }

// CreateForApprovedCompany は会社がAPPROVEDの場合にのみ求人を作成する。
// 状態確認と挿入は同じロックの中で行う。
func (r *JobRepo) CreateForApprovedCompany(_ context.Context, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.companies[job.CompanyID]
	if !ok || c.Status != model.CompanyStatusApproved {
		return repository.ErrPreconditionFailed
	}
	if job.ExternalRef != "" {
		if _, exists := r.s.jobByRef[refKey(job.CompanyID, job.ExternalRef)]; exists {
			return repository.ErrDuplicate
		}
	}
	if _, exists := r.s.jobs[job.ID]; exists {
		return repository.ErrDuplicate
	}

	r.s.jobs[job.ID] = cloneJob(job)
	setFor(r.s.jobsByCompany, job.CompanyID).add(job.ID)
	if job.ExternalRef != "" {
		r.s.jobByRef[refKey(job.CompanyID, job.ExternalRef)] = job.ID
	}
	return nil
}

// FindByID は指定IDの求人を取得する。
func (r *JobRepo) FindByID(_ context.Context, id string) (*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if j, ok := r.s.jobs[id]; ok {
		return cloneJob(j), nil
	}
	return nil, nil
}

// List は検索条件に一致する求人を新しい順に返す。
func (r *JobRepo) List(_ context.Context, filter model.JobFilter) ([]*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	// オーナー指定時はインデックスから対象を絞り込む
	var candidates []*model.Job
	if filter.OwnerID != "" {
		if companyID, ok := r.s.companyByOwner[filter.OwnerID]; ok {
			for id := range r.s.jobsByCompany[companyID] {
				candidates = append(candidates, r.s.jobs[id])
			}
		}
	} else {
		for _, j := range r.s.jobs {
			if j.Status != model.JobStatusOpen {
				continue
			}
			if c := r.s.companies[j.CompanyID]; c == nil || c.Status != model.CompanyStatusApproved {
				continue
			}
			candidates = append(candidates, j)
		}
	}

	var jobs []*model.Job
	for _, j := range candidates {
		if matchesFilter(j, filter) {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID < jobs[k].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func matchesFilter(j *model.Job, f model.JobFilter) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !containsFold(j.Title, q) && !containsFold(j.Description, q) {
		return false
	}
	for _, c := range []struct{ field, want string }{
		{j.Location, f.Location},
		{j.Category, f.Category},
		{j.SubCategory, f.SubCategory},
		{string(j.Type), f.Type},
	} {
		if w := strings.TrimSpace(c.want); w != "" && !containsFold(c.field, w) {
			return false
		}
	}
	return true
}

// ListByStatus は指定ステータスの求人を登録順に返す。
func (r *JobRepo) ListByStatus(_ context.Context, status model.JobStatus) ([]*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var jobs []*model.Job
	for _, j := range r.s.jobs {
		if j.Status == status {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, byCreated(
		func(i int) time.Time { return jobs[i].CreatedAt },
		func(i int) string { return jobs[i].ID },
	))
	return jobs, nil
}

// SetStatus はステータスを更新する。
func (r *JobRepo) SetStatus(_ context.Context, id string, status model.JobStatus) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[id]
	if !ok || (j.Status == model.JobStatusClosed && status != model.JobStatusClosed) {
		return nil, nil
	}
	j.Status = status
	j.UpdatedAt = r.s.now()
	return cloneJob(j), nil
}

// CloseExpired は締切日がasOfの日付より前のPENDING/OPENの求人をCLOSEDにする。
func (r *JobRepo) CloseExpired(_ context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	y, m, d := asOf.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var closed int64
	for _, j := range r.s.jobs {
		if j.Deadline == nil || (j.Status != model.JobStatusPending && j.Status != model.JobStatusOpen) {
			continue
		}
		dy, dm, dd := j.Deadline.Date()
		if time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).Before(today) {
			j.Status = model.JobStatusClosed
			j.UpdatedAt = r.s.now()
			closed++
		}
	}
	return closed, nil
}

// DeleteCascade は求人と応募を削除する。
func (r *JobRepo) DeleteCascade(_ context.Context, id string) (*model.CascadeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[id]; !ok {
		return nil, nil
	}
	res := &model.CascadeResult{}
	r.s.deleteJobLocked(id, res)
	return res, nil
}

var _ repository.JobRepository = (*JobRepo)(nil)
