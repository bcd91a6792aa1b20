package memory

import (
	"context"
	"sort"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
)

// ApplicationRepo はインメモリの応募リポジトリ。
type ApplicationRepo struct{ s *Store }

// CreateForOpenJob は求人がOPENの場合にのみ応募を作成する。
// 状態確認・重複確認・挿入は同じロックの中で行う。
func (r *ApplicationRepo) CreateForOpenJob(_ context.Context, app *model.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[app.JobID]
	if !ok || j.Status != model.JobStatusOpen {
		return repository.ErrPreconditionFailed
	}
	if _, ok := r.s.users[app.CandidateID]; !ok {
		return repository.ErrPreconditionFailed
	}
	key := pairKey{app.JobID, app.CandidateID}
	if _, exists := r.s.appByPair[key]; exists {
		return repository.ErrDuplicate
	}

	r.s.apps[app.ID] = cloneApplication(app)
	r.s.appByPair[key] = app.ID
	setFor(r.s.appsByJob, app.JobID).add(app.ID)
	setFor(r.s.appsByCandidate, app.CandidateID).add(app.ID)
	return nil
}

// FindByID は指定IDの応募を取得する。
func (r *ApplicationRepo) FindByID(_ context.Context, id string) (*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if a, ok := r.s.apps[id]; ok {
		return cloneApplication(a), nil
	}
	return nil, nil
}

// ListByJobID は求人の応募を応募順に返す。
func (r *ApplicationRepo) ListByJobID(_ context.Context, jobID string) ([]*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var apps []*model.Application
	for id := range r.s.appsByJob[jobID] {
		apps = append(apps, cloneApplication(r.s.apps[id]))
	}
	sort.Slice(apps, byCreated(
		func(i int) time.Time { return apps[i].CreatedAt },
		func(i int) string { return apps[i].ID },
	))
	return apps, nil
}

// ListByCandidateID は候補者の応募を求人名・会社名付きで新しい順に返す。
func (r *ApplicationRepo) ListByCandidateID(_ context.Context, candidateID string) ([]model.ApplicationWithJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var results []model.ApplicationWithJob
	for id := range r.s.appsByCandidate[candidateID] {
		a := r.s.apps[id]
		row := model.ApplicationWithJob{Application: *a}
		if j, ok := r.s.jobs[a.JobID]; ok {
			row.JobTitle = j.Title
			row.CompanyID = j.CompanyID
			if c, ok := r.s.companies[j.CompanyID]; ok {
				row.CompanyName = c.Name
			}
		}
		results = append(results, row)
	}
	sort.Slice(results, func(i, k int) bool {
		if !results[i].CreatedAt.Equal(results[k].CreatedAt) {
			return results[i].CreatedAt.After(results[k].CreatedAt)
		}
		return results[i].ID < results[k].ID
	})
	return results, nil
}

// UpdateStatus はステータスを更新する。
func (r *ApplicationRepo) UpdateStatus(_ context.Context, id string, status model.ApplicationStatus) (*model.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.apps[id]
	if !ok {
		return nil, nil
	}
	a.Status = status
	a.UpdatedAt = r.s.now()
	return cloneApplication(a), nil
}

var _ repository.ApplicationRepository = (*ApplicationRepo)(nil)
