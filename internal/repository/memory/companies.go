package memory

import (
	"context"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/repository"
)

// CompanyRepo はインメモリの会社リポジトリ。
type CompanyRepo struct{ s *Store }

// Create は会社を作成する。
func (r *CompanyRepo) Create(_ context.Context, company *model.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[company.OwnerID]; !ok {
		return repository.ErrPreconditionFailed
	}
	if _, exists := r.s.companyByOwner[company.OwnerID]; exists {
		return repository.ErrDuplicate
	}
	r.s.companies[company.ID] = cloneCompany(company)
	r.s.companyByOwner[company.OwnerID] = company.ID
	return nil
}

// FindByID は指定IDの会社を取得する。
func (r *CompanyRepo) FindByID(_ context.Context, id string) (*model.Company, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if c, ok := r.s.companies[id]; ok {
		return cloneCompany(c), nil
	}
	return nil, nil
}

// FindByOwnerID はオーナーの会社を取得する。
func (r *CompanyRepo) FindByOwnerID(_ context.Context, ownerID string) (*model.Company, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if id, ok := r.s.companyByOwner[ownerID]; ok {
		return cloneCompany(r.s.companies[id]), nil
	}
	return nil, nil
}

// UpdateProfile はプロフィール項目を更新する。ステータスは変更しない。
func (r *CompanyRepo) UpdateProfile(_ context.Context, company *model.Company) (*model.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.companies[company.ID]
	if !ok {
		return nil, nil
	}
	owner, status, created := c.OwnerID, c.Status, c.CreatedAt
	*c = *company
	c.OwnerID = owner
	c.Status = status
	c.CreatedAt = created
	c.UpdatedAt = r.s.now()
	return cloneCompany(c), nil
}

// SetStatus はステータスを更新する。
func (r *CompanyRepo) SetStatus(_ context.Context, id string, status model.CompanyStatus) (*model.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.companies[id]
	if !ok {
		return nil, nil
	}
	c.Status = status
	c.UpdatedAt = r.s.now()
	return cloneCompany(c), nil
}

// ListByStatus は指定ステータスの会社を返す。
func (r *CompanyRepo) ListByStatus(_ context.Context, status model.CompanyStatus) ([]*model.Company, error) {
	return r.list(func(c *model.Company) bool { return c.Status == status }), nil
}

// List は全会社を返す。
func (r *CompanyRepo) List(_ context.Context) ([]*model.Company, error) {
	return r.list(func(*model.Company) bool { return true }), nil
}

func (r *CompanyRepo) list(match func(*model.Company) bool) []*model.Company {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var companies []*model.Company
	for _, c := range r.s.companies {
		if match(c) {
			companies = append(companies, cloneCompany(c))
		}
	}
	sortCompanies(companies)
	return companies
}

// DeleteCascade は会社と従属エンティティを削除する。
func (r *CompanyRepo) DeleteCascade(_ context.Context, id string) (*model.CascadeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.companies[id]; !ok {
		return nil, nil
	}
	res := &model.CascadeResult{}
	r.s.deleteCompanyLocked(id, res)
	return res, nil
}

// CompanyFeedRepo はインメモリの採用フィードリポジトリ。
type CompanyFeedRepo struct{ s *Store }

// Upsert は採用フィードを登録または置き換える。
func (r *CompanyFeedRepo) Upsert(_ context.Context, feed *model.CompanyFeed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.companies[feed.CompanyID]; !ok {
		return repository.ErrPreconditionFailed
	}
	created := feed.UpdatedAt
	if existing, ok := r.s.feeds[feed.CompanyID]; ok {
		created = existing.CreatedAt
	}
	r.s.feeds[feed.CompanyID] = &model.CompanyFeed{
		CompanyID:   feed.CompanyID,
		FeedURL:     feed.FeedURL,
		FetchStatus: model.FetchStatusActive,
		NextFetchAt: feed.NextFetchAt,
		CreatedAt:   created,
		UpdatedAt:   feed.UpdatedAt,
	}
	return nil
}

// FindByCompanyID は会社の採用フィードを取得する。
func (r *CompanyFeedRepo) FindByCompanyID(_ context.Context, companyID string) (*model.CompanyFeed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if f, ok := r.s.feeds[companyID]; ok {
		return cloneFeed(f), nil
	}
	return nil, nil
}

// DeleteByCompanyID は会社の採用フィードを削除する。
func (r *CompanyFeedRepo) DeleteByCompanyID(_ context.Context, companyID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.feeds, companyID)
	return nil
}

// ListDueForFetch はフェッチ対象の採用フィードを返す。
func (r *CompanyFeedRepo) ListDueForFetch(_ context.Context, now time.Time) ([]*model.CompanyFeed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var feeds []*model.CompanyFeed
	for _, f := range r.s.feeds {
		c := r.s.companies[f.CompanyID]
		if f.FetchStatus != model.FetchStatusActive || f.NextFetchAt.After(now) ||
			c == nil || c.Status != model.CompanyStatusApproved {
			continue
		}
		feeds = append(feeds, cloneFeed(f))
	}
	return feeds, nil
}

// UpdateFetchState はフェッチ状態を更新する。
func (r *CompanyFeedRepo) UpdateFetchState(_ context.Context, feed *model.CompanyFeed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.feeds[feed.CompanyID]
	if !ok {
		return nil
	}
	f.ETag = feed.ETag
	f.LastModified = feed.LastModified
	f.FetchStatus = feed.FetchStatus
	f.ConsecutiveErrors = feed.ConsecutiveErrors
	f.ErrorMessage = feed.ErrorMessage
	f.NextFetchAt = feed.NextFetchAt
	f.UpdatedAt = r.s.now()
	return nil
}

var (
	_ repository.CompanyRepository     = (*CompanyRepo)(nil)
	_ repository.CompanyFeedRepository = (*CompanyFeedRepo)(nil)
)
