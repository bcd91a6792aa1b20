// Package memory はrepositoryインターフェースのインメモリ実装を提供する。
//
// エンティティはIDをキーとするマップに保持し、所有者から被所有エンティティへの
// 逆引きインデックスを持つ。カスケード削除は全件走査せずにインデックスをたどり、
// ストア全体で1つのロックを保持したまま一括で行う。
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
)

type idSet map[string]struct{}

func (s idSet) add(id string)    { s[id] = struct{}{} }
func (s idSet) remove(id string) { delete(s, id) }

type pairKey struct {
	jobID       string
	candidateID string
}

// Store はインメモリのデータストア。
type Store struct {
	mu sync.RWMutex

	users          map[string]*model.User
	userByEmail    map[string]string
	sessions       map[string]*model.Session
	sessionsByUser map[string]idSet

	companies      map[string]*model.Company
	companyByOwner map[string]string
	feeds          map[string]*model.CompanyFeed

	jobs          map[string]*model.Job
	jobsByCompany map[string]idSet
	jobByRef      map[string]string

	apps            map[string]*model.Application
	appsByJob       map[string]idSet
	appsByCandidate map[string]idSet
	appByPair       map[pairKey]string

	now func() time.Time
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		users:           make(map[string]*model.User),
		userByEmail:     make(map[string]string),
		sessions:        make(map[string]*model.Session),
		sessionsByUser:  make(map[string]idSet),
		companies:       make(map[string]*model.Company),
		companyByOwner:  make(map[string]string),
		feeds:           make(map[string]*model.CompanyFeed),
		jobs:            make(map[string]*model.Job),
		jobsByCompany:   make(map[string]idSet),
		jobByRef:        make(map[string]string),
		apps:            make(map[string]*model.Application),
		appsByJob:       make(map[string]idSet),
		appsByCandidate: make(map[string]idSet),
		appByPair:       make(map[pairKey]string),
		now:             time.Now,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Users はユーザーリポジトリを返す。
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Sessions はセッションリポジトリを返す。
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// Companies は会社リポジトリを返す。
func (s *Store) Companies() *CompanyRepo { return &CompanyRepo{s: s} }

// Jobs は求人リポジトリを返す。
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

// Applications は応募リポジトリを返す。
func (s *Store) Applications() *ApplicationRepo { return &ApplicationRepo{s: s} }

// CompanyFeeds は採用フィードリポジトリを返す。
func (s *Store) CompanyFeeds() *CompanyFeedRepo { return &CompanyFeedRepo{s: s} }

// ---- カスケード削除（呼び出し側でロックを保持すること） ----

func (s *Store) deleteApplicationLocked(id string, res *model.CascadeResult) {
	app, ok := s.apps[id]
	if !ok {
		return
	}
	delete(s.apps, id)
	s.appsByJob[app.JobID].remove(id)
	s.appsByCandidate[app.CandidateID].remove(id)
	delete(s.appByPair, pairKey{app.JobID, app.CandidateID})
	res.Applications++
}

func (s *Store) deleteJobLocked(id string, res *model.CascadeResult) {
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	for appID := range s.appsByJob[id] {
		s.deleteApplicationLocked(appID, res)
	}
	delete(s.appsByJob, id)
	delete(s.jobs, id)
	s.jobsByCompany[job.CompanyID].remove(id)
	if job.ExternalRef != "" {
		delete(s.jobByRef, refKey(job.CompanyID, job.ExternalRef))
	}
	res.Jobs++
}

func (s *Store) deleteCompanyLocked(id string, res *model.CascadeResult) {
	company, ok := s.companies[id]
	if !ok {
		return
	}
	for jobID := range s.jobsByCompany[id] {
		s.deleteJobLocked(jobID, res)
	}
	delete(s.jobsByCompany, id)
	delete(s.feeds, id)
	delete(s.companies, id)
	delete(s.companyByOwner, company.OwnerID)
	res.Companies++
}

func (s *Store) deleteUserLocked(id string, res *model.CascadeResult) {
	user, ok := s.users[id]
	if !ok {
		return
	}
	if companyID, ok := s.companyByOwner[id]; ok {
		s.deleteCompanyLocked(companyID, res)
	}
	for appID := range s.appsByCandidate[id] {
		s.deleteApplicationLocked(appID, res)
	}
	delete(s.appsByCandidate, id)
	for sessionID := range s.sessionsByUser[id] {
		delete(s.sessions, sessionID)
		res.Sessions++
	}
	delete(s.sessionsByUser, id)
	delete(s.userByEmail, strings.ToLower(user.Email))
	delete(s.users, id)
	res.Users++
}

// ---- 複製・索引ヘルパー ----

func refKey(companyID, externalRef string) string {
	return companyID + "\x00" + externalRef
}

func setFor(m map[string]idSet, key string) idSet {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	return set
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append([]string(nil), ss...)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Skills = cloneStrings(u.Skills)
	return &c
}

func cloneCompany(c *model.Company) *model.Company {
	cp := *c
	return &cp
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	c.Skills = cloneStrings(j.Skills)
	if j.Vacancies != nil {
		v := *j.Vacancies
		c.Vacancies = &v
	}
	if j.Deadline != nil {
		d := *j.Deadline
		c.Deadline = &d
	}
	return &c
}

func cloneApplication(a *model.Application) *model.Application {
	c := *a
	return &c
}

func cloneFeed(f *model.CompanyFeed) *model.CompanyFeed {
	c := *f
	return &c
}

// byCreated は作成日時、同時刻ならIDの昇順に並べる比較関数を返す。
func byCreated(created func(i int) time.Time, id func(i int) string) func(i, j int) bool {
	return func(i, j int) bool {
		ci, cj := created(i), created(j)
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(i) < id(j)
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortUsers(users []*model.User) {
	sort.Slice(users, byCreated(
		func(i int) time.Time { return users[i].CreatedAt },
		func(i int) string { return users[i].ID },
	))
}

func sortCompanies(companies []*model.Company) {
	sort.Slice(companies, byCreated(
		func(i int) time.Time { return companies[i].CreatedAt },
		func(i int) string { return companies[i].ID },
	))
}
