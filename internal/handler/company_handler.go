package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobbridge/internal/company"
	"github.com/hitoshi/jobbridge/internal/model"
)

// CompanyServiceInterface は会社ハンドラーが必要とするサービスインターフェース。
type CompanyServiceInterface interface {
	CreateCompany(ctx context.Context, actor model.Actor, in company.Profile) (*model.Company, error)
	GetByOwner(ctx context.Context, ownerID string) (*model.Company, error)
	UpdateCompany(ctx context.Context, actor model.Actor, companyID string, patch company.ProfilePatch) (*model.Company, error)
	SetCareersFeed(ctx context.Context, actor model.Actor, companyID, rawURL string) (*model.CompanyFeed, error)
}

// CompanyHandler は会社プロフィール管理のHTTPハンドラー。
type CompanyHandler struct {
	service CompanyServiceInterface
}

// NewCompanyHandler はCompanyHandlerを生成する。
func NewCompanyHandler(service CompanyServiceInterface) *CompanyHandler {
	return &CompanyHandler{service: service}
}

type companyRequest struct {
	Name               *string `json:"name"`
	Industry           *string `json:"industry"`
	Type               *string `json:"type"`
	Size               *string `json:"size"`
	Location           *string `json:"location"`
	Website            *string `json:"website"`
	LogoRef            *string `json:"logo_ref"`
	VerificationDocRef *string `json:"verification_doc_ref"`
}

type careersFeedRequest struct {
	URL string `json:"url"`
}

// companyResponse は会社情報のAPIレスポンス。
type companyResponse struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	Name               string    `json:"name"`
	Industry           string    `json:"industry,omitempty"`
	Type               string    `json:"type,omitempty"`
	Size               string    `json:"size,omitempty"`
	Location           string    `json:"location,omitempty"`
	Website            string    `json:"website,omitempty"`
	LogoRef            string    `json:"logo_ref,omitempty"`
	VerificationDocRef string    `json:"verification_doc_ref,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

type careersFeedResponse struct {
	CompanyID   string    `json:"company_id"`
	FeedURL     string    `json:"feed_url"`
	FetchStatus string    `json:"fetch_status"`
	NextFetchAt time.Time `json:"next_fetch_at"`
}

func toCompanyResponse(c *model.Company) companyResponse {
	return companyResponse{
		ID:                 c.ID,
		OwnerID:            c.OwnerID,
		Name:               c.Name,
		Industry:           c.Industry,
		Type:               c.Type,
		Size:               c.Size,
		Location:           c.Location,
		Website:            c.Website,
		LogoRef:            c.LogoRef,
		VerificationDocRef: c.VerificationDocRef,
		Status:             string(c.Status),
		CreatedAt:          c.CreatedAt,
	}
}

func toCompanyResponses(companies []*model.Company) []companyResponse {
	out := make([]companyResponse, 0, len(companies))
	for _, c := range companies {
		out = append(out, toCompanyResponse(c))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create は雇用者の会社プロフィールを作成する。初期ステータスはPENDING。
// POST /api/companies
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req companyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.CreateCompany(r.Context(), actor, company.Profile{
		Name:               deref(req.Name),
		Industry:           deref(req.Industry),
		Type:               deref(req.Type),
		Size:               deref(req.Size),
		Location:           deref(req.Location),
		Website:            deref(req.Website),
		LogoRef:            deref(req.LogoRef),
		VerificationDocRef: deref(req.VerificationDocRef),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCompanyResponse(c))
}

// Mine はログイン中の雇用者が所有する会社を返す。
// GET /api/companies/me
func (h *CompanyHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	c, err := h.service.GetByOwner(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// Update は会社プロフィールを部分更新する。
// PATCH /api/companies/{id}
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req companyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.UpdateCompany(r.Context(), actor, chi.URLParam(r, "id"), company.ProfilePatch{
		Name:               req.Name,
		Industry:           req.Industry,
		Type:               req.Type,
		Size:               req.Size,
		Location:           req.Location,
		Website:            req.Website,
		LogoRef:            req.LogoRef,
		VerificationDocRef: req.VerificationDocRef,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// SetCareersFeed は会社の採用フィードを登録する。URLが空の場合は登録を解除する。
// PUT /api/companies/{id}/careers-feed
func (h *CompanyHandler) SetCareersFeed(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req careersFeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	feed, err := h.service.SetCareersFeed(r.Context(), actor, chi.URLParam(r, "id"), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, careersFeedResponse{
		CompanyID:   feed.CompanyID,
		FeedURL:     feed.FeedURL,
		FetchStatus: string(feed.FetchStatus),
		NextFetchAt: feed.NextFetchAt,
	})
}
