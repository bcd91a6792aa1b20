package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobbridge/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Apply(ctx context.Context, actor model.Actor, jobID, resumeRef string, contact model.Contact) (*model.Application, error)
	ListForJob(ctx context.Context, actor model.Actor, jobID string) ([]*model.Application, error)
	SetStatus(ctx context.Context, actor model.Actor, applicationID string, status model.ApplicationStatus) (*model.Application, error)
}

// ApplicationHandler は応募のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

type applyRequest struct {
	ResumeRef string `json:"resume_ref"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type applicationStatusRequest struct {
	Status string `json:"status"`
}

type contactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// applicationResponse は応募情報のAPIレスポンス。
// 候補者自身の履歴一覧では求人と会社の表示用情報を含む。
type applicationResponse struct {
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	CandidateID string          `json:"candidate_id"`
	ResumeRef   string          `json:"resume_ref,omitempty"`
	Contact     contactResponse `json:"contact"`
	Status      string          `json:"status"`
	JobTitle    string          `json:"job_title,omitempty"`
	CompanyID   string          `json:"company_id,omitempty"`
	CompanyName string          `json:"company_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toApplicationResponse(a *model.Application) applicationResponse {
	return applicationResponse{
		ID:          a.ID,
		JobID:       a.JobID,
		CandidateID: a.CandidateID,
		ResumeRef:   a.ResumeRef,
		Contact: contactResponse{
			Name:  a.Contact.Name,
			Email: a.Contact.Email,
			Phone: a.Contact.Phone,
		},
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Apply は候補者として求人に応募する。
// POST /api/jobs/{id}/applications
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	app, err := h.service.Apply(r.Context(), actor, chi.URLParam(r, "id"), req.ResumeRef, model.Contact{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ListForJob は求人への応募一覧を返す。求人の所有者と管理者のみ。
// GET /api/jobs/{id}/applications
func (h *ApplicationHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListForJob(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// SetStatus は応募の選考ステータスを変更する。
// PUT /api/applications/{id}/status
func (h *ApplicationHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req applicationStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	app, err := h.service.SetStatus(r.Context(), actor, chi.URLParam(r, "id"), model.ApplicationStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
