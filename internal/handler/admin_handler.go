package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/moderation"
)

// ModerationServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type ModerationServiceInterface interface {
	ListPending(ctx context.Context, actor model.Actor, kind string) (*moderation.Listing, error)
	Decide(ctx context.Context, actor model.Actor, kind, id, decision string) (*moderation.Decision, error)
	ListAll(ctx context.Context, actor model.Actor, kind string) (*moderation.Listing, error)
	Purge(ctx context.Context, actor model.Actor, kind, id string) (*model.CascadeResult, error)
	SetAccountStatus(ctx context.Context, actor model.Actor, userID, status string) (*model.User, error)
}

// AdminHandler は管理者向けの審査・一括管理のHTTPハンドラー。
type AdminHandler struct {
	service ModerationServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service ModerationServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

type decisionResponse struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// writeListing は種別に応じた一覧をJSONで書き込む。
func writeListing(w http.ResponseWriter, l *moderation.Listing) {
	switch l.Kind {
	case moderation.KindCompanies:
		writeJSON(w, http.StatusOK, toCompanyResponses(l.Companies))
	case moderation.KindJobs:
		writeJSON(w, http.StatusOK, toJobResponses(l.Jobs))
	default:
		writeJSON(w, http.StatusOK, toUserResponses(l.Users))
	}
}

// ListPending は審査待ちの履歴書・会社・求人を返す。
// GET /api/admin/pending/{kind}
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	l, err := h.service.ListPending(r.Context(), actor, chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeListing(w, l)
}

// Decide は審査対象に判定を適用する。
// POST /api/admin/{kind}/{id}/decision
func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.service.Decide(r.Context(), actor, chi.URLParam(r, "kind"), chi.URLParam(r, "id"), req.Decision)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decisionResponse{Kind: d.Kind, ID: d.ID, Status: d.Status})
}

// ListAll は全ユーザーまたは全会社を返す。
// GET /api/admin/{kind}
func (h *AdminHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	l, err := h.service.ListAll(r.Context(), actor, chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeListing(w, l)
}

// Purge はユーザーまたは会社を所有物ごと削除する。
// DELETE /api/admin/{kind}/{id}
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	res, err := h.service.Purge(r.Context(), actor, chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeletedResponse(res))
}

// SetAccountStatus はアカウントの停止・再開を行う。
// PUT /api/admin/users/{id}/account-status
func (h *AdminHandler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if kind := chi.URLParam(r, "kind"); kind != moderation.KindUsers {
		handleServiceError(w, model.NewInvalidKindError(kind))
		return
	}

	var req accountStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.SetAccountStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}
