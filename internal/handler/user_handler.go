package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	AttachResume(ctx context.Context, userID, resumeRef string) (*model.User, error)
}

// CandidateApplicationLister は候補者自身の応募履歴を取得する。
type CandidateApplicationLister interface {
	ListForCandidate(ctx context.Context, candidateID string) ([]model.ApplicationWithJob, error)
}

// UserHandler はユーザー自身のプロフィール管理のHTTPハンドラー。
type UserHandler struct {
	service      UserServiceInterface
	applications CandidateApplicationLister
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, applications CandidateApplicationLister) *UserHandler {
	return &UserHandler{
		service:      service,
		applications: applications,
	}
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID                 string    `json:"id"`
	Role               string    `json:"role"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Mobile             string    `json:"mobile,omitempty"`
	AccountStatus      string    `json:"account_status"`
	ResumeVerification string    `json:"resume_verification,omitempty"`
	ResumeRef          string    `json:"resume_ref,omitempty"`
	Skills             []string  `json:"skills"`
	Experience         string    `json:"experience,omitempty"`
	Education          string    `json:"education,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:            u.ID,
		Role:          string(u.Role),
		Email:         u.Email,
		Name:          u.Name,
		Mobile:        u.Mobile,
		AccountStatus: string(u.AccountStatus),
		ResumeRef:     u.ResumeRef,
		Skills:        u.Skills,
		Experience:    u.Experience,
		Education:     u.Education,
		CreatedAt:     u.CreatedAt,
	}
	if u.Role == model.RoleCandidate {
		resp.ResumeVerification = string(u.ResumeVerification)
	}
	if resp.Skills == nil {
		resp.Skills = []string{}
	}
	return resp
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

type updateProfileRequest struct {
	Name       *string   `json:"name"`
	Mobile     *string   `json:"mobile"`
	Skills     *[]string `json:"skills"`
	Experience *string   `json:"experience"`
	Education  *string   `json:"education"`
}

type attachResumeRequest struct {
	ResumeRef string `json:"resume_ref"`
}

// UpdateProfile はログインユーザーのプロフィールを部分更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), actor.UserID, user.ProfileInput{
		Name:       req.Name,
		Mobile:     req.Mobile,
		Skills:     req.Skills,
		Experience: req.Experience,
		Education:  req.Education,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// AttachResume は候補者の履歴書参照を登録し、審査待ちにする。
// PUT /api/users/me/resume
func (h *UserHandler) AttachResume(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if actor.Role != model.RoleCandidate {
		handleServiceError(w, model.NewInvalidRoleError(model.RoleCandidate))
		return
	}

	var req attachResumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.AttachResume(r.Context(), actor.UserID, req.ResumeRef)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// MyApplications は候補者自身の応募履歴を返す。
// GET /api/users/me/applications
func (h *UserHandler) MyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	apps, err := h.applications.ListForCandidate(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp := toApplicationResponse(&a.Application)
		resp.JobTitle = a.JobTitle
		resp.CompanyID = a.CompanyID
		resp.CompanyName = a.CompanyName
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
