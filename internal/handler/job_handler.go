package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobbridge/internal/job"
	"github.com/hitoshi/jobbridge/internal/middleware"
	"github.com/hitoshi/jobbridge/internal/model"
)

// deadlineLayout は求人の応募締切日の入出力形式。
const deadlineLayout = "2006-01-02"

// JobServiceInterface は求人ハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	CreateJob(ctx context.Context, actor model.Actor, in job.Input) (*model.Job, error)
	ListJobs(ctx context.Context, actor model.Actor, filter model.JobFilter) ([]*model.Job, error)
	GetVisibleJob(ctx context.Context, actor model.Actor, jobID string) (*model.Job, error)
	CloseJob(ctx context.Context, actor model.Actor, jobID string) (*model.Job, error)
	DeleteJob(ctx context.Context, actor model.Actor, jobID string) (*model.CascadeResult, error)
}

// JobHandler は求人の検索・掲載のHTTPハンドラー。
type JobHandler struct {
	service JobServiceInterface
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobServiceInterface) *JobHandler {
	return &JobHandler{service: service}
}

type jobRequest struct {
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	SubCategory       string   `json:"sub_category"`
	Location          string   `json:"location"`
	Type              string   `json:"type"`
	Salary            string   `json:"salary"`
	Experience        string   `json:"experience"`
	Vacancies         *int     `json:"vacancies"`
	Shift             string   `json:"shift"`
	WorkMode          string   `json:"work_mode"`
	FoodAllowance     string   `json:"food_allowance"`
	Accommodation     string   `json:"accommodation"`
	EducationRequired string   `json:"education_required"`
	Deadline          string   `json:"deadline"`
	Description       string   `json:"description"`
	Skills            []string `json:"skills"`
}

// jobResponse は求人情報のAPIレスポンス。
type jobResponse struct {
	ID                string    `json:"id"`
	CompanyID         string    `json:"company_id"`
	Title             string    `json:"title"`
	Category          string    `json:"category,omitempty"`
	SubCategory       string    `json:"sub_category,omitempty"`
	Location          string    `json:"location,omitempty"`
	Type              string    `json:"type"`
	Salary            string    `json:"salary,omitempty"`
	Experience        string    `json:"experience,omitempty"`
	Vacancies         *int      `json:"vacancies,omitempty"`
	Shift             string    `json:"shift,omitempty"`
	WorkMode          string    `json:"work_mode,omitempty"`
	FoodAllowance     string    `json:"food_allowance"`
	Accommodation     string    `json:"accommodation"`
	EducationRequired string    `json:"education_required,omitempty"`
	Deadline          string    `json:"deadline,omitempty"`
	Description       string    `json:"description"`
	Skills            []string  `json:"skills"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	resp := jobResponse{
		ID:                j.ID,
		CompanyID:         j.CompanyID,
		Title:             j.Title,
		Category:          j.Category,
		SubCategory:       j.SubCategory,
		Location:          j.Location,
		Type:              string(j.Type),
		Salary:            j.Salary,
		Experience:        j.Experience,
		Vacancies:         j.Vacancies,
		Shift:             j.Shift,
		WorkMode:          j.WorkMode,
		FoodAllowance:     string(j.FoodAllowance),
		Accommodation:     string(j.Accommodation),
		EducationRequired: j.EducationRequired,
		Description:       j.Description,
		Skills:            j.Skills,
		Status:            string(j.Status),
		CreatedAt:         j.CreatedAt,
	}
	if j.Deadline != nil {
		resp.Deadline = j.Deadline.Format(deadlineLayout)
	}
	if resp.Skills == nil {
		resp.Skills = []string{}
	}
	return resp
}

func toJobResponses(jobs []*model.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}

// parseJobFilter はクエリパラメータから検索条件を組み立てる。
// 数値でないlimit/offsetは未指定として扱う。
func parseJobFilter(r *http.Request) model.JobFilter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return model.JobFilter{
		Query:       q.Get("q"),
		Location:    q.Get("location"),
		Category:    q.Get("category"),
		SubCategory: q.Get("sub_category"),
		Type:        q.Get("type"),
		Limit:       limit,
		Offset:      offset,
	}
}

// List は公開中の求人を検索する。
// GET /api/jobs?q=&location=&category=&sub_category=&type=&limit=&offset=
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	jobs, err := h.service.ListJobs(r.Context(), actor, parseJobFilter(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

// ListMine はログイン中の雇用者の会社の求人を全ステータスで返す。
// GET /api/employer/jobs
func (h *JobHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	filter := parseJobFilter(r)
	filter.OwnerID = actor.UserID

	jobs, err := h.service.ListJobs(r.Context(), actor, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

// Get は求人詳細を返す。所有者と管理者以外には公開中の求人のみ見える。
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	j, err := h.service.GetVisibleJob(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Create は承認済みの会社の求人を作成する。初期ステータスはPENDING。
// POST /api/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := job.Input{
		Title:             req.Title,
		Category:          req.Category,
		SubCategory:       req.SubCategory,
		Location:          req.Location,
		Type:              req.Type,
		Salary:            req.Salary,
		Experience:        req.Experience,
		Vacancies:         req.Vacancies,
		Shift:             req.Shift,
		WorkMode:          req.WorkMode,
		FoodAllowance:     req.FoodAllowance,
		Accommodation:     req.Accommodation,
		EducationRequired: req.EducationRequired,
		Description:       req.Description,
		Skills:            req.Skills,
	}
	if req.Deadline != "" {
		d, err := parseDeadline(req.Deadline)
		if err != nil {
			handleServiceError(w, model.NewValidationError("deadline", "YYYY-MM-DD 形式で指定してください"))
			return
		}
		in.Deadline = &d
	}

	j, err := h.service.CreateJob(r.Context(), actor, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(j))
}

// parseDeadline は日付またはRFC3339の日時を受け付ける。
func parseDeadline(s string) (time.Time, error) {
	if d, err := time.Parse(deadlineLayout, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Close は求人の募集を終了する。
// POST /api/jobs/{id}/close
func (h *JobHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	j, err := h.service.CloseJob(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Delete は求人とその応募を削除する。
// DELETE /api/jobs/{id}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	res, err := h.service.DeleteJob(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeletedResponse(res))
}
