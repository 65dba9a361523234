package controller

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ucode/internal/judge/lifecycle"
	"ucode/internal/submit/service"
	"ucode/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the acting user. Authentication happens upstream.
const UserIDHeader = "X-User-Id"

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Register mounts the submission routes under /api/v1/submissions.
func (h *SubmitController) Register(r gin.IRouter) {
	api := r.Group("/api/v1/submissions")
	api.POST("", h.CreateGraded)
	api.POST("/run", h.CreateRun)
	api.GET("", h.List)
	api.GET("/:id", h.Get)
	api.GET("/:id/wait", h.Wait)
	api.GET("/:id/grading", h.GetGrading)
	api.DELETE("/:id", h.Delete)
}

// CreateGraded handles recorded submissions.
func (h *SubmitController) CreateGraded(c *gin.Context) {
	h.create(c, h.submitService.CreateGraded)
}

// CreateRun handles scratch runs.
func (h *SubmitController) CreateRun(c *gin.Context) {
	h.create(c, h.submitService.CreateRun)
}

type createFunc func(ctx context.Context, input service.CreateInput) (service.CreateResult, error)

func (h *SubmitController) create(c *gin.Context, fn createFunc) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	res, err := fn(c.Request.Context(), service.CreateInput{
		UserID:         userID,
		ProblemID:      req.ProblemID,
		AssignmentID:   req.AssignmentID,
		LanguageCode:   req.LanguageCode,
		SourceCode:     req.SourceCode,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, SubmitResponse{
		SubmissionID:  res.SubmissionID,
		Kind:          res.Kind,
		Status:        res.Status,
		SubmittedAt:   res.SubmittedAt.UTC().Format(time.RFC3339),
		TimeLimitMs:   res.Limits.TimeLimitMs,
		MemoryLimitKB: res.Limits.MemoryLimitKB,
	})
}

// Get returns one submission with its decoded outcomes.
func (h *SubmitController) Get(c *gin.Context) {
	view, err := h.submitService.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Wait blocks until the submission is terminal or the poll budget runs out.
func (h *SubmitController) Wait(c *gin.Context) {
	res, err := h.submitService.WaitSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// List returns one page of submissions.
func (h *SubmitController) List(c *gin.Context) {
	bounds := h.submitService.PageBounds()
	input := service.ListInput{Kind: c.Query("kind")}

	var ok bool
	if input.UserID, ok = optionalID(c, "user_id"); !ok {
		return
	}
	if input.ProblemID, ok = optionalID(c, "problem_id"); !ok {
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		response.BadRequest(c, "Invalid page")
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(bounds.DefaultPageSize)))
	if err != nil {
		response.BadRequest(c, "Invalid page_size")
		return
	}
	input.Page, input.PageSize = page, pageSize

	res, err := h.submitService.ListSubmissions(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, res.Items, res.Total, res.Page, res.PageSize)
}

// Delete removes a submission.
func (h *SubmitController) Delete(c *gin.Context) {
	if err := h.submitService.DeleteSubmission(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Delete success", nil)
}

// GetGrading returns the grading record of an assignment submission.
func (h *SubmitController) GetGrading(c *gin.Context) {
	record, err := h.submitService.GetGrading(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, record)
}

func actingUser(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if raw == "" {
		response.BadRequest(c, "Missing "+UserIDHeader+" header")
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(c, "Invalid "+UserIDHeader+" header")
		return 0, false
	}
	return userID, true
}

func optionalID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// SubmitRequest defines the submission payload shared by runs and graded
// submissions.
type SubmitRequest struct {
	ProblemID    int64  `json:"problem_id" binding:"required"`
	AssignmentID *int64 `json:"assignment_id"`
	LanguageCode string `json:"language_code" binding:"required"`
	SourceCode   string `json:"source_code" binding:"required"`
}

// SubmitResponse defines the submission response payload.
type SubmitResponse struct {
	SubmissionID  string           `json:"submission_id"`
	Kind          string           `json:"kind"`
	Status        lifecycle.Status `json:"status"`
	SubmittedAt   string           `json:"submitted_at"`
	TimeLimitMs   int64            `json:"time_limit_ms"`
	MemoryLimitKB int64            `json:"memory_limit_kb"`
}
