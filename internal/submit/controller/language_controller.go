package controller

import (
	"strconv"

	"ucode/internal/judge/limits"
	"ucode/internal/submit/service"
	"ucode/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LanguageController handles language configuration endpoints.
type LanguageController struct {
	languageService *service.LanguageService
}

// NewLanguageController creates a new LanguageController.
func NewLanguageController(languageService *service.LanguageService) *LanguageController {
	return &LanguageController{languageService: languageService}
}

// Register mounts the language routes.
func (h *LanguageController) Register(r gin.IRouter) {
	r.PUT("/api/v1/languages/:code", h.SaveLanguage)
	problems := r.Group("/api/v1/problems/:problem_id/languages/:code")
	problems.PUT("", h.SaveOverride)
	problems.GET("/limits", h.GetLimits)
}

// SaveLanguage creates or updates a language.
func (h *LanguageController) SaveLanguage(c *gin.Context) {
	var req SaveLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	lang, err := h.languageService.SaveLanguage(c.Request.Context(), service.SaveLanguageInput{
		Code:              c.Param("code"),
		Name:              req.Name,
		DefaultTimeFactor: req.DefaultTimeFactor,
		DefaultMemoryKB:   req.DefaultMemoryKB,
		Template:          req.Template,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, lang)
}

// SaveOverride stores a per-problem override of a language.
func (h *LanguageController) SaveOverride(c *gin.Context) {
	problemID, ok := problemParam(c)
	if !ok {
		return
	}
	var req SaveOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	override, err := h.languageService.SaveOverride(c.Request.Context(), service.SaveOverrideInput{
		ProblemID:    problemID,
		LanguageCode: c.Param("code"),
		TimeFactor:   req.TimeFactor,
		MemoryKB:     req.MemoryKB,
		Template:     req.Template,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, override)
}

// GetLimits returns the effective limits of a language on a problem.
func (h *LanguageController) GetLimits(c *gin.Context) {
	problemID, ok := problemParam(c)
	if !ok {
		return
	}
	resolved, err := h.languageService.Resolve(c.Request.Context(), problemID, c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resolved)
}

func problemParam(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("problem_id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}

// SaveLanguageRequest defines the language payload. The code comes from the path.
type SaveLanguageRequest struct {
	Name              string          `json:"name"`
	DefaultTimeFactor float64         `json:"default_time_factor"`
	DefaultMemoryKB   int64           `json:"default_memory_kb"`
	Template          limits.Template `json:"template"`
}

// SaveOverrideRequest defines the override payload. Omitted fields inherit.
type SaveOverrideRequest struct {
	TimeFactor *float64                `json:"time_factor"`
	MemoryKB   *int64                  `json:"memory_kb"`
	Template   limits.TemplateOverride `json:"template"`
}
