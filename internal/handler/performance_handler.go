package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scorecard-api/internal/analytics"
	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/middleware"
	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
	"github.com/noah-isme/scorecard-api/pkg/response"
)

type performanceService interface {
	Dashboard(ctx context.Context, q dto.PerformanceQuery) (*dto.PerformanceDashboard, bool, error)
	Rankings(ctx context.Context, q dto.PerformanceQuery) (models.Ranking, bool, error)
	ExportRankings(ctx context.Context, q dto.PerformanceQuery) ([]byte, error)
	StudentTrend(ctx context.Context, q dto.PerformanceQuery) (*dto.StudentTrendView, bool, error)
	Swot(ctx context.Context, q dto.PerformanceQuery) (*dto.SwotView, bool, error)
	Refresh(ctx context.Context, classroomID string) error
	SystemMetrics() models.SystemMetrics
}

// PerformanceHandler exposes the performance dashboard endpoints.
type PerformanceHandler struct {
	service performanceService
}

// NewPerformanceHandler constructs the handler.
func NewPerformanceHandler(service performanceService) *PerformanceHandler {
	return &PerformanceHandler{service: service}
}

// Dashboard godoc
// @Summary Classroom performance dashboard
// @Tags Performance
// @Produce json
// @Param classroom_id query string true "Classroom ID"
// @Param educator_id query string false "Restrict results to one educator"
// @Param viewer_id query string false "Viewer issuing the request"
// @Param test query int false "Test number; 0 selects Overall. Defaults to the latest test"
// @Param subject query string false "Subject for the subject series and subject trend"
// @Param search query string false "Filter ranked students by name or id"
// @Param metric query string false "average or total"
// @Param zero_absent query bool false "Treat zero scores as not attempted"
// @Success 200 {object} response.Envelope
// @Router /performance/dashboard [get]
func (h *PerformanceHandler) Dashboard(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, err := parsePerformanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	dashboard, cacheHit, err := h.service.Dashboard(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, start, cacheHit, dashboard)
}

// Rankings godoc
// @Summary Classroom leaderboard
// @Tags Performance
// @Produce json
// @Param classroom_id query string true "Classroom ID"
// @Param test query int false "Test number; 0 selects Overall"
// @Param search query string false "Filter by name or id before ranking"
// @Param metric query string false "average or total"
// @Success 200 {object} response.Envelope
// @Router /performance/rankings [get]
func (h *PerformanceHandler) Rankings(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, err := parsePerformanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	ranking, cacheHit, err := h.service.Rankings(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, start, cacheHit, ranking)
}

// ExportRankings godoc
// @Summary Download the leaderboard as CSV
// @Tags Performance
// @Produce text/csv
// @Param classroom_id query string true "Classroom ID"
// @Param test query int false "Test number; 0 selects Overall"
// @Param metric query string false "average or total"
// @Success 200 {file} file
// @Router /performance/rankings/export [get]
func (h *PerformanceHandler) ExportRankings(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, err := parsePerformanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.service.ExportRankings(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, exportFilename(query), "text/csv", payload)
}

// StudentTrend godoc
// @Summary Improvement of one student across their tests
// @Tags Performance
// @Produce json
// @Param student_id path string true "Student ID"
// @Param classroom_id query string true "Classroom ID"
// @Param subject query string false "Subject trend to include"
// @Success 200 {object} response.Envelope
// @Router /performance/students/{student_id}/trend [get]
func (h *PerformanceHandler) StudentTrend(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, err := parsePerformanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query.StudentID = strings.TrimSpace(c.Param("student_id"))
	start := time.Now()
	trend, cacheHit, err := h.service.StudentTrend(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, start, cacheHit, trend)
}

// Swot godoc
// @Summary Categorised SWOT report
// @Tags Performance
// @Produce json
// @Param classroom_id query string true "Classroom ID"
// @Param student_id query string false "Student whose report is requested"
// @Param audience query string false "institution, educator or student"
// @Success 200 {object} response.Envelope
// @Router /performance/swot [get]
func (h *PerformanceHandler) Swot(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, err := parsePerformanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	view, cacheHit, err := h.service.Swot(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, start, cacheHit, view)
}

// Refresh godoc
// @Summary Drop cached snapshots of a classroom
// @Tags Performance
// @Produce json
// @Param classroom_id query string true "Classroom ID"
// @Success 202 {object} response.Envelope
// @Router /performance/refresh [post]
func (h *PerformanceHandler) Refresh(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	classroomID := strings.TrimSpace(c.Query("classroom_id"))
	if err := h.service.Refresh(c.Request.Context(), classroomID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"classroomId": classroomID, "refreshed": true})
}

// System godoc
// @Summary Pipeline and cache instrumentation
// @Tags Performance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /performance/system [get]
func (h *PerformanceHandler) System(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	respond(c, start, false, h.service.SystemMetrics())
}

func respond(c *gin.Context, start time.Time, cacheHit bool, data interface{}) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, meta)
}

// parsePerformanceQuery reads the shared query parameters. The test
// parameter is checked for presence rather than emptiness so test=0
// selects the Overall view instead of falling back to the latest test.
func parsePerformanceQuery(c *gin.Context) (dto.PerformanceQuery, error) {
	query := dto.PerformanceQuery{
		ClassroomID: strings.TrimSpace(c.Query("classroom_id")),
		EducatorID:  strings.TrimSpace(c.Query("educator_id")),
		ViewerID:    strings.TrimSpace(c.Query("viewer_id")),
		StudentID:   strings.TrimSpace(c.Query("student_id")),
		Subject:     strings.TrimSpace(c.Query("subject")),
		Search:      c.Query("search"),
		Audience:    dto.Audience(strings.ToLower(strings.TrimSpace(c.Query("audience")))),
	}
	if query.ViewerID == "" {
		query.ViewerID = strings.TrimSpace(c.GetHeader("X-Viewer-ID"))
	}
	if query.ClassroomID == "" {
		return query, appErrors.Clone(appErrors.ErrValidation, "classroom_id is required")
	}
	if raw, ok := c.GetQuery("test"); ok {
		number, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || number < 0 {
			return query, appErrors.Clone(appErrors.ErrValidation, "test must be a non-negative integer")
		}
		query.TestNumber = &number
	}
	metric, ok := analytics.ParseRankMetric(c.Query("metric"))
	if !ok {
		return query, appErrors.Clone(appErrors.ErrValidation, "metric must be average or total")
	}
	query.Metric = metric
	if raw, ok := c.GetQuery("zero_absent"); ok {
		zero, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "zero_absent must be a boolean")
		}
		query.ZeroAsAbsent = &zero
	}
	return query, nil
}

func exportFilename(q dto.PerformanceQuery) string {
	label := "latest"
	if q.TestNumber != nil {
		label = strings.ToLower(strings.ReplaceAll(dto.TestLabel(*q.TestNumber), " ", "-"))
	}
	return fmt.Sprintf("rankings-%s-%s.csv", q.ClassroomID, label)
}
