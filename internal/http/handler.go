package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleet-alert-service/internal/config"
	"fleet-alert-service/internal/domain/fleet"
	"fleet-alert-service/internal/http/middleware"
	"fleet-alert-service/internal/service"
	"fleet-alert-service/internal/storage"
)

type Handler struct {
	alertService *service.AlertService
	config       *config.Config
	log          zerolog.Logger
	r2Client     *storage.R2Client
}

func NewHandler(
	alertService *service.AlertService,
	cfg *config.Config,
	log zerolog.Logger,
	r2Client *storage.R2Client,
) *Handler {
	return &Handler{
		alertService: alertService,
		config:       cfg,
		log:          log,
		r2Client:     r2Client,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.GET("/alerts", h.listAlerts)
		public.GET("/cycle/summary", h.lastCycleSummary)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/alerts/export", h.exportAlerts)
		protected.POST("/cycle/run", middleware.RequireManage(), h.runCycle)
		protected.PATCH("/alerts/:id/status", middleware.RequireManage(), h.updateAlertStatus)
		protected.DELETE("/alerts", middleware.RequireAdmin(), h.cleanupAlerts)
	}
}

func listQueryFromContext(c *gin.Context) service.ListQuery {
	q := service.ListQuery{
		Status:   strings.TrimSpace(c.Query("status")),
		Severity: strings.TrimSpace(c.Query("severity")),
		Type:     strings.TrimSpace(c.Query("type")),
		Plate:    strings.TrimSpace(c.Query("plate")),
		From:     strings.TrimSpace(c.Query("from")),
		To:       strings.TrimSpace(c.Query("to")),
		Limit:    50,
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}
	return q
}

func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.alertService.FindAlerts(c.Request.Context(), listQueryFromContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(alerts))
}

func (h *Handler) lastCycleSummary(c *gin.Context) {
	summary := h.alertService.LastSummary()
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil, "message": "no cycle has completed yet"})
		return
	}
	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) runCycle(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	h.log.Info().
		Str("user_id", principal.UserID.String()).
		Str("role", string(principal.Role)).
		Msg("manual poll cycle requested")

	summary := h.alertService.RunCycle(c.Request.Context(), time.Now())

	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) updateAlertStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	err := h.alertService.UpdateAlertStatus(c.Request.Context(), c.Param("id"), fleet.AlertStatus(strings.ToUpper(req.Status)))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"alert_id": c.Param("id"),
	})
}

func (h *Handler) cleanupAlerts(c *gin.Context) {
	days := 90
	if d := c.Query("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("days must be a positive integer"))
			return
		}
		days = parsed
	}

	var statuses []fleet.AlertStatus
	if s := strings.TrimSpace(c.Query("statuses")); s != "" {
		for _, part := range strings.Split(s, ",") {
			statuses = append(statuses, fleet.AlertStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}

	deleted, err := h.alertService.CleanupOldAlerts(c.Request.Context(), days, statuses)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"deleted_count": deleted,
	})
}

func (h *Handler) exportAlerts(c *gin.Context) {
	workbook, err := h.alertService.BuildAlertReport(c.Request.Context(), listQueryFromContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer workbook.Close()

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render alert report")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	filename := fmt.Sprintf("alertas-%s.xlsx", time.Now().Format("20060102-150405"))

	if c.Query("upload") == "true" {
		if h.r2Client == nil {
			c.JSON(http.StatusServiceUnavailable, errorResponse("report storage is not configured"))
			return
		}
		url, err := h.r2Client.UploadReport(c.Request.Context(), "reports/"+filename, buf.Bytes())
		if err != nil {
			h.log.Error().Err(err).Msg("failed to upload alert report")
			c.JSON(http.StatusInternalServerError, errorResponse("failed to upload report"))
			return
		}
		h.log.Info().Str("url", url).Msg("alert report uploaded")
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"url":    url,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
