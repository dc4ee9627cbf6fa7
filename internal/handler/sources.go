package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerSourceRequest struct {
	Name        string            `json:"name" binding:"required"`
	Type        string            `json:"type" binding:"required"`
	Endpoint    string            `json:"endpoint" binding:"required"`
	Credentials map[string]string `json:"credentials"`
	Metadata    map[string]any    `json:"metadata"`
}

type collectRequest struct {
	SourceID  string    `json:"sourceId" binding:"required"`
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}

type collectResponse struct {
	SourceID  string                 `json:"sourceId"`
	Count     int                    `json:"count"`
	TimeRange service.TimeRangeView  `json:"timeRange"`
	Logs      []service.LogEntryView `json:"logs"`
}

// SourceHandler serves the log source and collection endpoints.
type SourceHandler struct {
	sources *service.SourceService
	collect *service.CollectService
	reports *service.ReportService
	logger  *zap.Logger
}

// NewSourceHandler creates a new SourceHandler.
func NewSourceHandler(sources *service.SourceService, collect *service.CollectService, reports *service.ReportService, logger *zap.Logger) *SourceHandler {
	return &SourceHandler{
		sources: sources,
		collect: collect,
		reports: reports,
		logger:  logger.Named("source_handler"),
	}
}

// Register processes POST /sources.
func (h *SourceHandler) Register(c *gin.Context) {
	var req registerSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	source, err := h.sources.Register(c.Request.Context(), service.RegisterSourceInput{
		Name:        req.Name,
		Type:        domain.SourceType(strings.ToUpper(req.Type)),
		Endpoint:    req.Endpoint,
		Credentials: req.Credentials,
		Metadata:    req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, service.NewSourceView(source))
}

// List processes GET /sources?type=.
func (h *SourceHandler) List(c *gin.Context) {
	sourceType := domain.SourceType(strings.ToUpper(c.Query("type")))
	sources, err := h.sources.List(c.Request.Context(), sourceType)
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]service.SourceView, 0, len(sources))
	for _, s := range sources {
		views = append(views, service.NewSourceView(s))
	}
	ok(c, http.StatusOK, views)
}

// Get processes GET /sources/:id.
func (h *SourceHandler) Get(c *gin.Context) {
	source, err := h.sources.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewSourceView(source))
}

// Activate processes POST /sources/:id/activate.
func (h *SourceHandler) Activate(c *gin.Context) {
	source, err := h.sources.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewSourceView(source))
}

// Deactivate processes POST /sources/:id/deactivate.
func (h *SourceHandler) Deactivate(c *gin.Context) {
	source, err := h.sources.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewSourceView(source))
}

// TestConnection processes POST /sources/:id/test-connection.
func (h *SourceHandler) TestConnection(c *gin.Context) {
	status, err := h.sources.TestConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, status)
}

// Alerts processes GET /sources/:id/alerts?severity=.
func (h *SourceHandler) Alerts(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sources.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	severity := domain.Severity(strings.ToUpper(c.Query("severity")))
	if severity != "" && !severity.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Unknown severity " + c.Query("severity"),
		})
		return
	}
	alerts, err := h.reports.AlertsForSource(c.Request.Context(), id, severity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, alerts)
}

// Collect processes POST /logs/collect.
func (h *SourceHandler) Collect(c *gin.Context) {
	var req collectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.collect.Collect(c.Request.Context(), req.SourceID, req.StartTime, req.EndTime)
	if err != nil {
		fail(c, err)
		return
	}

	logs := make([]service.LogEntryView, 0, len(res.Logs))
	for _, e := range res.Logs {
		logs = append(logs, service.NewLogEntryView(e))
	}
	ok(c, http.StatusOK, collectResponse{
		SourceID:  res.SourceID,
		Count:     res.Count,
		TimeRange: service.NewTimeRangeView(res.TimeRange),
		Logs:      logs,
	})
}
