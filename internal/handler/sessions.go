package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type modelConfigRequest struct {
	ModelType   string         `json:"modelType" binding:"required"`
	Threshold   *float64       `json:"threshold"`
	Sensitivity *float64       `json:"sensitivity"`
	Parameters  map[string]any `json:"parameters"`
	ModelPath   string         `json:"modelPath"`
	LLMModel    string         `json:"llmModel"`
	LLMPrompt   string         `json:"llmPrompt"`
}

type detectRequest struct {
	SourceID    string             `json:"sourceId" binding:"required"`
	StartTime   time.Time          `json:"startTime" binding:"required"`
	EndTime     time.Time          `json:"endTime" binding:"required"`
	ModelConfig modelConfigRequest `json:"modelConfig"`
}

// SessionHandler serves the analysis session and result endpoints.
type SessionHandler struct {
	orchestrator *service.Orchestrator
	sessions     *service.SessionService
	reports      *service.ReportService
	logger       *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(orchestrator *service.Orchestrator, sessions *service.SessionService, reports *service.ReportService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		orchestrator: orchestrator,
		sessions:     sessions,
		reports:      reports,
		logger:       logger.Named("session_handler"),
	}
}

// Detect processes POST /sessions. The run is synchronous; a run that
// failed after the session was created returns the failed session along
// with the error.
func (h *SessionHandler) Detect(c *gin.Context) {
	startTime := time.Now()
	logger := h.logger.With(zap.String("request_id", c.GetString(requestIDKey)))

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", zap.Error(err))
		badRequest(c, err)
		return
	}

	session, err := h.orchestrator.Run(c.Request.Context(), service.DetectionRequest{
		SourceID:  req.SourceID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		ModelConfig: domain.DetectionModelConfigProps{
			ModelType:   domain.ModelType(strings.ToUpper(req.ModelConfig.ModelType)),
			Threshold:   req.ModelConfig.Threshold,
			Sensitivity: req.ModelConfig.Sensitivity,
			Parameters:  req.ModelConfig.Parameters,
			ModelPath:   req.ModelConfig.ModelPath,
			LLMModel:    req.ModelConfig.LLMModel,
			LLMPrompt:   req.ModelConfig.LLMPrompt,
		},
	})
	if err != nil {
		_ = c.Error(err)
		body := gin.H{"success": false, "error": err.Error()}
		if session != nil {
			body["data"] = service.NewSessionView(session)
		}
		c.JSON(statusFor(err), body)
		return
	}

	logger.Info("detection request completed",
		zap.String("session_id", session.ID()),
		zap.Duration("duration", time.Since(startTime)),
	)
	ok(c, http.StatusCreated, service.NewSessionView(session))
}

// List processes GET /sessions?sourceId=&active=true.
func (h *SessionHandler) List(c *gin.Context) {
	active, _ := strconv.ParseBool(c.Query("active"))
	sessions, err := h.sessions.List(c.Request.Context(), service.SessionQuery{
		SourceID:   c.Query("sourceId"),
		ActiveOnly: active,
	})
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]service.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, service.NewSessionView(s))
	}
	ok(c, http.StatusOK, views)
}

// Get processes GET /sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewSessionView(session))
}

// SessionResult processes GET /sessions/:id/result.
func (h *SessionHandler) SessionResult(c *gin.Context) {
	res, err := h.reports.ResultForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewResultView(res))
}

// Result processes GET /results/:id.
func (h *SessionHandler) Result(c *gin.Context) {
	res, err := h.reports.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, service.NewResultView(res))
}

// Report processes GET /results/:id/report.
func (h *SessionHandler) Report(c *gin.Context) {
	report, err := h.reports.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// Dashboard processes GET /dashboard?limit=.
func (h *SessionHandler) Dashboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	d, err := h.reports.Dashboard(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
