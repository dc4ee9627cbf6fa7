package handler

import (
	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Health   *HealthHandler
	Ready    *ReadyHandler
	Sources  *SourceHandler
	Sessions *SessionHandler
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(h Handlers, cfg config.ServerConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(MetricsMiddleware())

	router.GET("/health", h.Health.Handle)
	router.GET("/ready", h.Ready.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		v1.POST("/sources", h.Sources.Register)
		v1.GET("/sources", h.Sources.List)
		v1.GET("/sources/:id", h.Sources.Get)
		v1.POST("/sources/:id/activate", h.Sources.Activate)
		v1.POST("/sources/:id/deactivate", h.Sources.Deactivate)
		v1.POST("/sources/:id/test-connection", h.Sources.TestConnection)
		v1.GET("/sources/:id/alerts", h.Sources.Alerts)

		v1.POST("/logs/collect", h.Sources.Collect)

		v1.POST("/sessions", h.Sessions.Detect)
		v1.GET("/sessions", h.Sessions.List)
		v1.GET("/sessions/:id", h.Sessions.Get)
		v1.GET("/sessions/:id/result", h.Sessions.SessionResult)

		v1.GET("/results/:id", h.Sessions.Result)
		v1.GET("/results/:id/report", h.Sessions.Report)
		v1.GET("/dashboard", h.Sessions.Dashboard)
	}

	return router
}
