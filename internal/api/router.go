package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP surface over the dispatcher, feed and scoring
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger.Named("http")))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// Alerts
		v1.GET("/alerts", h.RecentAlerts)
		v1.POST("/alerts", h.SendAlert)
		v1.GET("/alerts/:id", h.GetAlert)
		v1.POST("/alerts/:id/resolve", h.ResolveAlert)
		v1.GET("/teams/:id/alerts", h.TeamAlerts)
		v1.GET("/archive/alerts", h.ArchivedAlerts)

		// Live views
		v1.GET("/teams/:id/metrics", h.TeamMetrics)
		v1.GET("/users/:id/report", h.UserReport)

		// Ingestion
		v1.POST("/activity", h.RecordActivity)
		v1.POST("/messages", h.RecordMessages)

		// Stateless scoring
		v1.POST("/analyze/message", h.AnalyzeMessage)
		v1.POST("/analyze/activity", h.AnalyzeActivity)

		// Scheduled jobs
		admin := v1.Group("/admin")
		admin.GET("/jobs", h.ListJobs)
		admin.POST("/jobs/:name/run", h.RunJob)
		admin.DELETE("/jobs/:name", h.RemoveJob)
	}
	return r
}
