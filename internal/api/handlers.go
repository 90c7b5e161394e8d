package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/aggregator"
	"github.com/t77yq/loadwatch/internal/ingest"
	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/monitor"
	"github.com/t77yq/loadwatch/internal/scoring"
	"github.com/t77yq/loadwatch/internal/storage"
)

const defaultLimit = 20

// AlertService is the dispatcher as seen by the API
type AlertService interface {
	Send(ctx context.Context, req model.AlertRequest) (*model.Alert, error)
	Alert(ctx context.Context, id string) (*model.Alert, error)
	Resolve(ctx context.Context, id string) (*model.Alert, error)
	RecentAlerts(limit int) []model.Alert
	TeamAlerts(teamID string, limit int) []model.Alert
}

// Insights serves the live team and user views
type Insights interface {
	TeamMetrics(teamID string) (monitor.TeamMetrics, bool)
	UserReport(entityID string) (monitor.UserReport, bool)
}

// ArchiveReader queries archived alerts
type ArchiveReader interface {
	List(ctx context.Context, filter storage.AlertFilter, offset, limit int) ([]*model.Alert, error)
	Count(ctx context.Context, filter storage.AlertFilter) (int, error)
}

// JobRunner manages the scheduled jobs
type JobRunner interface {
	ListJobs() []model.Schedule
	RunJob(name string) error
	RemoveJob(name string) error
}

// Services are the components behind the handlers. Archive and Jobs are
// optional; their endpoints answer 503 when unset.
type Services struct {
	Alerts     AlertService
	Recorder   ingest.Recorder
	Insights   Insights
	Aggregator *aggregator.Aggregator
	Archive    ArchiveReader
	Jobs       JobRunner
}

// Handler serves the HTTP endpoints
type Handler struct {
	logger   *zap.Logger
	alerts   AlertService
	recorder ingest.Recorder
	insights Insights
	agg      *aggregator.Aggregator
	archive  ArchiveReader
	jobs     JobRunner
	now      func() time.Time
}

// NewHandler creates a new handler
func NewHandler(svc Services, logger *zap.Logger) *Handler {
	return &Handler{
		logger:   logger.Named("api"),
		alerts:   svc.Alerts,
		recorder: svc.Recorder,
		insights: svc.Insights,
		agg:      svc.Aggregator,
		archive:  svc.Archive,
		jobs:     svc.Jobs,
		now:      time.Now,
	}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	return limit, true
}

// RecentAlerts returns the newest alerts across all targets
func (h *Handler) RecentAlerts(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.alerts.RecentAlerts(limit))
}

// TeamAlerts returns the newest alerts concerning a team
func (h *Handler) TeamAlerts(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.alerts.TeamAlerts(c.Param("id"), limit))
}

// SendAlert dispatches a manually raised alert
func (h *Handler) SendAlert(c *gin.Context) {
	var req model.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alerts.Send(c.Request.Context(), req)
	switch {
	case errors.Is(err, monitor.ErrSuppressed):
		c.JSON(http.StatusConflict, gin.H{"error": "Alert suppressed by cooldown"})
		return
	case errors.Is(err, model.ErrInvalidTarget),
		errors.Is(err, model.ErrUnknownAlertType),
		errors.Is(err, model.ErrUnknownSeverity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to send alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send alert"})
		return
	}

	c.JSON(http.StatusCreated, alert)
}

// GetAlert returns one alert, from memory or the archive
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.alerts.Alert(c.Request.Context(), c.Param("id"))
	if errors.Is(err, monitor.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ResolveAlert marks an alert resolved
func (h *Handler) ResolveAlert(c *gin.Context) {
	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("id"))
	if errors.Is(err, monitor.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to resolve alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// RecordActivity feeds an activity record and returns its scores
func (h *Handler) RecordActivity(c *gin.Context) {
	var rec model.ActivityRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = h.now()
	}

	if err := h.recorder.RecordActivity(c.Request.Context(), rec); err != nil {
		if errors.Is(err, ingest.ErrMissingEntity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to record activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record activity"})
		return
	}

	c.JSON(http.StatusAccepted, scoring.Report(rec))
}

// RecordMessages feeds a channel message batch and returns its analysis
func (h *Handler) RecordMessages(c *gin.Context) {
	var batch model.MessageBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if batch.WindowStart.IsZero() {
		batch.WindowStart = h.now()
	}

	if err := h.recorder.RecordBatch(c.Request.Context(), batch); err != nil {
		if errors.Is(err, ingest.ErrMissingChannel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to record messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record messages"})
		return
	}

	c.JSON(http.StatusAccepted, h.agg.AnalyzeMessages(batch.Messages))
}

type analyzeMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// AnalyzeMessage scores a single message without recording it
func (h *Handler) AnalyzeMessage(c *gin.Context) {
	var req analyzeMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scoring.AnalyzeMessage(req.Text))
}

// AnalyzeActivity scores an activity record without recording it
func (h *Handler) AnalyzeActivity(c *gin.Context) {
	var rec model.ActivityRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scoring.Report(rec))
}
