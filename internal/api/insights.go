package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scheduler"
	"github.com/t77yq/loadwatch/internal/storage"
)

// TeamMetrics returns the live digest and workload balance of a team
func (h *Handler) TeamMetrics(c *gin.Context) {
	metrics, ok := h.insights.TeamMetrics(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// UserReport returns the scored activity report of a user
func (h *Handler) UserReport(c *gin.Context) {
	report, ok := h.insights.UserReport(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No activity recorded"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseArchiveFilter(c *gin.Context) (storage.AlertFilter, error) {
	var f storage.AlertFilter

	if v := c.Query("type"); v != "" {
		t, err := model.ParseAlertType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if v := c.Query("severity"); v != "" {
		s, err := model.ParseSeverity(v)
		if err != nil {
			return f, err
		}
		f.Severity = s
	}
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("invalid resolved flag")
		}
		f.Resolved = &b
	}
	if v := c.Query("kind"); v != "" {
		switch kind := model.TargetKind(v); kind {
		case model.TargetUser, model.TargetTeam, model.TargetChannel, model.TargetGlobal:
			f.Kind = kind
		default:
			return f, errors.New("invalid target kind")
		}
	}
	f.Key = c.Query("key")
	return f, nil
}

// ArchivedAlerts pages through the alert archive, newest first
func (h *Handler) ArchivedAlerts(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert archive not configured"})
		return
	}

	filter, err := parseArchiveFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	// SQLite treats a negative LIMIT as unbounded
	queryLimit := limit
	if queryLimit == 0 {
		queryLimit = -1
	}

	ctx := c.Request.Context()
	alerts, err := h.archive.List(ctx, filter, offset, queryLimit)
	if err != nil {
		h.logger.Error("Failed to list archived alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list archived alerts"})
		return
	}
	total, err := h.archive.Count(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to count archived alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count archived alerts"})
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// ListJobs returns the scheduled jobs
func (h *Handler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not configured"})
		return
	}
	c.JSON(http.StatusOK, h.jobs.ListJobs())
}

// RunJob runs a scheduled job immediately
func (h *Handler) RunJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not configured"})
		return
	}

	name := c.Param("name")
	err := h.jobs.RunJob(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case err != nil:
		h.logger.Warn("Job run failed", zap.String("job", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed"})
	}
}

// RemoveJob unschedules a job
func (h *Handler) RemoveJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not configured"})
		return
	}

	if err := h.jobs.RemoveJob(c.Param("name")); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to remove job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove job"})
		return
	}
	c.Status(http.StatusNoContent)
}
