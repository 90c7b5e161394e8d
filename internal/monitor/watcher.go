package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/aggregator"
	"github.com/t77yq/loadwatch/internal/anomaly"
	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

// ActivitySource provides the observations the watcher evaluates. Histories
// are ordered oldest first.
type ActivitySource interface {
	Entities() []string
	History(entityID string) []model.ActivityRecord
	Latest(entityID string) (model.ActivityRecord, bool)
	Teams() map[string][]string
	Channels() []string
	ChannelBatches(channelID string) []model.MessageBatch
}

// AlertSender accepts alert requests
type AlertSender interface {
	Send(ctx context.Context, req model.AlertRequest) (*model.Alert, error)
}

// Thresholds are the per-entity alert thresholds
type Thresholds struct {
	Stress              float64
	Workload            float64
	Burnout             float64
	LateNightMessages   int
	SlowResponseMinutes float64
	DensityRatio        float64
}

// DefaultThresholds returns the standard alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Stress:              0.7,
		Workload:            0.8,
		Burnout:             0.6,
		LateNightMessages:   5,
		SlowResponseMinutes: 60,
		DensityRatio:        2.0,
	}
}

// Watcher turns feed data into alert requests
type Watcher struct {
	logger     *zap.Logger
	source     ActivitySource
	sender     AlertSender
	agg        *aggregator.Aggregator
	activity   *anomaly.Detector
	workload   *anomaly.Detector
	thresholds Thresholds
	now        func() time.Time
}

// NewWatcher creates a new watcher
func NewWatcher(source ActivitySource, sender AlertSender, agg *aggregator.Aggregator, thresholds Thresholds, logger *zap.Logger) *Watcher {
	return &Watcher{
		logger:     logger.Named("watcher"),
		source:     source,
		sender:     sender,
		agg:        agg,
		activity:   anomaly.NewActivitySpikeDetector(),
		workload:   anomaly.NewWorkloadSpikeDetector(),
		thresholds: thresholds,
		now:        time.Now,
	}
}

// ActivityChecks are the per-user checks run by the activity loop.
func (w *Watcher) ActivityChecks() []Check {
	return []Check{
		{Name: "workload_overload", Run: w.CheckWorkloadOverload},
		{Name: "high_stress", Run: w.CheckStress},
		{Name: "burnout_risk", Run: w.CheckBurnout},
		{Name: "late_night_work", Run: w.CheckLateNight},
		{Name: "slow_response", Run: w.CheckSlowResponse},
	}
}

// SweepChecks are the population checks run by the alert sweep loop.
func (w *Watcher) SweepChecks() []Check {
	return []Check{
		{Name: "team_imbalance", Run: w.CheckTeamImbalance},
		{Name: "activity_spikes", Run: w.CheckActivitySpikes},
		{Name: "workload_spikes", Run: w.CheckWorkloadSpikes},
		{Name: "message_density", Run: w.CheckMessageDensity},
		{Name: "message_patterns", Run: w.CheckMessagePatterns},
	}
}

// send forwards req and treats suppression as success.
func (w *Watcher) send(ctx context.Context, req model.AlertRequest) error {
	_, err := w.sender.Send(ctx, req)
	if err != nil && !errors.Is(err, ErrSuppressed) {
		return fmt.Errorf("failed to send %s alert for %s: %w", req.Type, req.Target, err)
	}
	return nil
}

// eachLatest calls fn with the newest record of every entity.
func (w *Watcher) eachLatest(fn func(model.ActivityRecord) error) error {
	var errs error
	for _, id := range w.source.Entities() {
		rec, ok := w.source.Latest(id)
		if !ok {
			continue
		}
		errs = multierr.Append(errs, fn(rec))
	}
	return errs
}

func userRequest(rec model.ActivityRecord, t model.AlertType, sev model.AlertSeverity, msg string, metadata map[string]interface{}) model.AlertRequest {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	if rec.TeamID != "" {
		metadata["team_id"] = rec.TeamID
	}
	return model.AlertRequest{
		Target:   model.Target{UserID: rec.EntityID},
		Type:     t,
		Severity: sev,
		Message:  msg,
		Metadata: metadata,
	}
}

// CheckWorkloadOverload alerts users whose workload score reaches the threshold.
func (w *Watcher) CheckWorkloadOverload(ctx context.Context) error {
	return w.eachLatest(func(rec model.ActivityRecord) error {
		score, level, factors := scoring.WorkloadFromActivity(rec)
		if score < w.thresholds.Workload {
			return nil
		}
		return w.send(ctx, userRequest(rec, model.AlertTypeWorkloadOverload, model.AlertSeverityHigh,
			fmt.Sprintf("Workload at %.0f%% (%s)", score*100, level),
			map[string]interface{}{
				"workload_score":  score,
				"workload_level":  string(level),
				"factors":         strings.Join(factors, ","),
				"recommendations": strings.Join(scoring.WorkloadRecommendations(factors, level), "; "),
			}))
	})
}

// CheckStress alerts users whose activity stress score reaches the threshold.
func (w *Watcher) CheckStress(ctx context.Context) error {
	return w.eachLatest(func(rec model.ActivityRecord) error {
		score, indicators := scoring.StressFromActivity(rec)
		if score < w.thresholds.Stress {
			return nil
		}
		return w.send(ctx, userRequest(rec, model.AlertTypeHighStress, model.AlertSeverityMedium,
			fmt.Sprintf("Stress level at %.0f%%", score*100),
			map[string]interface{}{
				"stress_score": score,
				"indicators":   strings.Join(indicators, ","),
			}))
	})
}

// CheckBurnout alerts users whose burnout risk reaches the threshold.
func (w *Watcher) CheckBurnout(ctx context.Context) error {
	return w.eachLatest(func(rec model.ActivityRecord) error {
		risk := scoring.BurnoutFromActivity(rec)
		if risk < w.thresholds.Burnout {
			return nil
		}
		return w.send(ctx, userRequest(rec, model.AlertTypeBurnoutRisk, model.AlertSeverityHigh,
			fmt.Sprintf("Burnout risk at %.0f%%", risk*100),
			map[string]interface{}{"burnout_risk": risk}))
	})
}

// CheckLateNight alerts users with too many late-night messages.
func (w *Watcher) CheckLateNight(ctx context.Context) error {
	return w.eachLatest(func(rec model.ActivityRecord) error {
		if rec.LateNightMessages < w.thresholds.LateNightMessages {
			return nil
		}
		return w.send(ctx, userRequest(rec, model.AlertTypeLateNightWork, model.AlertSeverityMedium,
			fmt.Sprintf("Late-night work detected: %d messages after 10 PM", rec.LateNightMessages),
			map[string]interface{}{"late_night_messages": rec.LateNightMessages}))
	})
}

// CheckSlowResponse alerts users whose response time is above the threshold
// and rising against their previous record.
func (w *Watcher) CheckSlowResponse(ctx context.Context) error {
	var errs error
	for _, id := range w.source.Entities() {
		history := w.source.History(id)
		if len(history) < 2 {
			continue
		}
		latest, previous := history[len(history)-1], history[len(history)-2]
		if latest.AvgResponseTimeMinutes <= w.thresholds.SlowResponseMinutes ||
			latest.AvgResponseTimeMinutes <= previous.AvgResponseTimeMinutes {
			continue
		}
		errs = multierr.Append(errs, w.send(ctx, userRequest(latest, model.AlertTypeSlowResponse, model.AlertSeverityLow,
			fmt.Sprintf("Response time increasing: %.1f minutes average", latest.AvgResponseTimeMinutes),
			map[string]interface{}{
				"avg_response_time_minutes": latest.AvgResponseTimeMinutes,
				"previous_response_minutes": previous.AvgResponseTimeMinutes,
			})))
	}
	return errs
}

// teamLatest returns the newest record of every member of a team.
func (w *Watcher) teamLatest(members []string) []model.ActivityRecord {
	out := make([]model.ActivityRecord, 0, len(members))
	for _, id := range members {
		if rec, ok := w.source.Latest(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// CheckTeamImbalance alerts teams whose overloaded share crosses the imbalance threshold.
func (w *Watcher) CheckTeamImbalance(ctx context.Context) error {
	var errs error
	for teamID, members := range w.source.Teams() {
		balance := w.agg.TeamWorkload(teamID, w.teamLatest(members))
		if balance.Finding == nil {
			continue
		}
		req := balance.Finding.Request(model.Target{TeamID: teamID})
		req.Metadata["recommendations"] = strings.Join(balance.Recommendations, "; ")
		errs = multierr.Append(errs, w.send(ctx, req))
	}
	return errs
}

// CheckActivitySpikes compares message counts of recent channel batches.
func (w *Watcher) CheckActivitySpikes(ctx context.Context) error {
	var errs error
	for _, channelID := range w.source.Channels() {
		batches := w.source.ChannelBatches(channelID)
		series := make([]float64, len(batches))
		for i, b := range batches {
			series[i] = float64(len(b.Messages))
		}
		finding := w.activity.Check(channelID, series)
		if finding == nil {
			continue
		}
		finding.Description = fmt.Sprintf("Activity in #%s increased by %.1fx", channelID, finding.Metrics["ratio"])
		errs = multierr.Append(errs, w.send(ctx, finding.Request(model.Target{ChannelID: channelID})))
	}
	return errs
}

// CheckWorkloadSpikes compares recent workload scores of each user.
func (w *Watcher) CheckWorkloadSpikes(ctx context.Context) error {
	var errs error
	for _, id := range w.source.Entities() {
		history := w.source.History(id)
		series := make([]float64, len(history))
		for i, rec := range history {
			series[i], _, _ = scoring.WorkloadFromActivity(rec)
		}
		finding := w.workload.Check(id, series)
		if finding == nil {
			continue
		}
		finding.Description = fmt.Sprintf("Workload increased by %.1fx", finding.Metrics["ratio"])
		req := finding.Request(model.Target{UserID: id})
		if team := history[len(history)-1].TeamID; team != "" {
			req.Metadata["team_id"] = team
		}
		errs = multierr.Append(errs, w.send(ctx, req))
	}
	return errs
}

// CheckMessageDensity compares the last two batches of each channel.
func (w *Watcher) CheckMessageDensity(ctx context.Context) error {
	var errs error
	for _, channelID := range w.source.Channels() {
		batches := w.source.ChannelBatches(channelID)
		if len(batches) < 2 {
			continue
		}
		current := float64(len(batches[len(batches)-1].Messages))
		previous := float64(len(batches[len(batches)-2].Messages))
		ratio, ok := anomaly.Ratio(current, previous)
		if !ok || ratio <= w.thresholds.DensityRatio {
			continue
		}
		errs = multierr.Append(errs, w.send(ctx, model.AlertRequest{
			Target:   model.Target{ChannelID: channelID},
			Type:     model.AlertTypeMessageDensitySpike,
			Severity: model.AlertSeverityLow,
			Message:  fmt.Sprintf("Message density in #%s increased by %.1fx", channelID, ratio),
			Metadata: map[string]interface{}{
				"current":  current,
				"previous": previous,
				"ratio":    ratio,
			},
		}))
	}
	return errs
}

// CheckMessagePatterns analyzes the latest batch of each channel.
func (w *Watcher) CheckMessagePatterns(ctx context.Context) error {
	var errs error
	for _, channelID := range w.source.Channels() {
		batches := w.source.ChannelBatches(channelID)
		if len(batches) == 0 {
			continue
		}
		analysis := w.agg.AnalyzeMessages(batches[len(batches)-1].Messages)
		for _, p := range analysis.Patterns {
			errs = multierr.Append(errs, w.send(ctx, p.Request(model.Target{ChannelID: channelID})))
		}
	}
	return errs
}

// TeamDigest is the daily per-team view
type TeamDigest struct {
	TeamID       string   `json:"team_id"`
	Members      int      `json:"members"`
	MeanStress   float64  `json:"mean_stress"`
	MeanWorkload float64  `json:"mean_workload"`
	MeanBurnout  float64  `json:"mean_burnout"`
	NeedsSupport []string `json:"needs_support"`
}

// Digest computes the daily view for one team from its members' newest records.
func (w *Watcher) Digest(teamID string, now time.Time) TeamDigest {
	records := w.teamLatest(w.source.Teams()[teamID])

	var scores []model.ScoreRecord
	for _, rec := range records {
		scores = append(scores, scoring.Evaluate(rec, now)...)
	}

	stress := aggregator.Summarize(model.ScoreKindStress, scores, w.thresholds.Stress)
	workload := aggregator.Summarize(model.ScoreKindWorkload, scores, w.thresholds.Workload)
	burnout := aggregator.Summarize(model.ScoreKindBurnout, scores, w.thresholds.Burnout)

	limits := map[model.ScoreKind]float64{
		model.ScoreKindStress:   w.thresholds.Stress,
		model.ScoreKindWorkload: w.thresholds.Workload,
		model.ScoreKindBurnout:  w.thresholds.Burnout,
	}
	needs := make(map[string]bool)
	var order []string
	for _, s := range scores {
		if s.Value >= limits[s.Kind] && !needs[s.EntityID] {
			needs[s.EntityID] = true
			order = append(order, s.EntityID)
		}
	}
	if order == nil {
		order = []string{}
	}

	return TeamDigest{
		TeamID:       teamID,
		Members:      len(records),
		MeanStress:   stress.Mean,
		MeanWorkload: workload.Mean,
		MeanBurnout:  burnout.Mean,
		NeedsSupport: order,
	}
}

// SendDailySummaries sends one DAILY_SUMMARY alert per team.
func (w *Watcher) SendDailySummaries(ctx context.Context) error {
	var errs error
	now := w.now()
	for teamID := range w.source.Teams() {
		d := w.Digest(teamID, now)
		if d.Members == 0 {
			continue
		}

		support := "none"
		if len(d.NeedsSupport) > 0 {
			support = strings.Join(d.NeedsSupport, ", ")
		}
		errs = multierr.Append(errs, w.send(ctx, model.AlertRequest{
			Target:   model.Target{TeamID: teamID},
			Type:     model.AlertTypeDailySummary,
			Severity: model.AlertSeverityLow,
			Message: fmt.Sprintf("Daily summary %s: %d members, stress %.0f%%, workload %.0f%%, burnout risk %.0f%%. Needs support: %s",
				now.Format("2006-01-02"), d.Members, d.MeanStress*100, d.MeanWorkload*100, d.MeanBurnout*100, support),
			Metadata: map[string]interface{}{
				"members":       d.Members,
				"mean_stress":   d.MeanStress,
				"mean_workload": d.MeanWorkload,
				"mean_burnout":  d.MeanBurnout,
			},
		}))
	}

	w.logger.Info("Daily summaries sent", zap.Int("teams", len(w.source.Teams())), zap.Error(errs))
	return errs
}

// TeamMetrics is the live cognitive-load view of one team
type TeamMetrics struct {
	Digest  TeamDigest             `json:"digest"`
	Balance aggregator.TeamBalance `json:"balance"`
}

// TeamMetrics reports the digest and workload balance of a team. It returns
// false for a team with no recorded members.
func (w *Watcher) TeamMetrics(teamID string) (TeamMetrics, bool) {
	members, ok := w.source.Teams()[teamID]
	if !ok || len(members) == 0 {
		return TeamMetrics{}, false
	}
	return TeamMetrics{
		Digest:  w.Digest(teamID, w.now()),
		Balance: w.agg.TeamWorkload(teamID, w.teamLatest(members)),
	}, true
}

// UserReport is the scored view of a user's newest record together with the
// work patterns of their history
type UserReport struct {
	scoring.ActivityReport
	TeamID       string                  `json:"team_id,omitempty"`
	LastSeen     time.Time               `json:"last_seen"`
	Observations int                     `json:"observations"`
	WorkPatterns aggregator.WorkPatterns `json:"work_patterns"`
}

// UserReport builds the activity report for entityID. It returns false when
// nothing has been recorded for the entity.
func (w *Watcher) UserReport(entityID string) (UserReport, bool) {
	latest, ok := w.source.Latest(entityID)
	if !ok {
		return UserReport{}, false
	}
	history := w.source.History(entityID)
	return UserReport{
		ActivityReport: scoring.Report(latest),
		TeamID:         latest.TeamID,
		LastSeen:       latest.Timestamp,
		Observations:   len(history),
		WorkPatterns:   aggregator.DetectWorkPatterns(entityID, history),
	}, true
}
