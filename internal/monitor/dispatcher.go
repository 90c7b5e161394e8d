package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// Sink delivers a formatted alert to a destination
type Sink interface {
	Deliver(ctx context.Context, target model.Target, message string) error
}

// Archive mirrors dispatched alerts into durable storage. Get returns nil
// for an unknown id.
type Archive interface {
	Store(ctx context.Context, alert *model.Alert) error
	Resolve(ctx context.Context, id string, at time.Time) error
	Get(ctx context.Context, id string) (*model.Alert, error)
}

// Route sends alerts for one target kind at or above MinSeverity to Sink
type Route struct {
	Name        string
	Kind        model.TargetKind
	MinSeverity model.AlertSeverity
	Sink        Sink
}

func (r Route) matches(kind model.TargetKind, sev model.AlertSeverity) bool {
	return r.Kind == kind && sev.AtLeast(r.MinSeverity)
}

// DispatcherConfig configures the alert dispatcher
type DispatcherConfig struct {
	HistoryLimit    int
	HighCooldown    time.Duration
	DefaultCooldown time.Duration
	Routes          []Route
	DefaultSink     Sink
	Archive         Archive
	Now             func() time.Time
}

// DefaultDispatcherConfig returns a config with the standard limits and no sinks.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		HistoryLimit:    100,
		HighCooldown:    time.Hour,
		DefaultCooldown: 4 * time.Hour,
	}
}

type entry struct {
	alert model.Alert
	seq   uint64
}

// Dispatcher gates alerts through per-entity cooldowns, keeps a bounded
// history per target key and routes each alert to exactly one sink.
type Dispatcher struct {
	logger *zap.Logger
	cfg    DispatcherConfig
	now    func() time.Time

	mu        sync.Mutex
	seq       uint64
	history   map[string][]entry
	cooldowns map[string]time.Time
}

// NewDispatcher creates a new alert dispatcher
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}
	if cfg.HighCooldown <= 0 {
		cfg.HighCooldown = defaults.HighCooldown
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = defaults.DefaultCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		logger:    logger.Named("dispatcher"),
		cfg:       cfg,
		now:       now,
		history:   make(map[string][]entry),
		cooldowns: make(map[string]time.Time),
	}
}

// Cooldown returns how long alerts of type t stay suppressed per entity.
func (d *Dispatcher) Cooldown(t model.AlertType) time.Duration {
	if t.HighSeverityOperational() {
		return d.cfg.HighCooldown
	}
	return d.cfg.DefaultCooldown
}

// cooldownKey includes the target kind so a user and a team sharing an id
// cool down independently.
func cooldownKey(target model.Target, t model.AlertType) string {
	return target.String() + "|" + string(t)
}

func (d *Dispatcher) allow(target model.Target, t model.AlertType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allowLocked(cooldownKey(target, t), t, d.now())
}

func (d *Dispatcher) allowLocked(key string, t model.AlertType, now time.Time) bool {
	last, ok := d.cooldowns[key]
	if !ok {
		return true
	}
	if now.Sub(last) >= d.Cooldown(t) {
		delete(d.cooldowns, key)
		return true
	}
	return false
}

// Send records and delivers an alert. It returns ErrSuppressed while the
// target entity is cooling down for this type. Delivery and archive
// failures are logged and never undo the stored alert.
func (d *Dispatcher) Send(ctx context.Context, req model.AlertRequest) (*model.Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate alert: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate alert id: %w", err)
	}

	key := req.Target.Key()
	ck := cooldownKey(req.Target, req.Type)

	d.mu.Lock()
	now := d.now()
	if !d.allowLocked(ck, req.Type, now) {
		d.mu.Unlock()
		d.logger.Debug("Alert suppressed",
			zap.String("target", req.Target.String()),
			zap.String("type", string(req.Type)))
		return nil, ErrSuppressed
	}
	d.cooldowns[ck] = now

	alert := model.Alert{
		ID:        id.String(),
		Timestamp: now,
		Target:    req.Target,
		Type:      req.Type,
		Severity:  req.Severity,
		Message:   req.Message,
		Metadata:  cloneMetadata(req.Metadata),
	}
	d.seq++
	list := append(d.history[key], entry{alert: alert, seq: d.seq})
	if over := len(list) - d.cfg.HistoryLimit; over > 0 {
		list = append([]entry(nil), list[over:]...)
	}
	d.history[key] = list
	d.mu.Unlock()

	d.logger.Info("Alert created",
		zap.String("id", alert.ID),
		zap.String("target", alert.Target.String()),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	if d.cfg.Archive != nil {
		if err := d.cfg.Archive.Store(ctx, &alert); err != nil {
			d.logger.Error("Failed to archive alert", zap.String("id", alert.ID), zap.Error(err))
		}
	}

	d.deliver(ctx, alert)

	return &alert, nil
}

// sinkFor picks the first matching route, falling back to the default sink.
func (d *Dispatcher) sinkFor(alert model.Alert) (string, Sink) {
	kind := alert.Target.Kind()
	for _, r := range d.cfg.Routes {
		if r.Sink != nil && r.matches(kind, alert.Severity) {
			return r.Name, r.Sink
		}
	}
	return "default", d.cfg.DefaultSink
}

func (d *Dispatcher) deliver(ctx context.Context, alert model.Alert) {
	name, sink := d.sinkFor(alert)
	if sink == nil {
		d.logger.Warn("No sink for alert", zap.String("id", alert.ID))
		return
	}

	if err := sink.Deliver(ctx, alert.Target, FormatAlert(alert)); err != nil {
		d.logger.Error("Failed to deliver alert",
			zap.String("id", alert.ID),
			zap.String("sink", name),
			zap.Error(err))
		return
	}

	d.logger.Debug("Alert delivered", zap.String("id", alert.ID), zap.String("sink", name))
}

// TeamAlerts returns the alerts addressed to teamID merged with any other
// alert that names the team in its metadata, newest first. A user or channel
// sharing the team's id shares its history key but is not included.
func (d *Dispatcher) TeamAlerts(teamID string, limit int) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool)
	var out []entry
	for _, list := range d.history {
		for _, e := range list {
			if seen[e.alert.ID] || !namesTeam(e.alert, teamID) {
				continue
			}
			seen[e.alert.ID] = true
			out = append(out, e)
		}
	}
	return newestFirst(out, limit)
}

func namesTeam(a model.Alert, teamID string) bool {
	if a.Target.TeamID == teamID {
		return true
	}
	v, ok := a.Metadata["team_id"].(string)
	return ok && v == teamID
}

// RecentAlerts returns the newest alerts across every key.
func (d *Dispatcher) RecentAlerts(limit int) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []entry
	for _, list := range d.history {
		out = append(out, list...)
	}
	return newestFirst(out, limit)
}

// keyHistory returns the stored alerts for one key, oldest first.
func (d *Dispatcher) keyHistory(key string) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.history[key]
	out := make([]model.Alert, len(list))
	for i, e := range list {
		out[i] = e.alert
	}
	return out
}

// Alert returns the alert with id from the in-memory history, falling back
// to the archive for alerts that have aged out of it.
func (d *Dispatcher) Alert(ctx context.Context, id string) (*model.Alert, error) {
	d.mu.Lock()
	var found *model.Alert
	if e := d.findLocked(id); e != nil {
		a := e.alert
		found = &a
	}
	d.mu.Unlock()

	if found != nil {
		return found, nil
	}
	return d.archived(ctx, id)
}

func (d *Dispatcher) findLocked(id string) *entry {
	for _, list := range d.history {
		for i := range list {
			if list[i].alert.ID == id {
				return &list[i]
			}
		}
	}
	return nil
}

func (d *Dispatcher) archived(ctx context.Context, id string) (*model.Alert, error) {
	if d.cfg.Archive == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	alert, err := d.cfg.Archive.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived alert: %w", err)
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return alert, nil
}

// Resolve marks an alert resolved. Alerts no longer held in memory are
// resolved in the archive.
func (d *Dispatcher) Resolve(ctx context.Context, id string) (*model.Alert, error) {
	d.mu.Lock()
	var resolved *model.Alert
	if e := d.findLocked(id); e != nil {
		if !e.alert.Resolved {
			at := d.now()
			e.alert.Resolved = true
			e.alert.ResolvedAt = &at
		}
		a := e.alert
		resolved = &a
	}
	d.mu.Unlock()

	if resolved == nil {
		return d.resolveArchived(ctx, id)
	}

	if d.cfg.Archive != nil {
		if err := d.cfg.Archive.Resolve(ctx, id, *resolved.ResolvedAt); err != nil {
			d.logger.Error("Failed to archive resolution", zap.String("id", id), zap.Error(err))
		}
	}

	d.logger.Info("Alert resolved", zap.String("id", id))
	return resolved, nil
}

func (d *Dispatcher) resolveArchived(ctx context.Context, id string) (*model.Alert, error) {
	alert, err := d.archived(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Resolved {
		return alert, nil
	}

	at := d.now()
	if err := d.cfg.Archive.Resolve(ctx, id, at); err != nil {
		return nil, fmt.Errorf("failed to resolve archived alert: %w", err)
	}
	alert.Resolved = true
	alert.ResolvedAt = &at

	d.logger.Info("Archived alert resolved", zap.String("id", id))
	return alert, nil
}

// newestFirst sorts by timestamp descending, then by insertion order
// descending, and truncates to limit when limit is positive.
func newestFirst(entries []entry, limit int) []model.Alert {
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].alert.Timestamp, entries[j].alert.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]model.Alert, len(entries))
	for i, e := range entries {
		out[i] = e.alert
	}
	return out
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
