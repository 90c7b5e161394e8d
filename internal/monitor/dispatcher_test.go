package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/loadwatch/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type delivery struct {
	target  model.Target
	message string
}

type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
}

func (s *recordingSink) Deliver(_ context.Context, target model.Target, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{target: target, message: message})
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

type memoryArchive struct {
	mu       sync.Mutex
	stored   []string
	resolved []string
	alerts   map[string]model.Alert
}

func (a *memoryArchive) Store(_ context.Context, alert *model.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored = append(a.stored, alert.ID)
	if a.alerts == nil {
		a.alerts = make(map[string]model.Alert)
	}
	a.alerts[alert.ID] = *alert
	return nil
}

func (a *memoryArchive) Resolve(_ context.Context, id string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolved = append(a.resolved, id)
	if alert, ok := a.alerts[id]; ok {
		alert.Resolved = true
		alert.ResolvedAt = &at
		a.alerts[id] = alert
	}
	return nil
}

func (a *memoryArchive) Get(_ context.Context, id string) (*model.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alert, ok := a.alerts[id]
	if !ok {
		return nil, nil
	}
	return &alert, nil
}

func newTestDispatcher(t *testing.T, clock *fakeClock, sink Sink) *Dispatcher {
	t.Helper()
	cfg := DefaultDispatcherConfig()
	cfg.DefaultSink = sink
	cfg.Now = clock.Now
	return NewDispatcher(cfg, zaptest.NewLogger(t))
}

func userAlert(user string, typ model.AlertType) model.AlertRequest {
	return model.AlertRequest{
		Target:   model.Target{UserID: user},
		Type:     typ,
		Severity: model.AlertSeverityMedium,
		Message:  "test",
	}
}

func TestDispatcher_Cooldown(t *testing.T) {
	ctx := context.Background()

	t.Run("default types cool down for four hours", func(t *testing.T) {
		clock := newFakeClock()
		d := newTestDispatcher(t, clock, &recordingSink{})

		_, err := d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		require.NoError(t, err)

		clock.Advance(3*time.Hour + 59*time.Minute)
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		assert.ErrorIs(t, err, ErrSuppressed)
		assert.False(t, d.allow(model.Target{UserID: "u1"}, model.AlertTypeHighStress))

		clock.Advance(time.Minute)
		assert.True(t, d.allow(model.Target{UserID: "u1"}, model.AlertTypeHighStress))
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		assert.NoError(t, err)
	})

	t.Run("overload and burnout cool down for one hour", func(t *testing.T) {
		clock := newFakeClock()
		d := newTestDispatcher(t, clock, &recordingSink{})

		for _, typ := range []model.AlertType{model.AlertTypeWorkloadOverload, model.AlertTypeBurnoutRisk} {
			_, err := d.Send(ctx, userAlert("u1", typ))
			require.NoError(t, err)
		}

		clock.Advance(59 * time.Minute)
		_, err := d.Send(ctx, userAlert("u1", model.AlertTypeWorkloadOverload))
		assert.ErrorIs(t, err, ErrSuppressed)

		clock.Advance(time.Minute)
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeWorkloadOverload))
		assert.NoError(t, err)
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeBurnoutRisk))
		assert.NoError(t, err)
	})

	t.Run("keys are per entity and type", func(t *testing.T) {
		clock := newFakeClock()
		sink := &recordingSink{}
		d := newTestDispatcher(t, clock, sink)

		_, err := d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		require.NoError(t, err)
		_, err = d.Send(ctx, userAlert("u2", model.AlertTypeHighStress))
		require.NoError(t, err)
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeLateNightWork))
		require.NoError(t, err)

		assert.Equal(t, 3, sink.count())
	})

	t.Run("suppressed alerts are neither stored nor delivered", func(t *testing.T) {
		clock := newFakeClock()
		sink := &recordingSink{}
		d := newTestDispatcher(t, clock, sink)

		_, err := d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		require.NoError(t, err)
		_, err = d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
		require.ErrorIs(t, err, ErrSuppressed)

		assert.Len(t, d.keyHistory("u1"), 1)
		assert.Equal(t, 1, sink.count())
	})
}

func TestDispatcher_HistoryBounded(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := newTestDispatcher(t, clock, &recordingSink{})

	var ids []string
	for i := 0; i < 101; i++ {
		alert, err := d.Send(ctx, model.AlertRequest{
			Target:   model.Target{TeamID: "t1"},
			Type:     model.AlertTypeWorkImbalance,
			Severity: model.AlertSeverityMedium,
			Message:  fmt.Sprintf("alert %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, alert.ID)
		clock.Advance(4 * time.Hour)
	}

	history := d.keyHistory("t1")
	require.Len(t, history, 100)
	assert.Equal(t, ids[1], history[0].ID)
	assert.Equal(t, ids[100], history[99].ID)
	for _, a := range history {
		assert.NotEqual(t, ids[0], a.ID)
	}
}

func TestDispatcher_HistoryKeys(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, newFakeClock(), &recordingSink{})

	_, err := d.Send(ctx, model.AlertRequest{Target: model.Target{ChannelID: "c1"}, Type: model.AlertTypeMessageDensitySpike, Severity: model.AlertSeverityLow})
	require.NoError(t, err)
	_, err = d.Send(ctx, model.AlertRequest{Type: model.AlertTypeDailySummary, Severity: model.AlertSeverityLow})
	require.NoError(t, err)

	assert.Len(t, d.keyHistory("c1"), 1)
	assert.Len(t, d.keyHistory(model.GlobalKey), 1)

	_, err = d.Send(ctx, model.AlertRequest{
		Target:   model.Target{UserID: "u1", ChannelID: "c1"},
		Type:     model.AlertTypeHighStress,
		Severity: model.AlertSeverityLow,
	})
	assert.ErrorIs(t, err, model.ErrInvalidTarget)

	_, err = d.Send(ctx, model.AlertRequest{Type: "NOPE", Severity: model.AlertSeverityLow})
	assert.ErrorIs(t, err, model.ErrUnknownAlertType)
}

func TestDispatcher_DeliveryFailureKeepsAlert(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("sink down")}
	d := newTestDispatcher(t, newFakeClock(), sink)

	alert, err := d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, 1, sink.count())
	history := d.keyHistory("u1")
	require.Len(t, history, 1)
	assert.Equal(t, alert.ID, history[0].ID)

	_, err = d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
	assert.ErrorIs(t, err, ErrSuppressed)
}

func TestDispatcher_Routing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	fallback := &recordingSink{}
	teamUrgent := &recordingSink{}
	users := &recordingSink{}

	cfg := DefaultDispatcherConfig()
	cfg.Now = clock.Now
	cfg.DefaultSink = fallback
	cfg.Routes = []Route{
		{Name: "team-urgent", Kind: model.TargetTeam, MinSeverity: model.AlertSeverityHigh, Sink: teamUrgent},
		{Name: "users", Kind: model.TargetUser, MinSeverity: model.AlertSeverityLow, Sink: users},
	}
	d := NewDispatcher(cfg, zaptest.NewLogger(t))

	send := func(target model.Target, typ model.AlertType, sev model.AlertSeverity) {
		_, err := d.Send(ctx, model.AlertRequest{Target: target, Type: typ, Severity: sev, Message: "m"})
		require.NoError(t, err)
	}

	send(model.Target{TeamID: "t1"}, model.AlertTypeWorkImbalance, model.AlertSeverityCritical)
	send(model.Target{TeamID: "t1"}, model.AlertTypeDailySummary, model.AlertSeverityLow)
	send(model.Target{UserID: "u1"}, model.AlertTypeHighStress, model.AlertSeverityMedium)
	send(model.Target{ChannelID: "c1"}, model.AlertTypeStressPattern, model.AlertSeverityHigh)

	assert.Equal(t, 1, teamUrgent.count())
	assert.Equal(t, 1, users.count())
	assert.Equal(t, 2, fallback.count())

	assert.Equal(t, model.Target{UserID: "u1"}, users.deliveries[0].target)
	assert.Contains(t, users.deliveries[0].message, "*Type:* High Stress")
}

func TestDispatcher_TeamAlerts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := newTestDispatcher(t, clock, &recordingSink{})

	first, err := d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "t1"}, Type: model.AlertTypeWorkImbalance, Severity: model.AlertSeverityMedium})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	member, err := d.Send(ctx, model.AlertRequest{
		Target:   model.Target{UserID: "u1"},
		Type:     model.AlertTypeHighStress,
		Severity: model.AlertSeverityMedium,
		Metadata: map[string]interface{}{"team_id": "t1"},
	})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	_, err = d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "t2"}, Type: model.AlertTypeWorkImbalance, Severity: model.AlertSeverityMedium})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	last, err := d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "t1"}, Type: model.AlertTypeDailySummary, Severity: model.AlertSeverityLow})
	require.NoError(t, err)

	got := d.TeamAlerts("t1", 10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{last.ID, member.ID, first.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.After(got[i].Timestamp))
	}

	limited := d.TeamAlerts("t1", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, last.ID, limited[0].ID)

	assert.Empty(t, d.TeamAlerts("unknown", 10))
}

func TestDispatcher_SharedIDsAcrossKinds(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	d := newTestDispatcher(t, newFakeClock(), sink)

	team, err := d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "ops"}, Type: model.AlertTypeHighStress, Severity: model.AlertSeverityMedium})
	require.NoError(t, err)
	user, err := d.Send(ctx, model.AlertRequest{Target: model.Target{UserID: "ops"}, Type: model.AlertTypeHighStress, Severity: model.AlertSeverityMedium})
	require.NoError(t, err, "a user named like a team has its own cooldown")
	assert.Equal(t, 2, sink.count())

	assert.False(t, d.allow(model.Target{TeamID: "ops"}, model.AlertTypeHighStress))
	assert.False(t, d.allow(model.Target{UserID: "ops"}, model.AlertTypeHighStress))
	assert.True(t, d.allow(model.Target{ChannelID: "ops"}, model.AlertTypeHighStress))

	// both land in the "ops" history list
	assert.Len(t, d.keyHistory("ops"), 2)

	got := d.TeamAlerts("ops", 10)
	require.Len(t, got, 1)
	assert.Equal(t, team.ID, got[0].ID)
	assert.NotEqual(t, user.ID, got[0].ID)
}

func TestDispatcher_RecentAlerts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := newTestDispatcher(t, clock, &recordingSink{})

	var ids []string
	for i := 0; i < 5; i++ {
		a, err := d.Send(ctx, userAlert(fmt.Sprintf("u%d", i), model.AlertTypeLateNightWork))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	got := d.RecentAlerts(3)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)

	assert.Len(t, d.RecentAlerts(0), 5)
}

func TestDispatcher_Resolve(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := &memoryArchive{}

	cfg := DefaultDispatcherConfig()
	cfg.Now = clock.Now
	cfg.Archive = archive
	d := NewDispatcher(cfg, zaptest.NewLogger(t))

	alert, err := d.Send(ctx, userAlert("u1", model.AlertTypeHighStress))
	require.NoError(t, err)
	assert.False(t, alert.Resolved)

	clock.Advance(10 * time.Minute)
	resolved, err := d.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, clock.Now(), *resolved.ResolvedAt)

	assert.True(t, d.keyHistory("u1")[0].Resolved)
	assert.Equal(t, []string{alert.ID}, archive.stored)
	assert.Equal(t, []string{alert.ID}, archive.resolved)

	_, err = d.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestDispatcher_ArchiveFallback(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := &memoryArchive{}

	cfg := DefaultDispatcherConfig()
	cfg.Now = clock.Now
	cfg.Archive = archive
	cfg.HistoryLimit = 1
	d := NewDispatcher(cfg, zaptest.NewLogger(t))

	old, err := d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "t1"}, Type: model.AlertTypeWorkImbalance, Severity: model.AlertSeverityMedium})
	require.NoError(t, err)
	clock.Advance(4 * time.Hour)
	current, err := d.Send(ctx, model.AlertRequest{Target: model.Target{TeamID: "t1"}, Type: model.AlertTypeWorkImbalance, Severity: model.AlertSeverityMedium})
	require.NoError(t, err)

	history := d.keyHistory("t1")
	require.Len(t, history, 1)
	assert.Equal(t, current.ID, history[0].ID)

	t.Run("get", func(t *testing.T) {
		got, err := d.Alert(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, old.ID, got.ID)

		got, err = d.Alert(ctx, current.ID)
		require.NoError(t, err)
		assert.Equal(t, current.ID, got.ID)

		_, err = d.Alert(ctx, "missing")
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("resolve", func(t *testing.T) {
		clock.Advance(time.Minute)
		resolved, err := d.Resolve(ctx, old.ID)
		require.NoError(t, err)
		assert.True(t, resolved.Resolved)
		require.NotNil(t, resolved.ResolvedAt)
		assert.Equal(t, clock.Now(), *resolved.ResolvedAt)
		assert.Contains(t, archive.resolved, old.ID)

		again, err := d.Resolve(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, *resolved.ResolvedAt, *again.ResolvedAt)
		assert.Len(t, archive.resolved, 1)
	})

	t.Run("without archive", func(t *testing.T) {
		plain := newTestDispatcher(t, clock, &recordingSink{})
		_, err := plain.Alert(ctx, old.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
		_, err = plain.Resolve(ctx, old.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})
}

func TestDispatcher_ConcurrentSends(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	d := newTestDispatcher(t, newFakeClock(), sink)

	var wg sync.WaitGroup
	var mu sync.Mutex
	suppressed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Send(ctx, userAlert(fmt.Sprintf("u%d", i%5), model.AlertTypeHighStress))
			if errors.Is(err, ErrSuppressed) {
				mu.Lock()
				suppressed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 15, suppressed)
	assert.Equal(t, 5, sink.count())
	assert.Len(t, d.RecentAlerts(0), 5)
}

func TestFormatAlert(t *testing.T) {
	a := model.Alert{
		Timestamp: time.Date(2024, 5, 6, 22, 15, 3, 0, time.UTC),
		Type:      model.AlertTypeBurnoutRisk,
		Severity:  model.AlertSeverityCritical,
		Message:   "Burnout risk at 85%",
		Metadata:  map[string]interface{}{"team_id": "t1", "burnout_risk": 0.85},
	}

	got := FormatAlert(a)
	lines := strings.Split(got, "\n")
	assert.Equal(t, "🔥 *Cognitive Load Alert* 🔥", lines[0])
	assert.Contains(t, got, "*Type:* Burnout Risk")
	assert.Contains(t, got, "*Severity:* CRITICAL")
	assert.Contains(t, got, "*Time:* 2024-05-06 22:15:03")
	assert.Equal(t, "*Details:* burnout_risk=0.85, team_id=t1", lines[len(lines)-1])

	a.Metadata = nil
	a.Severity = model.AlertSeverityLow
	got = FormatAlert(a)
	assert.True(t, strings.HasPrefix(got, "ℹ️"))
	assert.NotContains(t, got, "Details")
}
