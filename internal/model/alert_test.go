package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity("high")
	require.NoError(t, err)
	assert.Equal(t, AlertSeverityHigh, sev)

	_, err = ParseSeverity("URGENT")
	assert.ErrorIs(t, err, ErrUnknownSeverity)

	assert.True(t, AlertSeverityCritical.AtLeast(AlertSeverityHigh))
	assert.False(t, AlertSeverityLow.AtLeast(AlertSeverityMedium))
}

func TestAlertJSONRejectsUnknownValues(t *testing.T) {
	var req AlertRequest
	err := json.Unmarshal([]byte(`{"type":"HIGH_STRESS","severity":"SEVERE"}`), &req)
	assert.ErrorIs(t, err, ErrUnknownSeverity)

	err = json.Unmarshal([]byte(`{"type":"COFFEE_BREAK","severity":"LOW"}`), &req)
	assert.ErrorIs(t, err, ErrUnknownAlertType)

	err = json.Unmarshal([]byte(`{"type":"burnout_risk","severity":"critical","target":{"user_id":"u1"}}`), &req)
	require.NoError(t, err)
	assert.Equal(t, AlertTypeBurnoutRisk, req.Type)
	assert.Equal(t, AlertSeverityCritical, req.Severity)
	assert.NoError(t, req.Validate())
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		kind    TargetKind
		key     string
		wantErr bool
	}{
		{name: "user", target: Target{UserID: "u1"}, kind: TargetUser, key: "u1"},
		{name: "team", target: Target{TeamID: "t1"}, kind: TargetTeam, key: "t1"},
		{name: "channel", target: Target{ChannelID: "c1"}, kind: TargetChannel, key: "c1"},
		{name: "global", target: Target{}, kind: TargetGlobal, key: GlobalKey},
		{name: "ambiguous", target: Target{UserID: "u1", TeamID: "t1"}, kind: TargetTeam, key: "t1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.target.Kind())
			assert.Equal(t, tt.key, tt.target.Key())
			if tt.wantErr {
				assert.ErrorIs(t, tt.target.Validate(), ErrInvalidTarget)
			} else {
				assert.NoError(t, tt.target.Validate())
			}
		})
	}
}

func TestAlertTypeTitle(t *testing.T) {
	assert.Equal(t, "Workload Overload", AlertTypeWorkloadOverload.Title())
	assert.Equal(t, "High Activity Spike", AlertTypeActivitySpike.Title())
	assert.True(t, AlertTypeBurnoutRisk.HighSeverityOperational())
	assert.False(t, AlertTypeLateNightWork.HighSeverityOperational())
}

func TestWorkloadLevelFor(t *testing.T) {
	assert.Equal(t, WorkloadLow, WorkloadLevelFor(0))
	assert.Equal(t, WorkloadLow, WorkloadLevelFor(0.29))
	assert.Equal(t, WorkloadMedium, WorkloadLevelFor(0.3))
	assert.Equal(t, WorkloadHigh, WorkloadLevelFor(0.6))
	assert.Equal(t, WorkloadHigh, WorkloadLevelFor(0.79))
	assert.Equal(t, WorkloadCritical, WorkloadLevelFor(0.8))
	assert.Equal(t, WorkloadCritical, WorkloadLevelFor(1))
}
