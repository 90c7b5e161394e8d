package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

func TestRunScore(t *testing.T) {
	in := strings.NewReader(`{
		"entity_id": "u1",
		"messages_per_hour": 18,
		"avg_response_time_minutes": 1.5,
		"daily_hours": 11,
		"late_night_messages": 4,
		"meeting_hours_per_day": 5,
		"active_tasks": 8
	}`)
	var out bytes.Buffer
	require.NoError(t, runScore(in, &out))

	var report scoring.ActivityReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "u1", report.EntityID)
	assert.InDelta(t, 0.9, report.StressScore, 1e-9)
	assert.InDelta(t, 0.4, report.WorkloadScore, 1e-9)
	assert.Equal(t, model.WorkloadMedium, report.WorkloadLevel)
	assert.Contains(t, out.String(), "\n  \"stress_score\"")
}

func TestRunScore_InvalidInput(t *testing.T) {
	err := runScore(strings.NewReader("not json"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode activity record")
}

func TestScoreCommand_Stdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(`{"entity_id":"u9","avg_response_time_minutes":30}`))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"score"})
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var report scoring.ActivityReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "u9", report.EntityID)
	assert.InDelta(t, 0.1, report.BurnoutRisk, 1e-9)
	assert.Equal(t, model.WorkloadLow, report.WorkloadLevel)
}
