package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/loadwatch/internal/model"
)

func TestActivitySpikeDetector(t *testing.T) {
	d := NewActivitySpikeDetector()

	t.Run("spike", func(t *testing.T) {
		finding := d.Check("c1", []float64{9, 10, 10, 10, 40, 40, 40})
		require.NotNil(t, finding)
		assert.Equal(t, model.AlertTypeActivitySpike, finding.Type)
		assert.Equal(t, model.AlertSeverityHigh, finding.Severity)
		assert.InDelta(t, 4.0, finding.Metrics["ratio"], 1e-9)
		assert.InDelta(t, 40.0, finding.Metrics["recent_mean"], 1e-9)
		assert.InDelta(t, 10.0, finding.Metrics["previous_mean"], 1e-9)
		assert.Equal(t, []string{"c1"}, finding.AffectedEntities)
		assert.Equal(t, "message_count increased by 4.0x", finding.Description)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Nil(t, d.Check("c1", []float64{1, 1, 40, 40, 40}))
		assert.Nil(t, d.Check("c1", nil))
	})

	t.Run("zero previous mean", func(t *testing.T) {
		assert.Nil(t, d.Check("c1", []float64{0, 0, 0, 50, 50, 50}))
	})

	t.Run("ratio at threshold", func(t *testing.T) {
		assert.Nil(t, d.Check("c1", []float64{10, 10, 10, 30, 30, 30}))
	})

	t.Run("drop", func(t *testing.T) {
		assert.Nil(t, d.Check("c1", []float64{40, 40, 40, 1, 1, 1}))
	})
}

func TestWorkloadSpikeDetector(t *testing.T) {
	d := NewWorkloadSpikeDetector()

	// two full windows are needed
	assert.Nil(t, d.Check("u1", []float64{0.2, 0.2, 0.4, 0.4, 0.4}))

	finding := d.Check("u1", []float64{0.2, 0.2, 0.2, 0.4, 0.4, 0.4})
	require.NotNil(t, finding)
	assert.Equal(t, model.AlertTypeWorkloadSpike, finding.Type)
	assert.Equal(t, model.AlertSeverityMedium, finding.Severity)
	assert.InDelta(t, 2.0, finding.Metrics["ratio"], 1e-9)

	// 1.4x
	assert.Nil(t, d.Check("u1", []float64{0.5, 0.5, 0.5, 0.7, 0.7, 0.7}))
}

func TestRatio(t *testing.T) {
	r, ok := Ratio(10, 4)
	assert.True(t, ok)
	assert.Equal(t, 2.5, r)

	_, ok = Ratio(10, 0)
	assert.False(t, ok)
}
