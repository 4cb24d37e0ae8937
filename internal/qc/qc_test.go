package qc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfacemet/surfaced/internal/database"
)

func reading(ts time.Time, measured float64) database.Reading {
	return database.Reading{
		StationID:   1,
		VariableID:  10,
		Timestamp:   ts,
		Measured:    measured,
		QualityFlag: database.FlagGood,
	}
}

func TestEvaluateStep(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	readings := []database.Reading{
		reading(base, 20.0),
		reading(base.Add(time.Hour), 20.5),
		reading(base.Add(2*time.Hour), 35.0),
		reading(base.Add(3*time.Hour), 34.8),
	}

	results := evaluateStep(readings, 5.0)
	require.Len(t, results, 4)

	// no predecessor means a zero step
	assert.Equal(t, 0.0, results[0].Step)
	assert.False(t, results[0].Exceeded)

	assert.InDelta(t, 0.5, results[1].Step, 1e-9)
	assert.False(t, results[1].Exceeded)

	assert.InDelta(t, 14.5, results[2].Step, 1e-9)
	assert.True(t, results[2].Exceeded)
	assert.False(t, results[2].HardFail)

	assert.InDelta(t, 0.2, results[3].Step, 1e-9)
	assert.False(t, results[3].Exceeded)
}

func TestEvaluateStepHardFail(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	suspect := reading(base.Add(time.Hour), 50.0)
	suspect.QCPersistFlag = database.QCSuspicious

	results := evaluateStep([]database.Reading{reading(base, 20.0), suspect}, 5.0)
	require.Len(t, results, 2)
	assert.True(t, results[1].Exceeded)
	assert.True(t, results[1].HardFail)
}

func TestEvaluateStepNegativeDirection(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	results := evaluateStep([]database.Reading{
		reading(base, 30.0),
		reading(base.Add(time.Hour), 10.0),
	}, 5.0)
	require.Len(t, results, 2)
	assert.InDelta(t, 20.0, results[1].Step, 1e-9)
	assert.True(t, results[1].Exceeded)
}

func TestEvaluatePersistenceStableSeries(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	var readings []database.Reading
	for i := 0; i < 26; i++ {
		readings = append(readings, reading(base.Add(time.Duration(i)*time.Hour), 20.0))
	}

	for _, action := range evaluatePersistence(readings, 1.0) {
		assert.False(t, action.WindowSuspicious, "stable series must not trip at %s", action.Timestamp)
		assert.Equal(t, 0.0, action.Variance)
	}
}

func TestEvaluatePersistenceVolatileWindow(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{10, 90, 5, 95, 12, 88}
	var readings []database.Reading
	for i, v := range values {
		readings = append(readings, reading(base.Add(time.Duration(i)*time.Hour), v))
	}
	readings = append(readings, reading(base.Add(6*time.Hour), 50.0))

	actions := evaluatePersistence(readings, 100.0)
	require.Len(t, actions, len(readings))

	last := actions[len(actions)-1]
	assert.True(t, last.WindowSuspicious)
	assert.Greater(t, last.Variance, 100.0)
}

func TestEvaluatePersistenceExcludesCurrentAndOldReadings(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	readings := []database.Reading{
		// outside the 24h window of the last reading
		reading(base.Add(-30*time.Hour), 1000.0),
		reading(base, 20.0),
		reading(base.Add(time.Hour), 21.0),
		reading(base.Add(23*time.Hour), 20.5),
	}

	actions := evaluatePersistence(readings, 5.0)
	last := actions[len(actions)-1]
	assert.False(t, last.WindowSuspicious, "the 30h-old outlier must not count")
}

func TestEvaluatePersistenceSkipsRejectedAndMissing(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	bad := reading(base.Add(time.Hour), 500.0)
	bad.QualityFlag = database.FlagBad
	missing := reading(base.Add(2*time.Hour), database.MissingValue)

	readings := []database.Reading{
		reading(base, 20.0),
		bad,
		missing,
		reading(base.Add(3*time.Hour), 21.0),
		reading(base.Add(4*time.Hour), 20.5),
	}

	actions := evaluatePersistence(readings, 5.0)
	last := actions[len(actions)-1]
	assert.False(t, last.WindowSuspicious)
}

func TestEvaluatePersistenceSingleValueWindow(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	actions := evaluatePersistence([]database.Reading{
		reading(base, 20.0),
		reading(base.Add(time.Hour), 900.0),
	}, 1.0)

	// a one-sample window has no variance to speak of
	assert.Equal(t, 0.0, actions[1].Variance)
	assert.False(t, actions[1].WindowSuspicious)
}
