package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfacemet/surfaced/internal/database"
)

func TestDayChunks(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("multi day with partial tail", func(t *testing.T) {
		chunks := DayChunks(start, start.Add(60*time.Hour))
		require.Len(t, chunks, 3)
		assert.Equal(t, start, chunks[0][0])
		assert.Equal(t, start.Add(24*time.Hour), chunks[0][1])
		assert.Equal(t, start.Add(48*time.Hour), chunks[2][0])
		assert.Equal(t, start.Add(60*time.Hour), chunks[2][1])
	})

	t.Run("exactly one day", func(t *testing.T) {
		chunks := DayChunks(start, start.Add(24*time.Hour))
		require.Len(t, chunks, 1)
	})

	t.Run("sub day range", func(t *testing.T) {
		chunks := DayChunks(start, start.Add(3*time.Hour))
		require.Len(t, chunks, 1)
		assert.Equal(t, start.Add(3*time.Hour), chunks[0][1])
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Nil(t, DayChunks(start, start))
	})

	t.Run("chunks are contiguous", func(t *testing.T) {
		chunks := DayChunks(start, start.Add(7*24*time.Hour+5*time.Hour))
		for i := 1; i < len(chunks); i++ {
			assert.Equal(t, chunks[i-1][1], chunks[i][0])
		}
	})
}

func TestSummaryValue(t *testing.T) {
	tests := []struct {
		op   int16
		want float64
	}{
		{1, 12.5}, // avg
		{2, 12.5}, // avg
		{3, 10.0}, // min
		{4, 15.0}, // max
		{6, 50.0}, // sum
		{9, 50.0}, // unknown defaults to sum
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SummaryValue(tt.op, 10.0, 15.0, 12.5, 50.0), "op %d", tt.op)
	}
}

func TestVariableLabel(t *testing.T) {
	withUnit := &database.Variable{Symbol: "TEMP", Name: "Air Temperature", UnitSymbol: "°C"}
	assert.Equal(t, "TEMP - Air Temperature (°C)", VariableLabel(withUnit))

	withoutUnit := &database.Variable{Symbol: "WDIR", Name: "Wind Direction"}
	assert.Equal(t, "WDIR - Wind Direction", VariableLabel(withoutUnit))
}

func TestPivot(t *testing.T) {
	t0 := time.Date(2023, 6, 5, 14, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	points := []Point{
		{Local: t1, VariableID: 2, Value: 1013.2},
		{Local: t0, VariableID: 1, Value: 28.4},
		{Local: t0, VariableID: 2, Value: 1012.8},
		// variable 1 has no reading at t1
	}

	rows := Pivot(points, []int{1, 2})
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"2023", "06", "05", "14:00:00", "28.4", "1012.8"}, rows[0])
	assert.Equal(t, []string{"2023", "06", "05", "15:00:00", "", "1013.2"}, rows[1])
}

func TestPivotEmpty(t *testing.T) {
	assert.Empty(t, Pivot(nil, []int{1}))
}

func TestDenseFill(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("gaps become missing cells", func(t *testing.T) {
		// 5-minute cadence over half an hour, readings only at :00 and :20
		points := []Point{
			{Local: start, VariableID: 7, Value: 21.5},
			{Local: start.Add(20 * time.Minute), VariableID: 7, Value: 22.0},
		}
		filled := DenseFill(points, start, start.Add(30*time.Minute), 300, []int{7})
		require.Len(t, filled, 6)

		values := make(map[time.Time]float64)
		for _, p := range filled {
			values[p.Local] = p.Value
		}
		assert.Equal(t, 21.5, values[start])
		assert.Equal(t, 22.0, values[start.Add(20*time.Minute)])
		assert.Equal(t, database.MissingValue, values[start.Add(5*time.Minute)])
		assert.Equal(t, database.MissingValue, values[start.Add(25*time.Minute)])
	})

	t.Run("fills every selected variable", func(t *testing.T) {
		points := []Point{{Local: start, VariableID: 1, Value: 3.0}}
		filled := DenseFill(points, start, start.Add(10*time.Minute), 600, []int{1, 2})
		require.Len(t, filled, 2)
		assert.Equal(t, database.MissingValue, filled[1].Value)
		assert.Equal(t, 2, filled[1].VariableID)
	})

	t.Run("off cadence points survive", func(t *testing.T) {
		points := []Point{{Local: start.Add(90 * time.Second), VariableID: 1, Value: 1.0}}
		filled := DenseFill(points, start, start.Add(5*time.Minute), 300, []int{1})
		require.Len(t, filled, 2)
	})

	t.Run("zero interval disables filling", func(t *testing.T) {
		points := []Point{{Local: start, VariableID: 1, Value: 1.0}}
		assert.Len(t, DenseFill(points, start, start.Add(time.Hour), 0, []int{1}), 1)
	})
}
