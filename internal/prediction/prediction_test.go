package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
)

func obs(stationID int, ts time.Time, measured float64) database.Reading {
	return database.Reading{
		StationID:  stationID,
		VariableID: 5,
		Timestamp:  ts,
		Measured:   measured,
	}
}

func TestAccumulate(t *testing.T) {
	base := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)

	// 5-minute data, 15-minute windows: each value sums 3 readings
	readings := []database.Reading{
		obs(1, base, 1.0),
		obs(1, base.Add(5*time.Minute), 2.0),
		obs(1, base.Add(10*time.Minute), 3.0),
		obs(1, base.Add(15*time.Minute), 4.0),
	}

	values := accumulate(readings, 5, 15)
	require.Len(t, values, 2, "the first two readings lack full windows")

	assert.Equal(t, base.Add(10*time.Minute), values[0].Timestamp)
	assert.InDelta(t, 6.0, values[0].Acc, 1e-9)

	assert.Equal(t, base.Add(15*time.Minute), values[1].Timestamp)
	assert.InDelta(t, 9.0, values[1].Acc, 1e-9)
}

func TestAccumulateDiscardsGappedWindows(t *testing.T) {
	base := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)

	// a missing reading stretches the window beyond the interval span
	readings := []database.Reading{
		obs(1, base, 1.0),
		obs(1, base.Add(5*time.Minute), 2.0),
		// gap at +10
		obs(1, base.Add(15*time.Minute), 4.0),
	}

	values := accumulate(readings, 5, 15)
	assert.Empty(t, values, "a window spanning a gap must be discarded")
}

func TestAccumulateSingleReadingWindows(t *testing.T) {
	base := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)
	readings := []database.Reading{
		obs(1, base, 7.0),
		obs(1, base.Add(5*time.Minute), 8.0),
	}

	// period == interval means every reading is its own window
	values := accumulate(readings, 5, 5)
	require.Len(t, values, 2)
	assert.InDelta(t, 7.0, values[0].Acc, 1e-9)
	assert.InDelta(t, 8.0, values[1].Acc, 1e-9)
}

func TestGroupRowsRequiresAllStations(t *testing.T) {
	ts0 := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)
	ts1 := ts0.Add(5 * time.Minute)

	values := []windowValue{
		{Timestamp: ts0, StationID: 1, Acc: 2.0},
		{Timestamp: ts0, StationID: 2, Acc: 4.0},
		{Timestamp: ts1, StationID: 1, Acc: 3.0},
		// station 2 missing at ts1
	}

	rows := groupRows(values, []int{1, 2})
	require.Len(t, rows, 1)
	assert.Equal(t, ts0, rows[0].Datetime)
	assert.InDelta(t, 3.0, rows[0].Avg, 1e-9)
	assert.Equal(t, map[int]float64{1: 2.0, 2: 4.0}, rows[0].Values)
}

func TestPostRequestShape(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"datetime": "2023-06-15T10:00:00Z", "prediction": 1},
		})
	}))
	defer server.Close()

	c := &Client{url: server.URL, http: server.Client(), logger: zap.NewNop().Sugar()}
	rows := []RequestRow{
		{
			Datetime: time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC),
			Values:   map[int]float64{1: 2.0, 2: 4.0},
			Avg:      3.0,
		},
	}

	results, abandoned, err := c.post(context.Background(), "precip-42", rows)
	require.NoError(t, err)
	assert.False(t, abandoned)
	require.Len(t, results, 1)
	assert.Equal(t, float64(1), results[0].Prediction)

	assert.Equal(t, "precip-42", received["prediction_id"])
	data := received["data"].([]interface{})
	require.Len(t, data, 1)
	record := data[0].(map[string]interface{})
	assert.Equal(t, 3.0, record["avg"])
	assert.Equal(t, 2.0, record["1"])
	assert.Equal(t, 4.0, record["2"])
}

func TestPostAbandonsOnServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := &Client{url: server.URL, http: server.Client(), logger: zap.NewNop().Sugar()}
	_, abandoned, err := c.post(context.Background(), "precip-42", nil)
	require.NoError(t, err)
	assert.True(t, abandoned)
}
