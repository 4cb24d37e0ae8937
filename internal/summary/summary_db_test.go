package summary

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.Station{},
		&database.Reading{},
		&database.HourlySummary{},
		&database.DailySummary{},
	))
	return db
}

func seedFiveMinuteReadings(t *testing.T, db *gorm.DB, stationID int, from, to time.Time) {
	t.Helper()
	for ts := from; !ts.After(to); ts = ts.Add(5 * time.Minute) {
		require.NoError(t, db.Create(&database.Reading{
			StationID:   stationID,
			VariableID:  1,
			Timestamp:   ts,
			Measured:    20.0,
			QualityFlag: database.FlagGood,
		}).Error)
	}
}

func hourlyRows(t *testing.T, db *gorm.DB) map[time.Time]database.HourlySummary {
	t.Helper()
	var rows []database.HourlySummary
	require.NoError(t, db.Find(&rows).Error)
	byBucket := make(map[time.Time]database.HourlySummary, len(rows))
	for _, r := range rows {
		byBucket[r.Datetime.UTC()] = r
	}
	return byBucket
}

// A backlog task for hour H+1 must not rewrite the already-computed bucket
// for hour H from the single boundary reading it can see.
func TestCalculateHourlyAdjacentWindows(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db, zap.NewNop().Sugar())
	ctx := context.Background()

	h13 := time.Date(2023, 6, 5, 13, 0, 0, 0, time.UTC)
	h14 := h13.Add(time.Hour)
	seedFiveMinuteReadings(t, db, 1, h13.Add(5*time.Minute), h14.Add(5*time.Minute))

	require.NoError(t, engine.CalculateHourly(ctx, h13, h14, []int{1}))
	buckets := hourlyRows(t, db)
	require.Contains(t, buckets, h13)
	assert.Equal(t, 12, buckets[h13].NumRecords)
	// the 14:00 bucket needs readings beyond the window
	assert.NotContains(t, buckets, h14)

	require.NoError(t, engine.CalculateHourly(ctx, h14, h14.Add(time.Hour), []int{1}))
	buckets = hourlyRows(t, db)
	require.Contains(t, buckets, h13)
	assert.Equal(t, 12, buckets[h13].NumRecords, "bucket 13:00 must survive the next hour's task")
	require.Contains(t, buckets, h14)
	assert.Equal(t, 1, buckets[h14].NumRecords)
}

func TestCalculateHourlyRerunIdentical(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db, zap.NewNop().Sugar())
	ctx := context.Background()

	h13 := time.Date(2023, 6, 5, 13, 0, 0, 0, time.UTC)
	h14 := h13.Add(time.Hour)
	seedFiveMinuteReadings(t, db, 1, h13.Add(5*time.Minute), h14)

	require.NoError(t, engine.CalculateHourly(ctx, h13, h14, []int{1}))
	first := hourlyRows(t, db)

	require.NoError(t, engine.CalculateHourly(ctx, h13, h14, []int{1}))
	second := hourlyRows(t, db)

	require.Len(t, second, len(first))
	for bucket, row := range first {
		assert.Equal(t, row.NumRecords, second[bucket].NumRecords)
		assert.Equal(t, row.AvgValue, second[bucket].AvgValue)
		assert.Equal(t, row.SumValue, second[bucket].SumValue)
	}
}

func TestCalculateDailyRerunIdentical(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, db.Create(&database.Station{
		ID: 1, Code: "PG", Name: "Philip Goldson", UTCOffsetMinutes: -360, IsActive: true,
	}).Error)

	day := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	// local-day window for UTC-6 runs 06:00..06:00 UTC
	seedFiveMinuteReadings(t, db, 1, day.Add(7*time.Hour), day.Add(9*time.Hour))

	run := func() []database.DailySummary {
		require.NoError(t, engine.CalculateDaily(ctx, day, day.Add(24*time.Hour), []int{1}))
		var rows []database.DailySummary
		require.NoError(t, db.Order("day, station_id, variable_id").Find(&rows).Error)
		return rows
	}

	first := run()
	require.Len(t, first, 1)
	assert.Equal(t, 25, first[0].NumRecords)

	second := run()
	require.Len(t, second, 1)
	assert.Equal(t, first[0].NumRecords, second[0].NumRecords)
	assert.Equal(t, first[0].AvgValue, second[0].AvgValue)
}

// Readings landing in hours the window does not fully cover must not
// produce buckets outside the delete range.
func TestCalculateHourlyWriteBounds(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db, zap.NewNop().Sugar())
	ctx := context.Background()

	h13 := time.Date(2023, 6, 5, 13, 0, 0, 0, time.UTC)
	h14 := h13.Add(time.Hour)

	// a daily-cadence reading at exactly the window end truncates to the
	// bucket the next window owns
	require.NoError(t, db.Create(&database.Reading{
		StationID:   1,
		VariableID:  1,
		Timestamp:   h14,
		Measured:    5.0,
		QualityFlag: database.FlagGood,
		IsDaily:     true,
	}).Error)

	require.NoError(t, engine.CalculateHourly(ctx, h13, h14, []int{1}))
	buckets := hourlyRows(t, db)
	assert.NotContains(t, buckets, h14)
	assert.Empty(t, buckets)
}
