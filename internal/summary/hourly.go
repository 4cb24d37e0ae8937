package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm"
)

// DefaultHourlyLookback is the recomputation window used when a scheduled
// hourly run is not given explicit bounds
const DefaultHourlyLookback = 48 * time.Hour

// CalculateHourly recomputes the hourly summaries whose buckets lie fully
// inside [start, end] for the given stations (all active stations when
// nil). Bounds are aligned down to hour boundaries; readings are fetched
// over (start, end] so a reading at exactly `start` stays with the bucket
// the previous window owns, and only buckets the fetch fully covers —
// [start, end − 1h] — are rewritten. The write is delete-then-insert
// inside one transaction, so re-running the same window yields the same
// stored rows and adjacent windows never touch each other's buckets.
func (e *Engine) CalculateHourly(ctx context.Context, start, end time.Time, stationIDs []int) error {
	startedAt := time.Now()

	if start.IsZero() {
		start = time.Now().UTC().Add(-DefaultHourlyLookback)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start = start.Truncate(time.Hour)
	end = end.Truncate(time.Hour)
	if start.After(end) {
		return fmt.Errorf("hourly summary: start %v is more recent than end %v", start, end)
	}

	if stationIDs == nil {
		var err error
		stationIDs, err = e.activeStationIDs(ctx)
		if err != nil {
			return err
		}
	}
	if len(stationIDs) == 0 {
		return nil
	}

	e.logger.Infow("hourly summary started", "start", start, "end", end, "stations", len(stationIDs))

	readings, err := e.fetchAcceptedReadings(ctx, start, end, stationIDs, true)
	if err != nil {
		return err
	}

	groups := bucketReadings(readings, func(r *database.Reading) time.Time {
		return hourBucket(r.Timestamp, r.IsDaily)
	})

	// Buckets fully covered by the (start, end] fetch: a sub-daily
	// reading at exactly end attributes to end − 1h, and the bucket at
	// end itself would need readings beyond the window, so it stays
	// untouched.
	firstBucket := start
	lastBucket := end.Add(-time.Hour)
	if lastBucket.Before(firstBucket) {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]database.HourlySummary, 0, len(groups))
	for key, values := range groups {
		// An is_daily reading at exactly end truncates to the bucket
		// the next window owns
		if key.Period.After(lastBucket) {
			continue
		}
		agg := aggregate(values)
		rows = append(rows, database.HourlySummary{
			Datetime:   key.Period,
			StationID:  key.StationID,
			VariableID: key.VariableID,
			MinValue:   agg.Min,
			MaxValue:   agg.Max,
			AvgValue:   agg.Avg,
			SumValue:   agg.Sum,
			NumRecords: agg.Count,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("station_id IN ? AND datetime >= ? AND datetime <= ?", stationIDs, firstBucket, lastBucket).
			Delete(&database.HourlySummary{}).Error; err != nil {
			return fmt.Errorf("error clearing hourly summaries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("error inserting hourly summaries: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Infof("hourly summary finished, %d rows in %v", len(rows), time.Since(startedAt))
	return nil
}
