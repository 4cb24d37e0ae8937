package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm"
)

// CalculateDaily recomputes daily summaries for the station-local days in
// [startDate, endDate) for the given stations (all active when nil). Dates
// are UTC midnights. Stations are processed per distinct UTC offset so each
// group's local day boundary maps to the right UTC instant.
func (e *Engine) CalculateDaily(ctx context.Context, startDate, endDate time.Time, stationIDs []int) error {
	startedAt := time.Now()

	if startDate.IsZero() || endDate.IsZero() {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		startDate = today
		endDate = today.Add(24 * time.Hour)
	}
	if startDate.After(endDate) {
		return fmt.Errorf("daily summary: start date %v is more recent than end date %v", startDate, endDate)
	}

	byOffset, err := e.stationsByOffset(ctx, stationIDs)
	if err != nil {
		return err
	}

	e.logger.Infow("daily summary started", "start", startDate, "end", endDate, "offset_groups", len(byOffset))

	for offset, ids := range byOffset {
		if err := e.calculateDailyForOffset(ctx, startDate, endDate, offset, ids); err != nil {
			return err
		}
	}

	e.logger.Infof("daily summary finished in %v", time.Since(startedAt))
	return nil
}

func (e *Engine) calculateDailyForOffset(ctx context.Context, startDate, endDate time.Time, utcOffsetMinutes int, stationIDs []int) error {
	// Local midnight for this offset group, expressed in UTC
	offsetDur := time.Duration(utcOffsetMinutes) * time.Minute
	windowStart := startDate.Add(-offsetDur)
	windowEnd := endDate.Add(-offsetDur)

	e.logger.Debugw("daily summary offset group",
		"offset_minutes", utcOffsetMinutes, "window_start", windowStart, "window_end", windowEnd, "stations", stationIDs)

	// Half-open on the left so a reading at exactly local midnight counts
	// toward the previous day, which the preceding window computed.
	readings, err := e.fetchAcceptedReadings(ctx, windowStart, windowEnd, stationIDs, true)
	if err != nil {
		return err
	}

	groups := bucketReadings(readings, func(r *database.Reading) time.Time {
		return localDay(r.Timestamp, utcOffsetMinutes, r.IsDaily)
	})

	now := time.Now().UTC()
	rows := make([]database.DailySummary, 0, len(groups))
	for key, values := range groups {
		// An is_daily reading at exactly windowEnd attributes to endDate,
		// which belongs to the next window
		if !key.Period.Before(endDate) {
			continue
		}
		agg := aggregate(values)
		rows = append(rows, database.DailySummary{
			Day:        key.Period,
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

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("station_id IN ? AND day >= ? AND day < ?", stationIDs, startDate, endDate).
			Delete(&database.DailySummary{}).Error; err != nil {
			return fmt.Errorf("error clearing daily summaries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("error inserting daily summaries: %w", err)
		}
		return nil
	})
}
