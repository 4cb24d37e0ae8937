package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// last24hAcceptedCond additionally admits rows with a consisted value
// regardless of flags: a correction is always current data.
const last24hAcceptedCond = "(consisted IS NOT NULL OR quality_flag IN (1,4))"

// CalculateLast24h fully recomputes the rolling 24-hour summary covering
// (now-24h, now] for all stations, one row per (station, variable) carrying
// the aggregate and the most recent accepted value. The table is cleared
// and rebuilt inside one transaction on every run.
func (e *Engine) CalculateLast24h(ctx context.Context) error {
	startedAt := time.Now()
	now := time.Now().UTC()
	windowStart := now.Add(-24 * time.Hour)

	e.logger.Infow("last24h summary started", "window_start", windowStart)

	var readings []database.Reading
	err := e.db.WithContext(ctx).
		Where("datetime > ? AND datetime <= ?", windowStart, now).
		Where(last24hAcceptedCond).
		Where("measured != ?", database.MissingValue).
		Where("is_daily = false").
		Order("station_id, variable_id, datetime").
		Find(&readings).Error
	if err != nil {
		return fmt.Errorf("error fetching raw readings: %w", err)
	}

	type pairState struct {
		values []float64
		latest float64
	}
	pairs := make(map[pairKey]*pairState)
	for i := range readings {
		r := &readings[i]
		if r.Value() == database.MissingValue {
			continue
		}
		key := pairKey{StationID: r.StationID, VariableID: r.VariableID}
		state, ok := pairs[key]
		if !ok {
			state = &pairState{}
			pairs[key] = state
		}
		state.values = append(state.values, r.Value())
		// Readings arrive ordered by time within each pair, so the last
		// one seen is the latest
		state.latest = r.Value()
	}

	rows := make([]database.Last24hSummary, 0, len(pairs))
	for key, state := range pairs {
		agg := aggregate(state.values)
		rows = append(rows, database.Last24hSummary{
			Datetime:    now,
			StationID:   key.StationID,
			VariableID:  key.VariableID,
			MinValue:    agg.Min,
			MaxValue:    agg.Max,
			AvgValue:    agg.Avg,
			SumValue:    agg.Sum,
			NumRecords:  agg.Count,
			LatestValue: state.latest,
		})
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&database.Last24hSummary{}).Error; err != nil {
			return fmt.Errorf("error clearing last24h summaries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "station_id"}, {Name: "variable_id"}},
			UpdateAll: true,
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("error inserting last24h summaries: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Infof("last24h summary finished, %d pairs in %v", len(rows), time.Since(startedAt))
	return nil
}
