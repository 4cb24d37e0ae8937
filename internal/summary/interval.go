package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm/clause"
)

// CalculateMinimumInterval recomputes the per-day record-density rows for
// every configured (station, variable) pair of the selected stations, for
// each station-local day in [startDate, endDate]. Pairs with no readings on
// a day get a zero row, so gaps are visible rather than absent. Rows are
// upserted on (day, station, variable).
//
// Unlike the aggregates, every reading counts here regardless of quality
// flags: density is about reception, not correctness.
func (e *Engine) CalculateMinimumInterval(ctx context.Context, startDate, endDate time.Time, stationIDs []int) error {
	startedAt := time.Now()

	if startDate.IsZero() || endDate.IsZero() {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		startDate = today
		endDate = today.Add(24 * time.Hour)
	}
	if startDate.After(endDate) {
		return fmt.Errorf("minimum interval: start date %v is more recent than end date %v", startDate, endDate)
	}

	byOffset, err := e.stationsByOffset(ctx, stationIDs)
	if err != nil {
		return err
	}

	e.logger.Infow("minimum interval started", "start", startDate, "end", endDate, "offset_groups", len(byOffset))

	for offset, ids := range byOffset {
		if err := e.calculateMinimumIntervalForOffset(ctx, startDate, endDate, offset, ids); err != nil {
			return err
		}
	}

	e.logger.Infof("minimum interval finished in %v", time.Since(startedAt))
	return nil
}

func (e *Engine) calculateMinimumIntervalForOffset(ctx context.Context, startDate, endDate time.Time, utcOffsetMinutes int, stationIDs []int) error {
	var pairs []database.StationVariable
	err := e.db.WithContext(ctx).
		Where("station_id IN ?", stationIDs).
		Find(&pairs).Error
	if err != nil {
		return fmt.Errorf("error loading station variables: %w", err)
	}
	if len(pairs) == 0 {
		return nil
	}

	offsetDur := time.Duration(utcOffsetMinutes) * time.Minute

	var readings []database.Reading
	err = e.db.WithContext(ctx).
		Where("datetime > ? AND datetime <= ?", startDate.Add(-offsetDur), endDate.Add(24*time.Hour-offsetDur)).
		Where("station_id IN ?", stationIDs).
		Order("station_id, variable_id, datetime").
		Find(&readings).Error
	if err != nil {
		return fmt.Errorf("error fetching raw readings: %w", err)
	}

	// Group readings by (local day, pair); the boundary-minus-one-second
	// rule attributes a reading at exactly local midnight to the prior day
	type dayPair struct {
		Day  time.Time
		Pair pairKey
	}
	grouped := make(map[dayPair][]database.Reading)
	for i := range readings {
		r := readings[i]
		key := dayPair{
			Day:  localDay(r.Timestamp, utcOffsetMinutes, false),
			Pair: pairKey{StationID: r.StationID, VariableID: r.VariableID},
		}
		grouped[key] = append(grouped[key], r)
	}

	now := time.Now().UTC()
	var rows []database.StationDataInterval
	for day := startDate; !day.After(endDate); day = day.Add(24 * time.Hour) {
		for _, pair := range pairs {
			key := dayPair{Day: day, Pair: pairKey{StationID: pair.StationID, VariableID: pair.VariableID}}
			st := intervalStats(grouped[key])
			rows = append(rows, database.StationDataInterval{
				Day:                   day,
				StationID:             pair.StationID,
				VariableID:            pair.VariableID,
				MinimumIntervalSec:    st.MinimumIntervalSec,
				RecordCount:           st.RecordCount,
				IdealRecordCount:      st.IdealRecordCount,
				RecordCountPercentage: st.RecordCountPercentage,
				CreatedAt:             now,
				UpdatedAt:             now,
			})
		}
	}

	if len(rows) == 0 {
		return nil
	}

	err = e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "datetime"}, {Name: "station_id"}, {Name: "variable_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"minimum_interval_seconds", "record_count", "ideal_record_count",
			"record_count_percentage", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("error upserting minimum interval rows: %w", err)
	}
	return nil
}
