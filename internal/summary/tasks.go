package summary

import (
	"context"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// backlogLimit caps how many distinct summary buckets one scheduled pass
// will recompute
const backlogLimit = 500

// ProcessHourlyBacklog claims up to backlogLimit pending hour buckets and
// recomputes each one for just the stations that requested it. A bucket's
// tasks are claimed (StartedAt set) atomically before computation so
// concurrent workers never pick up the same bucket; FinishedAt stays nil on
// failure so the bucket can be reset and retried.
func (e *Engine) ProcessHourlyBacklog(ctx context.Context) error {
	var datetimes []time.Time
	err := e.db.WithContext(ctx).Model(&database.HourlySummaryTask{}).
		Where("started_at IS NULL").
		Distinct("datetime").
		Order("datetime").
		Limit(backlogLimit).
		Pluck("datetime", &datetimes).Error
	if err != nil {
		return err
	}

	for _, dt := range datetimes {
		taskIDs, stationIDs, err := e.claimBucket(ctx, &database.HourlySummaryTask{}, "datetime", dt)
		if err != nil {
			e.logger.Errorf("error claiming hourly summary tasks for %v: %v", dt, err)
			continue
		}
		if len(taskIDs) == 0 {
			continue
		}

		if err := e.CalculateHourly(ctx, dt, dt.Add(time.Hour), stationIDs); err != nil {
			e.logger.Errorf("error calculating hourly summary for %v: %v", dt, err)
			continue
		}

		now := time.Now().UTC()
		if err := e.db.WithContext(ctx).Model(&database.HourlySummaryTask{}).
			Where("id IN ?", taskIDs).
			Update("finished_at", now).Error; err != nil {
			e.logger.Errorf("error finishing hourly summary tasks for %v: %v", dt, err)
		}
	}
	return nil
}

// ProcessDailyBacklog is the daily counterpart of ProcessHourlyBacklog
func (e *Engine) ProcessDailyBacklog(ctx context.Context) error {
	var dates []time.Time
	err := e.db.WithContext(ctx).Model(&database.DailySummaryTask{}).
		Where("started_at IS NULL").
		Distinct("date").
		Order("date").
		Limit(backlogLimit).
		Pluck("date", &dates).Error
	if err != nil {
		return err
	}

	for _, date := range dates {
		taskIDs, stationIDs, err := e.claimBucket(ctx, &database.DailySummaryTask{}, "date", date)
		if err != nil {
			e.logger.Errorf("error claiming daily summary tasks for %v: %v", date, err)
			continue
		}
		if len(taskIDs) == 0 {
			continue
		}

		if err := e.CalculateDaily(ctx, date, date.Add(24*time.Hour), stationIDs); err != nil {
			e.logger.Errorf("error calculating daily summary for %v: %v", date, err)
			continue
		}

		now := time.Now().UTC()
		if err := e.db.WithContext(ctx).Model(&database.DailySummaryTask{}).
			Where("id IN ?", taskIDs).
			Update("finished_at", now).Error; err != nil {
			e.logger.Errorf("error finishing daily summary tasks for %v: %v", date, err)
		}
	}
	return nil
}

// claimBucket flips StartedAt on every unclaimed task row for one bucket,
// returning the claimed task IDs and the distinct stations they cover.
// Row locks with SKIP LOCKED keep two workers from claiming the same rows.
func (e *Engine) claimBucket(ctx context.Context, model interface{}, column string, bucket time.Time) ([]int, []int, error) {
	var taskIDs []int
	stationSet := make(map[int]bool)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type taskRow struct {
			ID        int
			StationID int
		}
		var tasks []taskRow
		if err := tx.Model(model).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("started_at IS NULL AND "+column+" = ?", bucket).
			Select("id", "station_id").
			Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		for _, t := range tasks {
			taskIDs = append(taskIDs, t.ID)
			stationSet[t.StationID] = true
		}

		now := time.Now().UTC()
		return tx.Model(model).
			Where("id IN ?", taskIDs).
			Update("started_at", now).Error
	})
	if err != nil {
		return nil, nil, err
	}

	stationIDs := make([]int, 0, len(stationSet))
	for id := range stationSet {
		stationIDs = append(stationIDs, id)
	}
	return taskIDs, stationIDs, nil
}
