package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// acceptedCond is the SQL predicate for quality acceptance: manual review
// takes precedence over the automated quality flag when present.
const acceptedCond = "(manual_flag IN (1,4) OR (manual_flag IS NULL AND quality_flag IN (1,4)))"

// Engine runs the aggregation jobs against the raw reading store
type Engine struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewEngine creates a summary engine on an established database connection
func NewEngine(db *gorm.DB, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		db:     db,
		logger: logger,
	}
}

// activeStationIDs returns the IDs of all active stations
func (e *Engine) activeStationIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := e.db.WithContext(ctx).Model(&database.Station{}).
		Where("is_active = true").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("error listing active stations: %w", err)
	}
	return ids, nil
}

// stationsByOffset groups the given stations (or all active stations when
// nil) by their fixed UTC offset
func (e *Engine) stationsByOffset(ctx context.Context, stationIDs []int) (map[int][]int, error) {
	query := e.db.WithContext(ctx).Model(&database.Station{})
	if stationIDs == nil {
		query = query.Where("is_active = true")
	} else {
		query = query.Where("id IN ?", stationIDs)
	}

	var stations []database.Station
	if err := query.Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("error loading stations: %w", err)
	}

	byOffset := make(map[int][]int)
	for _, s := range stations {
		byOffset[s.UTCOffsetMinutes] = append(byOffset[s.UTCOffsetMinutes], s.ID)
	}
	return byOffset, nil
}

// fetchAcceptedReadings loads quality-accepted readings for the stations in
// the half-open-by-parameter window, ordered for downstream single-pass use
func (e *Engine) fetchAcceptedReadings(ctx context.Context, start, end time.Time, stationIDs []int, startExclusive bool) ([]database.Reading, error) {
	startOp := ">="
	if startExclusive {
		startOp = ">"
	}

	var readings []database.Reading
	err := e.db.WithContext(ctx).
		Where(fmt.Sprintf("datetime %s ? AND datetime <= ?", startOp), start, end).
		Where("station_id IN ?", stationIDs).
		Where(acceptedCond).
		Order("station_id, variable_id, datetime").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching raw readings: %w", err)
	}
	return readings, nil
}
