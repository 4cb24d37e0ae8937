// Package qc re-evaluates the step-change and persistence-variance tests
// over raw readings. Both tests are full re-scans: each run overwrites the
// flags it owns, and pairs without a configured threshold are reset to
// NEUTRAL so removing a rule never leaves a stale verdict behind.
package qc

import (
	"context"

	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine runs the QC evaluators against the raw reading store
type Engine struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewEngine creates a QC engine on an established database connection
func NewEngine(db *gorm.DB, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		db:     db,
		logger: logger,
	}
}

// Run executes one full QC pass. Persistence runs first: the step test
// consults the persistence flag to decide between a soft and a hard fail,
// so evaluating them in this order inside one pass keeps the two flags
// consistent with each other.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.RunPersistence(ctx); err != nil {
		return err
	}
	return e.RunStep(ctx)
}

// configuredPairs returns the station-variable configurations that carry
// the requested threshold, plus the raw SQL used to reset everything else
func (e *Engine) configuredPairs(ctx context.Context, thresholdColumn string) ([]database.StationVariable, error) {
	var pairs []database.StationVariable
	err := e.db.WithContext(ctx).
		Where(thresholdColumn + " IS NOT NULL").
		Find(&pairs).Error
	return pairs, err
}

// resetUnconfigured clears a QC flag column back to NEUTRAL for every
// reading whose (station, variable) pair has no configured threshold,
// either because no configuration row exists or because the threshold
// was removed.
func (e *Engine) resetUnconfigured(ctx context.Context, flagColumn, descColumn, thresholdColumn string) error {
	err := e.db.WithContext(ctx).Exec(`
		UPDATE raw_data AS value
		SET `+flagColumn+` = ?, `+descColumn+` = ''
		WHERE NOT EXISTS (
			SELECT 1 FROM station_variables sv
			WHERE sv.variable_id = value.variable_id AND sv.station_id = value.station_id
		)`, database.QCNeutral).Error
	if err != nil {
		return err
	}

	return e.db.WithContext(ctx).Exec(`
		UPDATE raw_data AS value
		SET `+flagColumn+` = ?, `+descColumn+` = ''
		FROM station_variables sv
		WHERE sv.variable_id = value.variable_id
		  AND sv.station_id = value.station_id
		  AND sv.`+thresholdColumn+` IS NULL`, database.QCNeutral).Error
}

// pairReadings loads every reading for one (station, variable) pair in
// time order
func (e *Engine) pairReadings(ctx context.Context, stationID, variableID int) ([]database.Reading, error) {
	var readings []database.Reading
	err := e.db.WithContext(ctx).
		Where("station_id = ? AND variable_id = ?", stationID, variableID).
		Order("datetime").
		Find(&readings).Error
	return readings, err
}
