package qc

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gonum.org/v1/gonum/stat"
)

const persistenceWindow = 24 * time.Hour

// persistenceAction is one flag update decided by the persistence
// evaluator. When WindowSuspicious is set, every reading inside the
// trailing window ending just before Timestamp is flagged; otherwise only
// the reading at Timestamp is marked good.
type persistenceAction struct {
	Timestamp        time.Time
	Variance         float64
	WindowSuspicious bool
}

// evaluatePersistence walks readings in time order and, for each one,
// computes the variance of the accepted measurements in the 24 hours
// preceding it, the reading itself excluded. A variance above threshold
// condemns the whole trailing window, not just the newest reading; a
// variance at or below it clears only the current one. Actions must be
// applied in order, since a later window verdict overrides an earlier
// per-reading one.
func evaluatePersistence(readings []database.Reading, threshold float64) []persistenceAction {
	actions := make([]persistenceAction, 0, len(readings))
	for i := range readings {
		cur := readings[i]
		windowStart := cur.Timestamp.Add(-persistenceWindow)

		var values []float64
		for j := i - 1; j >= 0; j-- {
			prev := readings[j]
			if !prev.Timestamp.Before(cur.Timestamp) {
				continue
			}
			if prev.Timestamp.Before(windowStart) {
				break
			}
			if !prev.Accepted() || prev.Measured == database.MissingValue {
				continue
			}
			values = append(values, prev.Measured)
		}

		variance := 0.0
		if len(values) >= 2 {
			variance = stat.Variance(values, nil)
		}

		actions = append(actions, persistenceAction{
			Timestamp:        cur.Timestamp,
			Variance:         variance,
			WindowSuspicious: variance > threshold,
		})
	}
	return actions
}

// RunPersistence re-evaluates the persistence-variance test for every
// configured station-variable pair and resets the flag for everything
// without a threshold.
func (e *Engine) RunPersistence(ctx context.Context) error {
	started := time.Now()
	e.logger.Info("starting persistence QC pass")

	if err := e.resetUnconfigured(ctx, "qc_persist_quality_flag", "qc_persist_description", "test_persistence_variance"); err != nil {
		return fmt.Errorf("resetting unconfigured persistence flags: %w", err)
	}

	pairs, err := e.configuredPairs(ctx, "test_persistence_variance")
	if err != nil {
		return fmt.Errorf("loading persistence thresholds: %w", err)
	}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		threshold := *pair.TestPersistenceVariance
		readings, err := e.pairReadings(ctx, pair.StationID, pair.VariableID)
		if err != nil {
			return fmt.Errorf("loading readings for station %d variable %d: %w", pair.StationID, pair.VariableID, err)
		}

		for _, action := range evaluatePersistence(readings, threshold) {
			if action.WindowSuspicious {
				desc := fmt.Sprintf("This record belongs to a 24h series that results in a variance \"%v\" bigger than the registered value for this station and variable \"%v\".", action.Variance, threshold)
				err = e.db.WithContext(ctx).Model(&database.Reading{}).
					Where("station_id = ? AND variable_id = ? AND datetime >= ? AND datetime < ?",
						pair.StationID, pair.VariableID, action.Timestamp.Add(-persistenceWindow), action.Timestamp).
					Updates(map[string]interface{}{
						"qc_persist_quality_flag": database.QCSuspicious,
						"qc_persist_description":  desc,
					}).Error
			} else {
				desc := fmt.Sprintf("The 24h series variance \"%v\" is smaller than the registered value for this station and variable \"%v\".", action.Variance, threshold)
				err = e.db.WithContext(ctx).Model(&database.Reading{}).
					Where("station_id = ? AND variable_id = ? AND datetime = ?",
						pair.StationID, pair.VariableID, action.Timestamp).
					Updates(map[string]interface{}{
						"qc_persist_quality_flag": database.QCGood,
						"qc_persist_description":  desc,
					}).Error
			}
			if err != nil {
				return fmt.Errorf("applying persistence flag for station %d variable %d: %w", pair.StationID, pair.VariableID, err)
			}
		}
	}

	e.logger.Infow("persistence QC pass complete", "pairs", len(pairs), "elapsed", time.Since(started))
	return nil
}
