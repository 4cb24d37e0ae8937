package qc

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
)

// stepResult is the verdict for one reading under the step-change test.
// HardFail means the step exceeded the threshold while the reading was
// already under persistence suspicion, which downgrades the reading's
// overall quality flag to BAD.
type stepResult struct {
	Timestamp time.Time
	Step      float64
	Exceeded  bool
	HardFail  bool
}

// evaluateStep computes the absolute change between consecutive readings
// of one pair. The first reading has no predecessor and is treated as a
// zero step.
func evaluateStep(readings []database.Reading, threshold float64) []stepResult {
	results := make([]stepResult, 0, len(readings))
	for i := range readings {
		step := 0.0
		if i > 0 {
			step = math.Abs(readings[i].Measured - readings[i-1].Measured)
		}
		exceeded := step > threshold
		results = append(results, stepResult{
			Timestamp: readings[i].Timestamp,
			Step:      step,
			Exceeded:  exceeded,
			HardFail:  exceeded && readings[i].QCPersistFlag == database.QCSuspicious,
		})
	}
	return results
}

// RunStep re-evaluates the step-change test for every configured
// station-variable pair and resets the flag for everything without a
// threshold. It relies on the persistence pass having already run: a
// step failure on a reading whose trailing window is suspicious is
// promoted to a hard quality failure.
func (e *Engine) RunStep(ctx context.Context) error {
	started := time.Now()
	e.logger.Info("starting step QC pass")

	if err := e.resetUnconfigured(ctx, "qc_step_quality_flag", "qc_step_description", "test_step_value"); err != nil {
		return fmt.Errorf("resetting unconfigured step flags: %w", err)
	}

	pairs, err := e.configuredPairs(ctx, "test_step_value")
	if err != nil {
		return fmt.Errorf("loading step thresholds: %w", err)
	}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		threshold := *pair.TestStepValue
		readings, err := e.pairReadings(ctx, pair.StationID, pair.VariableID)
		if err != nil {
			return fmt.Errorf("loading readings for station %d variable %d: %w", pair.StationID, pair.VariableID, err)
		}

		for _, result := range evaluateStep(readings, threshold) {
			updates := map[string]interface{}{}
			if result.Exceeded {
				updates["qc_step_quality_flag"] = database.QCSuspicious
				updates["qc_step_description"] = fmt.Sprintf("The current step \"%v\" is bigger than the registered step value for this station and variable \"%v\".", result.Step, threshold)
				if result.HardFail {
					updates["quality_flag"] = database.FlagBad
				}
			} else {
				updates["qc_step_quality_flag"] = database.QCGood
				updates["qc_step_description"] = fmt.Sprintf("The current step \"%v\" is smaller than the registered step value for this station and variable \"%v\".", result.Step, threshold)
			}
			err = e.db.WithContext(ctx).Model(&database.Reading{}).
				Where("station_id = ? AND variable_id = ? AND datetime = ?",
					pair.StationID, pair.VariableID, result.Timestamp).
				Updates(updates).Error
			if err != nil {
				return fmt.Errorf("applying step flag for station %d variable %d: %w", pair.StationID, pair.VariableID, err)
			}
		}
	}

	e.logger.Infow("step QC pass complete", "pairs", len(pairs), "elapsed", time.Since(started))
	return nil
}
