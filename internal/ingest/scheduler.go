package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batchLimit caps the number of files claimed per scheduler pass
const batchLimit = 60

// observationLimit bounds the diagnostic text stored on a job row
const observationLimit = 1024

// Scheduler drains the station data file queue: it claims a batch of
// pending jobs, deduplicates them by content hash, and dispatches each to
// its decoder. Competing scheduler instances are safe against each other
// through row-level claim locking.
type Scheduler struct {
	db       *gorm.DB
	registry *Registry
	logger   *zap.SugaredLogger
}

func NewScheduler(db *gorm.DB, registry *Registry, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// RunBatch claims and processes up to batchLimit files. Every claimed file
// reaches a terminal status for this attempt: DONE, SKIPPED, or ERROR. A
// failed file is retried only when something external reprograms it.
func (s *Scheduler) RunBatch(ctx context.Context) error {
	files, reprogrammed, err := s.claimBatch(ctx)
	if err != nil {
		return fmt.Errorf("claiming file batch: %w", err)
	}
	if len(files) == 0 {
		return nil
	}
	s.logger.Infow("claimed ingestion batch", "files", len(files))

	// hashes already completed within this batch, so a duplicate later in
	// the same claim is caught even before its sibling row leaves IN_PROGRESS
	doneHashes := make(map[string]bool)

	for i := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.process(ctx, &files[i], reprogrammed[files[i].ID], doneHashes)
	}
	return nil
}

// claimBatch selects the oldest pending or reprogrammed jobs with
// FOR UPDATE SKIP LOCKED and flips them to IN_PROGRESS before the
// transaction releases, so concurrent schedulers never double-process a
// row. It reports which claimed jobs arrived as REPROGRAM, since those
// bypass the duplicate check.
func (s *Scheduler) claimBatch(ctx context.Context) ([]database.StationDataFile, map[int]bool, error) {
	var files []database.StationDataFile
	reprogrammed := make(map[int]bool)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []int16{database.StatusPending, database.StatusReprogram}).
			Order("created_at, id").
			Limit(batchLimit).
			Find(&files).Error
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return nil
		}

		ids := make([]int, 0, len(files))
		for _, f := range files {
			ids = append(ids, f.ID)
			if f.Status == database.StatusReprogram {
				reprogrammed[f.ID] = true
			}
		}
		return tx.Model(&database.StationDataFile{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     database.StatusInProgress,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return files, reprogrammed, nil
}

// process drives one file to a terminal status. Errors are recorded on the
// row, never returned: one bad file must not stall the batch.
func (s *Scheduler) process(ctx context.Context, file *database.StationDataFile, forceReprocess bool, doneHashes map[string]bool) {
	if !forceReprocess && file.FileHash != "" {
		dup, err := s.isDuplicate(ctx, file)
		if err != nil {
			s.finish(ctx, file, database.StatusError, fmt.Sprintf("duplicate check failed: %v", err))
			return
		}
		if dup || doneHashes[file.FileHash] {
			s.logger.Infow("skipping duplicate file", "id", file.ID, "path", file.Filepath, "hash", file.FileHash)
			s.finish(ctx, file, database.StatusSkipped, "file skipped: identical content already ingested")
			return
		}
	}

	decoder, err := s.registry.Resolve(file.DecoderName)
	if err != nil {
		s.finish(ctx, file, database.StatusError, err.Error())
		return
	}

	if err := decoder.Decode(ctx, file.Filepath, file.StationID, file.UTCOffsetMinutes, file.OverrideOnConflict); err != nil {
		s.logger.Errorw("file ingestion failed", "id", file.ID, "path", file.Filepath, "error", err)
		s.finish(ctx, file, database.StatusError, err.Error())
		return
	}

	doneHashes[file.FileHash] = true
	s.finish(ctx, file, database.StatusDone, "")
}

// isDuplicate reports whether another job row carries the same content
// hash and did not end in ERROR or SKIPPED. Rows currently IN_PROGRESS are
// not counted here; batch-internal duplicates are tracked separately once
// they complete.
func (s *Scheduler) isDuplicate(ctx context.Context, file *database.StationDataFile) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.StationDataFile{}).
		Where("file_hash = ? AND id <> ?", file.FileHash, file.ID).
		Where("status NOT IN ?", []int16{database.StatusError, database.StatusSkipped, database.StatusInProgress}).
		Count(&count).Error
	return count > 0, err
}

func (s *Scheduler) finish(ctx context.Context, file *database.StationDataFile, status int16, observation string) {
	err := s.db.WithContext(ctx).Model(file).
		Updates(map[string]interface{}{
			"status":      status,
			"observation": TruncateObservation(observation),
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		s.logger.Errorw("failed to record ingestion outcome", "id", file.ID, "status", status, "error", err)
	}
}

// TruncateObservation bounds diagnostic text to the column limit
func TruncateObservation(s string) string {
	if len(s) <= observationLimit {
		return s
	}
	return s[:observationLimit]
}
