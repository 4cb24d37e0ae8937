package ingest

import (
	"context"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gorm.io/gorm"
)

// Enqueue records an acquired file as a PENDING ingestion job. Acquisition
// clients call this after spooling a file locally; the scheduler picks the
// job up on its next pass.
func Enqueue(ctx context.Context, db *gorm.DB, job *database.StationDataFile) error {
	job.Status = database.StatusPending
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	return db.WithContext(ctx).Create(job).Error
}
