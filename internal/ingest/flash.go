package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/surfacemet/surfaced/internal/acquisition/lightning"
	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FlashDecoder ingests spooled lightning feed frames. A spool file holds
// one or more fixed-size frames; each becomes a stored strike with its
// decoded coordinates. The spool write time stands in for the strike time,
// since frames are spooled as they arrive.
type FlashDecoder struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewFlashDecoder(db *gorm.DB, logger *zap.SugaredLogger) *FlashDecoder {
	return &FlashDecoder{db: db, logger: logger}
}

func (d *FlashDecoder) Decode(ctx context.Context, path string, stationID int, utcOffsetMinutes int, overrideOnConflict bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("opening flash spool file: %w", err)
	}

	frames, err := splitFrames(data)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading flash spool file: %w", err)
	}
	receivedAt := info.ModTime().UTC()

	events := make([]database.FlashEvent, 0, len(frames))
	for _, frame := range frames {
		lat, lon := lightning.DecodeCoordinates(frame)
		events = append(events, database.FlashEvent{
			Timestamp: receivedAt,
			Latitude:  lat,
			Longitude: lon,
			Frame:     frame,
			CreatedAt: time.Now().UTC(),
		})
	}
	if len(events) == 0 {
		return nil
	}

	if err := d.db.WithContext(ctx).Create(&events).Error; err != nil {
		return fmt.Errorf("storing flash events: %w", err)
	}
	d.logger.Debugw("flash frames stored", "path", path, "frames", len(events))
	return nil
}

// splitFrames cuts a spool file into fixed-size frames, rejecting
// truncated files
func splitFrames(data []byte) ([][]byte, error) {
	if len(data) == 0 || len(data)%lightning.FrameSize != 0 {
		return nil, fmt.Errorf("flash spool file length %d is not a multiple of %d", len(data), lightning.FrameSize)
	}
	frames := make([][]byte, 0, len(data)/lightning.FrameSize)
	for off := 0; off < len(data); off += lightning.FrameSize {
		frames = append(frames, data[off:off+lightning.FrameSize])
	}
	return frames, nil
}
