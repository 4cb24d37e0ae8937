// Package dcp schedules message retrieval from data collection platforms
// through the LRGS client subprocess. Each platform transmits on a fixed
// daily schedule; a device becomes eligible once its transmission window
// has passed and no retrieval has run since.
package dcp

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"github.com/surfacemet/surfaced/internal/ingest"
	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// minWindowHours is the smallest query window sent to the LRGS server
	minWindowHours = 3

	defaultMaxWindowHours = 24
	defaultCommandTimeout = 5 * time.Minute
)

// Scheduler dispatches eligible DCP devices to the retrieval subprocess
type Scheduler struct {
	db       *gorm.DB
	cfg      *config.LRGSData
	spoolDir string
	logger   *zap.SugaredLogger

	// runCommand is swappable for tests
	runCommand func(ctx context.Context) ([]byte, error)
}

func NewScheduler(db *gorm.DB, cfg *config.LRGSData, spoolDir string, logger *zap.SugaredLogger) *Scheduler {
	s := &Scheduler{
		db:       db,
		cfg:      cfg,
		spoolDir: spoolDir,
		logger:   logger,
	}
	s.runCommand = s.execLRGS
	return s
}

// NextExecution returns the moment the device's daily transmission window
// closes. A device with no prior retrieval is due immediately.
func NextExecution(d *database.DCPDevice, now time.Time) time.Time {
	if d.LastExecution == nil {
		return now
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.
		Add(time.Duration(d.FirstTransmissionSeconds) * time.Second).
		Add(time.Duration(d.TransmissionWindowSeconds) * time.Second)
}

// Eligible reports whether the device is due for retrieval at now
func Eligible(d *database.DCPDevice, now time.Time) bool {
	next := NextExecution(d, now)
	if next.After(now) {
		return false
	}
	return d.LastExecution == nil || d.LastExecution.Before(next)
}

// QueryWindowHours computes the LRGS query span: the hours elapsed since
// the last retrieval, clamped to [minWindowHours, maxHours]. No prior
// retrieval means the minimum window.
func QueryWindowHours(lastExecution *time.Time, now time.Time, maxHours int) int {
	if maxHours <= 0 {
		maxHours = defaultMaxWindowHours
	}
	if lastExecution == nil {
		return minWindowHours
	}
	hours := int(now.Sub(*lastExecution).Hours())
	if hours < minWindowHours {
		hours = minWindowHours
	}
	if hours > maxHours {
		hours = maxHours
	}
	return hours
}

// CriteriaFileContent renders the LRGS search criteria for one device
func CriteriaFileContent(dcpAddress string, firstChannel *int, windowHours int) string {
	content := fmt.Sprintf("DRS_SINCE: now - %d hour\nDRS_UNTIL: now\nDCP_ADDRESS: %s\n", windowHours, dcpAddress)
	if firstChannel != nil {
		content += fmt.Sprintf("CHANNEL: |%d\n", *firstChannel)
	}
	return content
}

// RunTick scans all devices, claims the eligible ones, and retrieves each
// in turn. Claiming sets LastExecution before dispatch so a concurrent
// tick cannot pick the same device up again.
func (s *Scheduler) RunTick(ctx context.Context) error {
	var devices []database.DCPDevice
	if err := s.db.WithContext(ctx).Find(&devices).Error; err != nil {
		return fmt.Errorf("loading DCP devices: %w", err)
	}

	now := time.Now().UTC()
	type claimed struct {
		device        database.DCPDevice
		lastExecution *time.Time
	}
	var toProcess []claimed

	for i := range devices {
		d := devices[i]
		if !Eligible(&d, now) {
			continue
		}
		prior := d.LastExecution
		err := s.db.WithContext(ctx).Model(&database.DCPDevice{}).
			Where("id = ?", d.ID).
			Update("last_execution", now).Error
		if err != nil {
			s.logger.Errorw("failed to claim DCP device", "address", d.DCPAddress, "error", err)
			continue
		}
		toProcess = append(toProcess, claimed{device: d, lastExecution: prior})
	}

	for _, c := range toProcess {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.retrieve(ctx, &c.device, c.lastExecution); err != nil {
			s.logger.Errorw("DCP retrieval failed", "address", c.device.DCPAddress, "error", err)
		}
	}
	return nil
}

// retrieve runs one LRGS query for one device and enqueues the captured
// output for decoding. The device must map to exactly one station; anything
// else is a configuration error caught before the subprocess is spawned.
func (s *Scheduler) retrieve(ctx context.Context, device *database.DCPDevice, lastExecution *time.Time) error {
	var mappings []database.DCPDeviceStation
	err := s.db.WithContext(ctx).
		Where("dcp_device_id = ?", device.ID).
		Find(&mappings).Error
	if err != nil {
		return fmt.Errorf("loading station mapping for %s: %w", device.DCPAddress, err)
	}
	switch len(mappings) {
	case 0:
		return fmt.Errorf("DCP device %s is not related to any station", device.DCPAddress)
	case 1:
	default:
		return fmt.Errorf("DCP device %s is related to more than one station", device.DCPAddress)
	}
	mapping := mappings[0]

	decoderName := mapping.DecoderName
	if decoderName == "" {
		decoderName = device.DecoderName
	}

	window := QueryWindowHours(lastExecution, time.Now().UTC(), s.cfg.MaxWindowHours)
	criteria := CriteriaFileContent(device.DCPAddress, device.FirstChannel, window)
	if err := os.WriteFile(s.cfg.CriteriaFilePath, []byte(criteria), 0o644); err != nil {
		return fmt.Errorf("writing LRGS criteria file: %w", err)
	}

	s.logger.Infow("retrieving DCP messages", "address", device.DCPAddress, "window_hours", window, "decoder", decoderName)

	output, err := s.runCommand(ctx)
	if err != nil {
		return fmt.Errorf("LRGS retrieval for %s: %w", device.DCPAddress, err)
	}

	return s.spoolAndEnqueue(ctx, device, mapping.StationID, decoderName, output)
}

func (s *Scheduler) execLRGS(ctx context.Context) ([]byte, error) {
	timeout := defaultCommandTimeout
	if s.cfg.CommandTimeout != "" {
		if parsed, err := time.ParseDuration(s.cfg.CommandTimeout); err == nil {
			timeout = parsed
		}
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, s.cfg.ExecutablePath,
		"-h", s.cfg.Hostname,
		"-p", s.cfg.Port,
		"-u", s.cfg.Username,
		"-P", s.cfg.Password,
		"-f", s.cfg.CriteriaFilePath,
	)
	return cmd.Output()
}

// spoolAndEnqueue writes the retrieved payload under the spool tree and
// records a pending ingestion job for it
func (s *Scheduler) spoolAndEnqueue(ctx context.Context, device *database.DCPDevice, stationID int, decoderName string, payload []byte) error {
	now := time.Now().UTC()
	dir := filepath.Join(s.spoolDir, decoderName, "dcp", now.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", device.DCPAddress, now.Format("20060102T150405")))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("spooling DCP payload: %w", err)
	}

	job := &database.StationDataFile{
		StationID:   stationID,
		DecoderName: decoderName,
		Filepath:    path,
		FileHash:    fmt.Sprintf("%x", md5.Sum(payload)),
		FileSize:    int64(len(payload)),
	}
	if err := ingest.Enqueue(ctx, s.db, job); err != nil {
		return fmt.Errorf("enqueueing DCP payload: %w", err)
	}
	s.logger.Infow("DCP payload enqueued", "address", device.DCPAddress, "path", path, "bytes", len(payload))
	return nil
}
