// Package ftpingest pulls station data files from remote FTP servers on
// per-profile cron schedules and enqueues them for decoding. Historical
// and current-data profiles run as separate jobs so a large backfill never
// starves the live feed.
package ftpingest

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/surfacemet/surfaced/internal/database"
	"github.com/surfacemet/surfaced/internal/ingest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dialTimeout = 30 * time.Second

// Conn is the slice of the FTP client the puller needs. jlaffaye/ftp's
// ServerConn satisfies it; tests substitute a fake.
type Conn interface {
	CurrentDir() (string, error)
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	Retr(path string) (*ftp.Response, error)
	Delete(path string) error
	Quit() error
}

// Puller drains the due ingestion profiles each tick
type Puller struct {
	db       *gorm.DB
	spoolDir string
	logger   *zap.SugaredLogger

	// connect is swappable for tests
	connect func(server *database.FTPServer) (Conn, error)
}

func NewPuller(db *gorm.DB, spoolDir string, logger *zap.SugaredLogger) *Puller {
	return &Puller{
		db:       db,
		spoolDir: spoolDir,
		logger:   logger,
		connect:  dialServer,
	}
}

func dialServer(server *database.FTPServer) (Conn, error) {
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(dialTimeout))
	if err != nil {
		return nil, err
	}
	if err := conn.Login(server.Username, server.Password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

// RunTick fetches files for every active profile whose cron schedule fires
// in the current minute. A server login failure abandons that server's
// profiles for this tick; everything else is contained per profile or per
// file.
func (p *Puller) RunTick(ctx context.Context, historical bool) error {
	now := time.Now()

	var profiles []database.StationFileIngestion
	err := p.db.WithContext(ctx).
		Preload("FTPServer").
		Preload("Station").
		Where("is_active = ? AND is_historical_data = ?", true, historical).
		Find(&profiles).Error
	if err != nil {
		return fmt.Errorf("loading ingestion profiles: %w", err)
	}

	due := make(map[int][]database.StationFileIngestion)
	for _, profile := range profiles {
		match, err := cronMatches(profile.CronSchedule, now)
		if err != nil {
			p.logger.Errorw("invalid cron schedule on ingestion profile", "profile", profile.ID, "schedule", profile.CronSchedule, "error", err)
			continue
		}
		if match {
			due[profile.FTPServerID] = append(due[profile.FTPServerID], profile)
		}
	}

	for _, group := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		server := group[0].FTPServer
		if server.IsActiveMode {
			p.logger.Warnw("active-mode FTP requested; transferring in passive mode", "host", server.Host)
		}

		conn, err := p.connect(&server)
		if err != nil {
			p.logger.Errorw("FTP login failed, skipping server this cycle", "host", server.Host, "error", err)
			continue
		}
		p.pullServer(ctx, conn, group, now)
		conn.Quit()
	}
	return nil
}

func (p *Puller) pullServer(ctx context.Context, conn Conn, profiles []database.StationFileIngestion, now time.Time) {
	home, err := conn.CurrentDir()
	if err != nil {
		p.logger.Errorw("cannot determine FTP home directory", "error", err)
		return
	}

	for i := range profiles {
		if ctx.Err() != nil {
			return
		}
		profile := &profiles[i]

		if err := conn.ChangeDir(profile.RemoteFolder); err != nil {
			p.logger.Errorw("cannot access remote folder", "folder", profile.RemoteFolder, "error", err)
			continue
		}

		names, err := conn.NameList(profile.FilePattern)
		if err != nil {
			p.logger.Errorw("listing remote files failed", "pattern", profile.FilePattern, "error", err)
			conn.ChangeDir(home)
			continue
		}

		for _, name := range names {
			if err := p.fetchFile(ctx, conn, profile, name, now); err != nil {
				p.logger.Errorw("fetching remote file failed", "file", name, "error", err)
			}
		}
		conn.ChangeDir(home)
	}
}

// fetchFile downloads one remote file into the spool tree, hashing the
// content in flight, optionally deletes the remote copy, and enqueues an
// ingestion job for the local file.
func (p *Puller) fetchFile(ctx context.Context, conn Conn, profile *database.StationFileIngestion, name string, now time.Time) error {
	localPath := SpoolPath(p.spoolDir, profile.DecoderName, profile.Station.Code, name, now)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
	}

	resp, err := conn.Retr(name)
	if err != nil {
		return fmt.Errorf("RETR %s: %w", name, err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		resp.Close()
		return fmt.Errorf("creating local file: %w", err)
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(out, hash), resp)
	resp.Close()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("downloading %s: %w", name, err)
	}

	if profile.DeleteFromServer {
		if err := conn.Delete(name); err != nil {
			// the file is already spooled; dedup catches the re-download
			p.logger.Errorw("cannot delete remote file", "file", name, "error", err)
		}
	}

	job := &database.StationDataFile{
		StationID:          profile.StationID,
		DecoderName:        profile.DecoderName,
		UTCOffsetMinutes:   profile.UTCOffsetMinutes,
		Filepath:           localPath,
		FileHash:           fmt.Sprintf("%x", hash.Sum(nil)),
		FileSize:           size,
		IsHistorical:       profile.IsHistorical,
		OverrideOnConflict: profile.OverrideOnConflict,
	}
	if err := ingest.Enqueue(ctx, p.db, job); err != nil {
		return fmt.Errorf("enqueueing downloaded file: %w", err)
	}

	p.logger.Infow("downloaded FTP file", "path", localPath, "bytes", size)
	return nil
}

// SpoolPath builds the local destination for a downloaded file:
// <spool>/<decoder>/<station>/YYYY/MM/DD/<stamp>_<name>
func SpoolPath(spoolDir, decoderName, stationCode, remoteName string, now time.Time) string {
	return filepath.Join(
		spoolDir,
		decoderName,
		stationCode,
		now.Format("2006/01/02"),
		fmt.Sprintf("%s_%s", now.Format("20060102150405"), remoteName),
	)
}
