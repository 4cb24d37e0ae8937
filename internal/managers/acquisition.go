package managers

import (
	"context"
	"sync"
	"time"

	"github.com/surfacemet/surfaced/internal/acquisition/dcp"
	"github.com/surfacemet/surfaced/internal/acquisition/ftpingest"
	"github.com/surfacemet/surfaced/internal/acquisition/lightning"
	"go.uber.org/zap"
)

// AcquisitionManager runs the inbound data clients: the persistent
// lightning feed, the minute-gated FTP puller, and the DCP retrieval
// scheduler. Any of the three may be absent when unconfigured.
type AcquisitionManager struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	logger *zap.SugaredLogger

	lightningClient *lightning.Client
	ftpPuller       *ftpingest.Puller
	dcpScheduler    *dcp.Scheduler
	dcpInterval     time.Duration
}

func NewAcquisitionManager(ctx context.Context, wg *sync.WaitGroup, logger *zap.SugaredLogger) *AcquisitionManager {
	return &AcquisitionManager{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
	}
}

func (m *AcquisitionManager) SetLightningClient(c *lightning.Client) { m.lightningClient = c }
func (m *AcquisitionManager) SetFTPPuller(p *ftpingest.Puller)       { m.ftpPuller = p }

func (m *AcquisitionManager) SetDCPScheduler(s *dcp.Scheduler, interval time.Duration) {
	m.dcpScheduler = s
	m.dcpInterval = interval
}

// Start launches the configured acquisition workers
func (m *AcquisitionManager) Start() {
	if m.lightningClient != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.lightningClient.Run(m.ctx)
		}()
	}

	if m.ftpPuller != nil {
		m.wg.Add(1)
		go m.ftpLoop()
	}

	if m.dcpScheduler != nil {
		m.wg.Add(1)
		go m.dcpLoop()
	}
}

// ftpLoop ticks every minute, the granularity of the profile cron gates.
// Historical and current profiles run as separate passes so a backfill
// cannot delay live data.
func (m *AcquisitionManager) ftpLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("stopping FTP ingestion loop")
			return
		case <-ticker.C:
			if err := m.ftpPuller.RunTick(m.ctx, false); err != nil && m.ctx.Err() == nil {
				m.logger.Errorw("FTP ingestion tick failed", "error", err)
			}
			if err := m.ftpPuller.RunTick(m.ctx, true); err != nil && m.ctx.Err() == nil {
				m.logger.Errorw("historical FTP ingestion tick failed", "error", err)
			}
		}
	}
}

func (m *AcquisitionManager) dcpLoop() {
	defer m.wg.Done()

	interval := m.dcpInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("stopping DCP scheduler loop")
			return
		case <-ticker.C:
			if err := m.dcpScheduler.RunTick(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Errorw("DCP scheduler tick failed", "error", err)
			}
		}
	}
}
