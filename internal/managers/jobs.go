// Package managers wires the long-running workers: the periodic database
// jobs and the acquisition clients.
package managers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic unit of work. Jobs share nothing in memory; all
// coordination happens through the database.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// JobManager drives each registered job on its own ticker
type JobManager struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	logger *zap.SugaredLogger
	jobs   []Job
}

func NewJobManager(ctx context.Context, wg *sync.WaitGroup, logger *zap.SugaredLogger) *JobManager {
	return &JobManager{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
	}
}

// Register adds a job to run every interval
func (m *JobManager) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	m.jobs = append(m.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Start launches one goroutine per job. Each job fires once immediately,
// then on its ticker; a failing run logs and waits for the next tick.
func (m *JobManager) Start() {
	for _, job := range m.jobs {
		m.wg.Add(1)
		go m.runLoop(job)
	}
	m.logger.Infof("started %d periodic jobs", len(m.jobs))
}

func (m *JobManager) runLoop(job Job) {
	defer m.wg.Done()

	m.logger.Infow("starting periodic job", "job", job.Name, "interval", job.Interval)
	m.runOnce(job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Infow("stopping periodic job", "job", job.Name)
			return
		case <-ticker.C:
			m.runOnce(job)
		}
	}
}

func (m *JobManager) runOnce(job Job) {
	started := time.Now()
	if err := job.Run(m.ctx); err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.logger.Errorw("periodic job failed", "job", job.Name, "error", err, "elapsed", time.Since(started))
		return
	}
	m.logger.Debugw("periodic job complete", "job", job.Name, "elapsed", time.Since(started))
}

// ParseInterval reads a configured duration string, falling back to def
// when unset or malformed
func ParseInterval(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
