package ingest

import (
	"context"
	"sync"
	"time"

	"formintake/config"
	"formintake/core/store"
	"formintake/core/utils"

	"github.com/robfig/cron/v3"
)

// SummaryJob periodically logs processing outcome counts.
type SummaryJob struct {
	cfg     config.SummaryConfig
	logs    store.ProcessingLogStore
	metrics *Metrics
	logger  *utils.Logger
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	running bool
	last    time.Time
}

func NewSummaryJob(cfg config.SummaryConfig, logs store.ProcessingLogStore, metrics *Metrics, logger *utils.Logger) *SummaryJob {
	return &SummaryJob{cfg: cfg, logs: logs, metrics: metrics, logger: logger, now: utils.NowUTC}
}

func (j *SummaryJob) StartWithContext(ctx context.Context) {
	if j == nil || j.logs == nil || !j.cfg.Enabled {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	schedule := j.cfg.Schedule
	if schedule == "" {
		schedule = "@every 15m"
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { _ = j.RunOnce(j.runContext()) }); err != nil {
		j.logger.Errorf("summary schedule %q rejected: %v", schedule, err)
		return
	}
	j.ctx = ctx
	j.last = j.now()
	j.cron = c
	j.running = true
	c.Start()
	j.logger.Printf("processing summary scheduled %s", schedule)
}

func (j *SummaryJob) StopWithContext(ctx context.Context) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	c := j.cron
	wasRunning := j.running
	j.cron = nil
	j.running = false
	j.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *SummaryJob) runContext() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ctx == nil {
		return context.Background()
	}
	return j.ctx
}

// RunOnce logs the counts recorded since the previous run.
func (j *SummaryJob) RunOnce(ctx context.Context) error {
	if j == nil || j.logs == nil {
		return nil
	}
	j.mu.Lock()
	since := j.last
	now := j.now()
	j.mu.Unlock()
	counts, err := j.logs.CountByStatusBetween(ctx, since, now)
	if err != nil {
		j.logger.Errorf("processing summary failed: %v", err)
		return err
	}
	j.mu.Lock()
	j.last = now
	j.mu.Unlock()
	processed := counts[store.ProcessingStatusProcessed]
	failed := counts[store.ProcessingStatusError]
	j.metrics.setWindow(store.ProcessingStatusProcessed, processed)
	j.metrics.setWindow(store.ProcessingStatusError, failed)
	j.logger.Printf("processing summary since=%s processed=%d error=%d", since.Format(time.RFC3339), processed, failed)
	return nil
}
