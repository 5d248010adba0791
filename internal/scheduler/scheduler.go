package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/radar"
)

// Jobs is the work the scheduler drives.
type Jobs interface {
	IngestLatest(ctx context.Context) (radar.IngestResult, error)
	SweepExpired(ctx context.Context) radar.SweepReport
}

// Scheduler periodically ingests the newest snapshot and sweeps expired ones.
type Scheduler struct {
	scheduler      *gocron.Scheduler
	jobs           Jobs
	ingestInterval time.Duration
	sweepInterval  time.Duration
	jobTimeout     time.Duration
	log            *zap.SugaredLogger
}

// New creates a new Scheduler. A job still running when its next tick fires
// is not started twice.
func New(jobs Jobs, ingestInterval, sweepInterval, jobTimeout time.Duration, log *zap.SugaredLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &Scheduler{
		scheduler:      s,
		jobs:           jobs,
		ingestInterval: ingestInterval,
		sweepInterval:  sweepInterval,
		jobTimeout:     jobTimeout,
		log:            log,
	}
}

// Start schedules both jobs and starts the underlying scheduler. Each job
// runs once immediately.
func (s *Scheduler) Start() error {
	if s.ingestInterval > 0 {
		if _, err := s.scheduler.Every(s.ingestInterval).Tag("ingest").Do(s.runIngest); err != nil {
			return err
		}
	} else {
		s.log.Infow("scheduler: ingest interval not set; ingestion disabled")
	}

	if s.sweepInterval > 0 {
		if _, err := s.scheduler.Every(s.sweepInterval).Tag("sweep").Do(s.runSweep); err != nil {
			return err
		}
	} else {
		s.log.Infow("scheduler: sweep interval not set; retention disabled")
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runIngest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	s.log.Debugw("scheduler: running ingest job")
	if _, err := s.jobs.IngestLatest(ctx); err != nil {
		s.log.Warnw("scheduler: ingest job failed", "error", err)
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	s.log.Debugw("scheduler: running sweep job")
	report := s.jobs.SweepExpired(ctx)
	if n := len(report.Evicted()); n > 0 {
		s.log.Infow("scheduler: sweep evicted artifacts", "count", n)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
