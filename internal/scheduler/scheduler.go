// Package scheduler runs a pool of workers that claim queued jobs in
// priority order and drive them through the pipeline.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/store"
)

// Processor takes one claimed job to a terminal state.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

type Config struct {
	// Workers is the number of jobs processed concurrently.
	Workers int
	// PollInterval is how long an idle worker sleeps before checking the
	// queue again.
	PollInterval time.Duration
}

// Scheduler claims jobs atomically so multiple workers, and multiple
// scheduler processes sharing one database, never run the same job twice.
type Scheduler struct {
	store *store.Store
	proc  Processor
	cfg   Config
	log   *logrus.Entry
}

func New(st *store.Store, proc Processor, cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Scheduler{
		store: st,
		proc:  proc,
		cfg:   cfg,
		log:   logger.New().WithField("component", "scheduler"),
	}
}

// Run requeues jobs orphaned by a previous crash, then blocks dispatching
// work until ctx is cancelled. A job interrupted by shutdown is requeued on
// the next start and resumes from its last completed stage.
func (s *Scheduler) Run(ctx context.Context) error {
	reset, err := s.store.ResetStuckJobs(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		s.log.WithField("count", reset).Warn("requeued jobs left running by a previous worker")
	}

	s.log.WithFields(logrus.Fields{
		"workers":       s.cfg.Workers,
		"poll_interval": s.cfg.PollInterval,
	}).Info("scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	log := s.log.WithField("worker", id)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := s.store.ClaimNextJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("failed to claim next job")
		}
		if job != nil {
			log.WithField("job_id", job.ID).Info("claimed job")
			if err := s.proc.Process(ctx, job.ID); err != nil {
				// The job is already marked FAILED; nothing to do but
				// report and move on.
				log.WithField("job_id", job.ID).WithError(err).Error("job processing failed")
			}
			// Drain the queue before sleeping again.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
