// Package store persists jobs and stage results. All mutations of a job's
// row happen in single-statement or transactional writes, which is the
// single-writer-per-row discipline the worker pool relies on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"transcript-pipeline/internal/types"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// Store is a gorm-backed repository for jobs and stage results.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&types.Job{}, &types.StageResult{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	var job types.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	Status    types.JobStatus
	ProfileID string
	Limit     int
}

// ListJobs returns jobs newest-first, optionally filtered.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]types.Job, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ProfileID != "" {
		q = q.Where("profile_id = ?", filter.ProfileID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var jobs []types.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// SaveJob writes back every field of a job the caller owns.
func (s *Store) SaveJob(ctx context.Context, job *types.Job) error {
	// The cancel flag is owned by RequestCancel; a worker saving its copy
	// of the job must not overwrite a flag set while a stage was running.
	return s.db.WithContext(ctx).Omit("cancel_requested").Save(job).Error
}

// ClaimNextJob atomically selects the most urgent queued job (lowest
// priority number, then earliest creation) and marks it RUNNING. Returns
// nil, nil when the queue is empty. The conditional update makes claiming
// safe across concurrent workers.
func (s *Store) ClaimNextJob(ctx context.Context) (*types.Job, error) {
	var claimed *types.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job types.Job
		err := tx.Where("status = ?", types.JobStatusQueued).
			Order("priority ASC, created_at ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Model(&types.Job{}).
			Where("id = ? AND status = ?", job.ID, types.JobStatusQueued).
			Update("status", types.JobStatusRunning)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker claimed it between select and update.
			return nil
		}
		job.Status = types.JobStatusRunning
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RequestCancel cancels a queued job immediately; for a running job it sets
// the cancel flag the orchestrator checks between stages. Terminal jobs are
// left alone.
func (s *Store) RequestCancel(ctx context.Context, jobID string) (*types.Job, error) {
	var out *types.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job types.Job
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}

		switch job.Status {
		case types.JobStatusQueued:
			now := time.Now()
			job.Status = types.JobStatusCancelled
			job.CompletedAt = &now
			job.CancelRequested = true
		case types.JobStatusRunning:
			job.CancelRequested = true
		default:
			// Terminal state, nothing to cancel.
		}
		if err := tx.Save(&job).Error; err != nil {
			return err
		}
		out = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetStuckJobs requeues jobs left RUNNING by a crashed worker. Stage
// results are kept so the rerun resumes instead of starting over.
func (s *Store) ResetStuckJobs(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&types.Job{}).
		Where("status = ?", types.JobStatusRunning).
		Update("status", types.JobStatusQueued)
	return res.RowsAffected, res.Error
}

// GetStageResult fetches the result for one (job, stage) pair, or nil.
func (s *Store) GetStageResult(ctx context.Context, jobID, stageID string) (*types.StageResult, error) {
	var sr types.StageResult
	err := s.db.WithContext(ctx).
		First(&sr, "job_id = ? AND stage_id = ?", jobID, stageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// ListStageResults returns all stage results for a job in creation order.
func (s *Store) ListStageResults(ctx context.Context, jobID string) ([]types.StageResult, error) {
	var results []types.StageResult
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpsertStageResult creates or replaces the single result row for a (job,
// stage) pair.
func (s *Store) UpsertStageResult(ctx context.Context, sr *types.StageResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.StageResult
		err := tx.First(&existing, "job_id = ? AND stage_id = ?", sr.JobID, sr.StageID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(sr).Error
		case err != nil:
			return err
		}
		sr.ID = existing.ID
		// The start timestamp is written once at the RUNNING transition;
		// later status updates must not erase it.
		if sr.StartedAt == nil {
			sr.StartedAt = existing.StartedAt
		}
		return tx.Save(sr).Error
	})
}

// CompletedJobs lists COMPLETE jobs for cost reporting, oldest first.
func (s *Store) CompletedJobs(ctx context.Context) ([]types.Job, error) {
	var jobs []types.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", types.JobStatusComplete).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
