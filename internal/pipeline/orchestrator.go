package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"transcript-pipeline/internal/align"
	"transcript-pipeline/internal/artifact"
	"transcript-pipeline/internal/events"
	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/pricing"
	"transcript-pipeline/internal/profile"
	"transcript-pipeline/internal/store"
	"transcript-pipeline/internal/transcription"
	"transcript-pipeline/internal/types"
)

// TranscribeStageID identifies the implicit first stage that derives the
// aligned speaker transcript. It is persisted like any configured stage so
// interrupted runs never transcribe twice.
const TranscribeStageID = "transcribe"

// Orchestrator drives one job through its profile's stage sequence with
// per-stage persistence and resume.
type Orchestrator struct {
	store       *store.Store
	artifacts   artifact.Store
	profiles    *profile.Store
	transcriber transcription.Transcriber
	diarizer    transcription.Diarizer
	runner      *Runner
	publisher   events.Publisher
	log         *logger.Logger
}

// NewOrchestrator wires the pipeline's collaborators together.
func NewOrchestrator(
	st *store.Store,
	artifacts artifact.Store,
	profiles *profile.Store,
	transcriber transcription.Transcriber,
	diarizer transcription.Diarizer,
	runner *Runner,
	publisher events.Publisher,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		artifacts:   artifacts,
		profiles:    profiles,
		transcriber: transcriber,
		diarizer:    diarizer,
		runner:      runner,
		publisher:   publisher,
		log:         logger.New(),
	}
}

// Process runs the job to a terminal state, resuming from the last COMPLETE
// stage when prior results exist. Re-running a COMPLETE job is a no-op.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	log := o.log.WithJob(job.ID).WithField("profile", job.ProfileID)

	if job.Status == types.JobStatusComplete || job.Status == types.JobStatusCancelled {
		log.WithField("status", job.Status).Info("job already terminal, nothing to do")
		return nil
	}

	if job.Status != types.JobStatusRunning {
		job.Status = types.JobStatusRunning
		job.Error = ""
		job.CompletedAt = nil
		if err := o.store.SaveJob(ctx, job); err != nil {
			return err
		}
	}
	o.publishJob(ctx, job, "", "", "")

	prof := o.profiles.Get(job.ProfileID)
	if prof == nil {
		return o.failJob(ctx, job, "", &Error{
			Kind: KindConfig,
			Err:  fmt.Errorf("profile not found: %s", job.ProfileID),
		})
	}

	transcriptText, totalCost, err := o.ensureTranscript(ctx, job, log)
	if err != nil {
		return o.failJob(ctx, job, TranscribeStageID, err)
	}

	previousOutput := ""
	for i := range prof.Stages {
		stage := &prof.Stages[i]

		cancelled, err := o.checkCancel(ctx, job)
		if err != nil {
			return err
		}
		if cancelled {
			log.WithField("stage", stage.Name).Info("job cancelled between stages")
			return nil
		}

		// Resume: a COMPLETE result with a live artifact is reused at its
		// recorded cost, without touching any capability.
		cached, err := o.cachedOutput(ctx, job.ID, stage.Name)
		if err != nil {
			return o.failJob(ctx, job, stage.Name, err)
		}
		if cached != nil {
			log.WithField("stage", stage.Name).Info("resuming from cached stage output")
			previousOutput = cached.output
			totalCost += cached.cost
			continue
		}

		input := transcriptText
		if stage.InputFromPrevious {
			input = previousOutput
		}

		if err := o.recordStage(ctx, job, &types.StageResult{
			JobID:     job.ID,
			StageID:   stage.Name,
			Status:    types.StageStatusRunning,
			ModelUsed: stage.Model,
		}, totalCost); err != nil {
			return err
		}

		result, runErr := o.runner.Run(ctx, stage, input)
		if runErr != nil {
			return o.failJob(ctx, job, stage.Name, runErr)
		}

		ref, err := o.artifacts.Put(ctx, job.ID, stage.Name, []byte(result.Output))
		if err != nil {
			return o.failJob(ctx, job, stage.Name, fmt.Errorf("persist stage output: %w", err))
		}

		stageCost := pricing.Estimate(stage.Model, result.InputTokens, result.OutputTokens)
		if _, known := pricing.RateFor(stage.Model); !known {
			log.WithField("model", stage.Model).Warn("no price listed for model, using default rate")
		}
		totalCost += stageCost

		now := time.Now()
		if err := o.recordStage(ctx, job, &types.StageResult{
			JobID:        job.ID,
			StageID:      stage.Name,
			Status:       types.StageStatusComplete,
			ModelUsed:    stage.Model,
			Provider:     result.Provider,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			CostEstimate: stageCost,
			OutputRef:    ref,
			CompletedAt:  &now,
		}, totalCost); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"stage":      stage.Name,
			"cost":       stageCost,
			"total_cost": totalCost,
		}).Info("stage complete")

		previousOutput = result.Output
	}

	now := time.Now()
	job.Status = types.JobStatusComplete
	job.CompletedAt = &now
	job.CurrentStage = ""
	job.CostEstimate = totalCost
	if err := o.store.SaveJob(ctx, job); err != nil {
		return err
	}
	o.publishJob(ctx, job, "", "", "")
	log.WithField("cost", totalCost).Info("job complete")
	return nil
}

// ensureTranscript returns the aligned speaker transcript, deriving and
// persisting it on first run and loading the artifact on resume. The second
// return value is the cost accumulated so far (the cached stage's recorded
// cost on resume).
func (o *Orchestrator) ensureTranscript(ctx context.Context, job *types.Job, log *logrus.Entry) (string, float64, error) {
	cached, err := o.cachedOutput(ctx, job.ID, TranscribeStageID)
	if err != nil {
		return "", 0, err
	}
	if cached != nil {
		log.Info("resuming with cached transcript")
		return cached.output, cached.cost, nil
	}

	if err := o.recordStage(ctx, job, &types.StageResult{
		JobID:   job.ID,
		StageID: TranscribeStageID,
		Status:  types.StageStatusRunning,
	}, 0); err != nil {
		return "", 0, err
	}

	tr, err := o.transcriber.Transcribe(ctx, job.Filename)
	if err != nil {
		return "", 0, fmt.Errorf("transcribe: %w", err)
	}
	log.WithField("segments", len(tr.Segments)).Info("transcription complete")

	speakers, err := o.diarizer.Diarize(ctx, job.Filename)
	if err != nil {
		log.WithError(err).Warn("diarization failed, falling back to single speaker")
		speakers = nil
	}
	if len(speakers) == 0 {
		speakers = singleSpeakerFallback(tr)
	}

	aligned, err := align.Merge(tr.Segments, speakers)
	if err != nil {
		return "", 0, err
	}

	text := RenderSpeakerTranscript(aligned)
	ref, err := o.artifacts.Put(ctx, job.ID, TranscribeStageID, []byte(text))
	if err != nil {
		return "", 0, fmt.Errorf("persist transcript: %w", err)
	}
	// Timestamped raw transcript kept alongside for debugging.
	if _, err := o.artifacts.Put(ctx, job.ID, TranscribeStageID+"_raw", []byte(RenderRawTranscript(tr.Segments))); err != nil {
		log.WithError(err).Warn("failed to persist raw transcript")
	}

	now := time.Now()
	if err := o.recordStage(ctx, job, &types.StageResult{
		JobID:       job.ID,
		StageID:     TranscribeStageID,
		Status:      types.StageStatusComplete,
		OutputRef:   ref,
		CompletedAt: &now,
	}, 0); err != nil {
		return "", 0, err
	}
	return text, 0, nil
}

// singleSpeakerFallback covers the whole recording with one speaker when
// diarization has nothing to say.
func singleSpeakerFallback(tr *types.Transcript) []types.SpeakerSegment {
	if len(tr.Segments) == 0 {
		return nil
	}
	end := tr.Duration
	if last := tr.Segments[len(tr.Segments)-1].End; last > end {
		end = last
	}
	return []types.SpeakerSegment{{Start: 0, End: end, Speaker: types.SpeakerFallback}}
}

type cachedStage struct {
	output string
	cost   float64
}

// cachedOutput loads a prior COMPLETE stage result whose artifact still
// exists. A recorded result with a lost artifact is treated as absent so the
// stage re-runs.
func (o *Orchestrator) cachedOutput(ctx context.Context, jobID, stageID string) (*cachedStage, error) {
	sr, err := o.store.GetStageResult(ctx, jobID, stageID)
	if err != nil {
		return nil, err
	}
	if sr == nil || sr.Status != types.StageStatusComplete || sr.OutputRef == "" {
		return nil, nil
	}

	exists, err := o.artifacts.Exists(ctx, sr.OutputRef)
	if err != nil {
		return nil, err
	}
	if !exists {
		o.log.WithJob(jobID).WithField("stage", stageID).
			Warn("cached stage result found but artifact missing, re-running")
		return nil, nil
	}

	data, err := o.artifacts.Get(ctx, sr.OutputRef)
	if err != nil {
		return nil, err
	}
	return &cachedStage{output: string(data), cost: sr.CostEstimate}, nil
}

// recordStage upserts the stage result, moves the job's stage cursor and
// running cost, and publishes the transition.
func (o *Orchestrator) recordStage(ctx context.Context, job *types.Job, sr *types.StageResult, totalCost float64) error {
	if sr.Status == types.StageStatusRunning && sr.StartedAt == nil {
		now := time.Now()
		sr.StartedAt = &now
	}
	if err := o.store.UpsertStageResult(ctx, sr); err != nil {
		return err
	}
	job.CurrentStage = sr.StageID
	job.CostEstimate = totalCost
	if err := o.store.SaveJob(ctx, job); err != nil {
		return err
	}
	o.publishJob(ctx, job, sr.StageID, sr.Status, sr.ModelUsed)
	return nil
}

// checkCancel honors cooperative cancellation between stages.
func (o *Orchestrator) checkCancel(ctx context.Context, job *types.Job) (bool, error) {
	fresh, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if !fresh.CancelRequested {
		return false, nil
	}

	now := time.Now()
	job.Status = types.JobStatusCancelled
	job.CancelRequested = true
	job.CompletedAt = &now
	if err := o.store.SaveJob(ctx, job); err != nil {
		return false, err
	}
	o.publishJob(ctx, job, "", "", "")
	return true, nil
}

// failJob records the terminal failure on the job and, when the failure is
// tied to a stage, on that stage's result. Returns the classified error.
func (o *Orchestrator) failJob(ctx context.Context, job *types.Job, stage string, err error) error {
	classified := err
	var perr *Error
	if !errors.As(err, &perr) {
		classified = classify(stage, err)
	}

	if stage != "" {
		sr, getErr := o.store.GetStageResult(ctx, job.ID, stage)
		if getErr != nil {
			o.log.WithJob(job.ID).WithError(getErr).Error("failed to load stage result for failure record")
		} else {
			if sr == nil {
				sr = &types.StageResult{JobID: job.ID, StageID: stage}
			}
			sr.Status = types.StageStatusFailed
			sr.Error = classified.Error()
			if upErr := o.store.UpsertStageResult(ctx, sr); upErr != nil {
				o.log.WithJob(job.ID).WithError(upErr).Error("failed to persist stage failure")
			}
		}
	}

	now := time.Now()
	job.Status = types.JobStatusFailed
	job.Error = classified.Error()
	job.CompletedAt = &now
	if saveErr := o.store.SaveJob(ctx, job); saveErr != nil {
		o.log.WithJob(job.ID).WithError(saveErr).Error("failed to persist job failure")
	}
	stageStatus := types.StageStatus("")
	if stage != "" {
		stageStatus = types.StageStatusFailed
	}
	o.publishJob(ctx, job, stage, stageStatus, "")

	o.log.WithJob(job.ID).WithField("stage", stage).WithError(classified).Error("job failed")
	return classified
}

func (o *Orchestrator) publishJob(ctx context.Context, job *types.Job, stageID string, stageStatus types.StageStatus, model string) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(ctx, events.Event{
		JobID:        job.ID,
		Status:       job.Status,
		CurrentStage: job.CurrentStage,
		StageID:      stageID,
		StageStatus:  stageStatus,
		ModelUsed:    model,
		Error:        job.Error,
		CostEstimate: job.CostEstimate,
	})
}
