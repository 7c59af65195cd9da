package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/pipeline"
	"github.com/jonathan/ink-prompts/internal/types"
)

// finalWriteTimeout bounds status writes made after the job context died.
const finalWriteTimeout = 10 * time.Second

// runJob processes job until deadline. If the deadline is hit the job is
// failed immediately even if pipelines are still blocked.
func (o *Orchestrator) runJob(job *types.Job, deadline time.Time) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	if ctx.Err() != nil {
		msg := o.timeoutMessage()
		o.logger.Error().Str("job_id", job.ID.String()).Msg("job expired while queued")
		o.finish(job.ID, types.JobFailed, &msg)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.processJob(ctx, job)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		msg := o.timeoutMessage()
		o.logger.Error().Str("job_id", job.ID.String()).Msg(msg)
		o.finish(job.ID, types.JobFailed, &msg)
	}
}

// processJob runs every selected interest in parallel and records results.
func (o *Orchestrator) processJob(ctx context.Context, job *types.Job) {
	log := o.logger.With().Str("job_id", job.ID.String()).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("unexpected error while processing job: %v", rec)
			log.Error().Interface("panic", rec).Msg("job processing panicked")
			o.finish(job.ID, types.JobFailed, &msg)
		}
	}()

	changed, err := o.store.UpdateJobStatus(ctx, job.ID, types.JobProcessing, nil)
	if err != nil {
		if ctx.Err() != nil {
			msg := o.timeoutMessage()
			o.finish(job.ID, types.JobFailed, &msg)
			return
		}
		msg := "failed to start job: " + err.Error()
		log.Error().Err(err).Msg("failed to mark job processing")
		o.finish(job.ID, types.JobFailed, &msg)
		return
	}
	if !changed {
		log.Info().Msg("job left pending state before processing started")
		return
	}

	start := time.Now()
	var (
		mu        sync.Mutex
		succeeded int
		failures  []string
		wg        sync.WaitGroup
	)
	for _, interest := range job.SelectedInterests {
		wg.Add(1)
		go func(interest string) {
			defer wg.Done()
			res := o.runPipeline(ctx, interest, job.ID)
			if !res.Success {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %s", interest, res.Error))
				mu.Unlock()
				return
			}
			if o.recordResult(ctx, job, res) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(interest)
	}
	wg.Wait()

	log.Info().
		Int("succeeded", succeeded).
		Int("failed", len(job.SelectedInterests)-succeeded).
		Dur("duration", time.Since(start)).
		Msg("job pipelines finished")

	if ctx.Err() != nil {
		msg := o.timeoutMessage()
		o.finish(job.ID, types.JobFailed, &msg)
		return
	}
	if succeeded > 0 {
		o.finish(job.ID, types.JobCompleted, nil)
		return
	}

	msg := "all prompt pipelines failed"
	if len(failures) > 0 {
		msg += ": " + strings.Join(failures, "; ")
	}
	o.finish(job.ID, types.JobFailed, &msg)
}

func (o *Orchestrator) runPipeline(ctx context.Context, interest string, jobID uuid.UUID) (res pipeline.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = pipeline.FailedResult(interest, fmt.Sprintf("pipeline failed for %q: %v", interest, rec))
		}
	}()
	return o.runner.Run(ctx, interest, jobID)
}

// recordResult persists a successful pipeline and bumps counters. Results
// arriving after the job left processing are discarded.
func (o *Orchestrator) recordResult(ctx context.Context, job *types.Job, res pipeline.Result) bool {
	log := o.logger.With().Str("job_id", job.ID.String()).Str("interest", res.Interest).Logger()

	current, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload job before persisting prompt")
		return false
	}
	if current == nil || current.Status != types.JobProcessing {
		log.Info().Msg("discarding result for job that is no longer processing")
		return false
	}

	prompt := promptFromResult(job.UserID, res)
	if err := o.store.CreatePrompt(ctx, prompt); err != nil {
		log.Error().Err(err).Msg("failed to persist prompt")
		return false
	}

	visuals := 0
	if res.Visual != nil {
		visuals = 1
	}
	if err := o.store.IncrementJobProgress(ctx, job.ID, 1, 1, visuals); err != nil {
		log.Warn().Err(err).Msg("failed to update job progress")
	}
	return true
}

// finish writes a terminal status. It uses its own context because the
// job context may already be done.
func (o *Orchestrator) finish(jobID uuid.UUID, status types.JobStatus, errMsg *string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()

	changed, err := o.store.UpdateJobStatus(ctx, jobID, status, errMsg)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID.String()).Str("status", string(status)).Msg("failed to finalize job")
		return
	}
	if !changed {
		o.logger.Debug().Str("job_id", jobID.String()).Str("status", string(status)).Msg("job already terminal")
		return
	}
	o.logger.Info().Str("job_id", jobID.String()).Str("status", string(status)).Msg("job finished")
}

func promptFromResult(userID uuid.UUID, res pipeline.Result) *types.WritingPrompt {
	p := &types.WritingPrompt{
		UserID:          userID,
		Interest:        res.Interest,
		Hook:            res.Content.Hook,
		Blurb:           res.Content.Blurb,
		Tags:            res.Content.Tags,
		SuggestedAngles: res.Content.SuggestedAngles,
		Sources:         res.Research.Sources,
		Status:          types.PromptReady,
	}
	if res.Visual != nil {
		url := res.Visual.ImageURL
		style := res.Visual.ArtStyle
		p.ImageURL = &url
		p.ArtStyle = &style
	}
	return p
}

func (o *Orchestrator) timeoutMessage() string {
	return fmt.Sprintf("job timed out after %s", o.jobTimeout)
}
