package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/types"
	"golang.org/x/sync/errgroup"
)

// RunDailyGenerationForAllUsers starts a job for every user with interests
// and no job created since local midnight. Users are handled in batches
// with a pause between them. One user's failure does not stop the sweep.
func (o *Orchestrator) RunDailyGenerationForAllUsers(ctx context.Context) (types.DailyRunResult, error) {
	var result types.DailyRunResult

	since := o.startOfDay()
	users, err := o.store.ListUsersNeedingDailyPrompts(ctx, since)
	if err != nil {
		return result, fmt.Errorf("failed to list users for daily generation: %w", err)
	}

	o.logger.Info().Int("users", len(users)).Time("since", since).Msg("starting daily generation")

	var mu sync.Mutex
	for start := 0; start < len(users); start += o.batchSize {
		if start > 0 && o.batchPause > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(o.batchPause):
			}
		}

		end := min(start+o.batchSize, len(users))
		var g errgroup.Group
		for _, userID := range users[start:end] {
			g.Go(func() error {
				_, err := o.GeneratePrompts(ctx, userID)

				mu.Lock()
				defer mu.Unlock()
				result.Processed++
				if err != nil {
					result.Failed++
					o.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("daily generation failed for user")
					return nil
				}
				result.Succeeded++
				return nil
			})
		}
		_ = g.Wait()
	}

	o.logger.Info().
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("daily generation finished")
	return result, nil
}

// startOfDay is midnight of the current day in the configured location.
func (o *Orchestrator) startOfDay() time.Time {
	now := o.now().In(o.location)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, o.location)
}

// ReconcileStuckJobs fails non-terminal jobs older than the job ceiling,
// covering jobs orphaned by a process restart.
func (o *Orchestrator) ReconcileStuckJobs(ctx context.Context) (int64, error) {
	// A small grace keeps the reconciler from racing the in-process timeout.
	cutoff := o.now().Add(-(o.jobTimeout + time.Minute))
	msg := o.timeoutMessage()

	n, err := o.store.FailStaleJobs(ctx, cutoff, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stuck jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn().Int64("jobs", n).Msg("failed stuck jobs")
	}
	return n, nil
}

// GenerateAndWait starts a job for the user and blocks until the
// background work for it has drained. Used by the CLI.
func (o *Orchestrator) GenerateAndWait(ctx context.Context, userID uuid.UUID) (*types.Job, error) {
	job, err := o.GeneratePrompts(ctx, userID)
	if err != nil {
		return nil, err
	}
	o.dispatcher.Wait()
	final, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}
	return final, nil
}
