package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ink-prompts/internal/types"
)

const jobColumns = `id, user_id, selected_interests, status, error,
	research_completed, composition_completed, visuals_completed,
	started_at, completed_at, created_at`

// maxCreateAttempts bounds the insert/lookup loop when a concurrent job
// finishes between the two statements.
const maxCreateAttempts = 3

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		job       types.Job
		interests StringArray
		status    string
	)
	err := row.Scan(&job.ID, &job.UserID, &interests, &status, &job.Error,
		&job.ResearchCompleted, &job.CompositionCompleted, &job.VisualsCompleted,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.SelectedInterests = interests
	job.Status = types.JobStatus(status)
	return &job, nil
}

// CreateJobIfNoneActive inserts a pending job unless the user already has
// an active one. The partial unique index makes the check atomic.
func (db *DB) CreateJobIfNoneActive(ctx context.Context, userID uuid.UUID, interests []string) (*types.Job, bool, error) {
	for range maxCreateAttempts {
		job, err := scanJob(db.pool.QueryRow(ctx,
			`INSERT INTO prompt_generation_jobs (user_id, selected_interests, status)
			 VALUES ($1, $2, 'pending')
			 ON CONFLICT DO NOTHING
			 RETURNING `+jobColumns,
			userID, StringArray(nonNil(interests)),
		))
		if err == nil {
			return job, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to create job: %w", err)
		}

		active, err := db.GetActiveJob(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if active != nil {
			return active, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to create job: active job kept changing")
}

// GetActiveJob returns the user's pending or processing job, or nil.
func (db *DB) GetActiveJob(ctx context.Context, userID uuid.UUID) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM prompt_generation_jobs
		 WHERE user_id = $1 AND status IN ('pending', 'processing')
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM prompt_generation_jobs WHERE id = $1`,
		jobID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus moves a job to status if the transition is allowed from
// its current status. It reports whether the row changed.
func (db *DB) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status types.JobStatus, errMsg *string) (bool, error) {
	from := TransitionSources(status)
	if len(from) == 0 {
		return false, fmt.Errorf("invalid job status transition to %q", status)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE prompt_generation_jobs SET
		     status = $2,
		     error = COALESCE($3, error),
		     started_at = CASE WHEN $2 = 'processing' THEN COALESCE(started_at, NOW()) ELSE started_at END,
		     completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END
		 WHERE id = $1 AND status = ANY($5)`,
		jobID, string(status), errMsg, status.IsTerminal(), from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementJobProgress bumps the per-stage counters of a processing job.
// Negative deltas are ignored so counters never decrease.
func (db *DB) IncrementJobProgress(ctx context.Context, jobID uuid.UUID, research, composition, visuals int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE prompt_generation_jobs SET
		     research_completed = research_completed + $2,
		     composition_completed = composition_completed + $3,
		     visuals_completed = visuals_completed + $4
		 WHERE id = $1 AND status = 'processing'`,
		jobID, max(research, 0), max(composition, 0), max(visuals, 0),
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// FailStaleJobs fails every active job created before the cutoff.
func (db *DB) FailStaleJobs(ctx context.Context, createdBefore time.Time, errMsg string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE prompt_generation_jobs
		 SET status = 'failed', error = $2, completed_at = NOW()
		 WHERE status IN ('pending', 'processing') AND created_at < $1`,
		createdBefore, errMsg,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
