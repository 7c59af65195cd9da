package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/db"
	"github.com/jonathan/ink-prompts/internal/types"
)

const jobColumns = `id, user_id, selected_interests, status, error,
	research_completed, composition_completed, visuals_completed,
	started_at, completed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job                            types.Job
		interests                      db.StringArray
		status, createdAt              string
		errMsg, startedAt, completedAt sql.NullString
	)
	err := row.Scan(&job.ID, &job.UserID, &interests, &status, &errMsg,
		&job.ResearchCompleted, &job.CompositionCompleted, &job.VisualsCompleted,
		&startedAt, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	job.SelectedInterests = interests
	job.Status = types.JobStatus(status)
	job.Error = nullString(errMsg)
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobIfNoneActive inserts a pending job unless the user already has
// an active one. The partial unique index makes the check atomic.
func (s *Store) CreateJobIfNoneActive(ctx context.Context, userID uuid.UUID, interests []string) (*types.Job, bool, error) {
	if interests == nil {
		interests = []string{}
	}
	for range 3 {
		job, err := scanJob(s.db.QueryRowContext(ctx,
			`INSERT INTO prompt_generation_jobs (id, user_id, selected_interests, status, created_at)
			 VALUES (?, ?, ?, 'pending', ?)
			 ON CONFLICT DO NOTHING
			 RETURNING `+jobColumns,
			uuid.New(), userID, db.StringArray(interests), s.timestamp(),
		))
		if err == nil {
			return job, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to create job: %w", err)
		}

		active, err := s.GetActiveJob(ctx, userID)
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
func (s *Store) GetActiveJob(ctx context.Context, userID uuid.UUID) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM prompt_generation_jobs
		 WHERE user_id = ? AND status IN ('pending', 'processing')
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID, or nil if absent.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM prompt_generation_jobs WHERE id = ?`,
		jobID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus moves a job to status if the transition is allowed from
// its current status. It reports whether the row changed.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status types.JobStatus, errMsg *string) (bool, error) {
	from := db.TransitionSources(status)
	if len(from) == 0 {
		return false, fmt.Errorf("invalid job status transition to %q", status)
	}

	now := s.timestamp()
	var startedAt, completedAt any
	if status == types.JobProcessing {
		startedAt = now
	}
	if status.IsTerminal() {
		completedAt = now
	}

	args := []any{string(status), errMsg, startedAt, completedAt, jobID}
	args = append(args, stringArgs(from)...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompt_generation_jobs SET
		     status = ?,
		     error = COALESCE(?, error),
		     started_at = COALESCE(started_at, ?),
		     completed_at = COALESCE(?, completed_at)
		 WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return n > 0, nil
}

// IncrementJobProgress bumps the per-stage counters of a processing job.
// Negative deltas are ignored so counters never decrease.
func (s *Store) IncrementJobProgress(ctx context.Context, jobID uuid.UUID, research, composition, visuals int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE prompt_generation_jobs SET
		     research_completed = research_completed + ?,
		     composition_completed = composition_completed + ?,
		     visuals_completed = visuals_completed + ?
		 WHERE id = ? AND status = 'processing'`,
		max(research, 0), max(composition, 0), max(visuals, 0), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// FailStaleJobs fails every active job created before the cutoff.
func (s *Store) FailStaleJobs(ctx context.Context, createdBefore time.Time, errMsg string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompt_generation_jobs
		 SET status = 'failed', error = ?, completed_at = ?
		 WHERE status IN ('pending', 'processing') AND created_at < ?`,
		errMsg, s.timestamp(), formatTime(createdBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}
