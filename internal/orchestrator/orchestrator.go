// Package orchestrator owns the generation job lifecycle: selecting
// interests, running one pipeline per interest in the background,
// persisting results and keeping job status consistent.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/pipeline"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInterestsPerGeneration = 3
	DefaultJobTimeout             = 10 * time.Minute
	DefaultDailyBatchSize         = 5
	DefaultDailyBatchPause        = time.Second
)

// Store is the persistence the orchestrator needs. Implementations live in
// internal/db (Postgres) and internal/db/sqlite.
type Store interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	GetUserInterests(ctx context.Context, userID uuid.UUID) ([]string, error)

	// CreateJobIfNoneActive inserts a pending job unless the user already
	// has a pending or processing one, in which case that job is returned
	// with created=false.
	CreateJobIfNoneActive(ctx context.Context, userID uuid.UUID, interests []string) (job *types.Job, created bool, err error)
	GetActiveJob(ctx context.Context, userID uuid.UUID) (*types.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error)

	// UpdateJobStatus only touches non-terminal jobs and reports whether a
	// row changed.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status types.JobStatus, errMsg *string) (bool, error)
	// IncrementJobProgress only touches processing jobs.
	IncrementJobProgress(ctx context.Context, jobID uuid.UUID, research, composition, visuals int) error
	FailStaleJobs(ctx context.Context, createdBefore time.Time, errMsg string) (int64, error)

	CreatePrompt(ctx context.Context, p *types.WritingPrompt) error
	ListUsersNeedingDailyPrompts(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// Runner executes one pipeline.
type Runner interface {
	Run(ctx context.Context, topic string, jobID uuid.UUID) pipeline.Result
}

// Options configures an Orchestrator.
type Options struct {
	Store                  Store
	Runner                 Runner
	Dispatcher             *Dispatcher
	InterestsPerGeneration int
	JobTimeout             time.Duration
	DailyBatchSize         int
	DailyBatchPause        time.Duration
	// Location defines the calendar day for the daily sweep.
	Location *time.Location
	Logger   *zerolog.Logger
}

// Orchestrator coordinates generation jobs.
type Orchestrator struct {
	store      Store
	runner     Runner
	dispatcher *Dispatcher

	interestsPerGeneration int
	jobTimeout             time.Duration
	batchSize              int
	batchPause             time.Duration
	location               *time.Location

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
	logger  zerolog.Logger
}

// New creates an Orchestrator, filling unset options with defaults.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:                  opts.Store,
		runner:                 opts.Runner,
		dispatcher:             opts.Dispatcher,
		interestsPerGeneration: opts.InterestsPerGeneration,
		jobTimeout:             opts.JobTimeout,
		batchSize:              opts.DailyBatchSize,
		batchPause:             opts.DailyBatchPause,
		location:               opts.Location,
		now:                    time.Now,
		shuffle:                rand.Shuffle,
		logger:                 logging.OrNop(opts.Logger).With().Str("component", "orchestrator").Logger(),
	}
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher(16)
	}
	if o.interestsPerGeneration <= 0 {
		o.interestsPerGeneration = DefaultInterestsPerGeneration
	}
	if o.jobTimeout <= 0 {
		o.jobTimeout = DefaultJobTimeout
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultDailyBatchSize
	}
	if o.batchPause < 0 {
		o.batchPause = 0
	}
	if o.location == nil {
		o.location = time.Local
	}
	return o
}

// Dispatcher exposes the background worker gate so callers can drain it.
func (o *Orchestrator) Dispatcher() *Dispatcher {
	return o.dispatcher
}

// GeneratePrompts starts a generation job for the user, or returns the
// user's active job unchanged if one exists. The returned job is pending;
// processing continues in the background.
func (o *Orchestrator) GeneratePrompts(ctx context.Context, userID uuid.UUID) (*types.Job, error) {
	job, _, err := o.startJob(ctx, userID)
	return job, err
}

// RegeneratePrompts behaves like GeneratePrompts but reports an existing
// active job as *types.ErrActiveJob. Existing prompts are left alone.
func (o *Orchestrator) RegeneratePrompts(ctx context.Context, userID uuid.UUID) (*types.Job, error) {
	job, created, err := o.startJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !created {
		return job, &types.ErrActiveJob{JobID: job.ID}
	}
	return job, nil
}

func (o *Orchestrator) startJob(ctx context.Context, userID uuid.UUID) (*types.Job, bool, error) {
	exists, err := o.store.UserExists(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}
	if !exists {
		return nil, false, &types.ErrNotFound{Resource: "user", ID: userID.String()}
	}

	active, err := o.store.GetActiveJob(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check active job: %w", err)
	}
	if active != nil {
		return active, false, nil
	}

	interests, err := o.store.GetUserInterests(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load interests: %w", err)
	}
	if len(interests) == 0 {
		return nil, false, &types.ErrValidation{Field: "interests", Message: "no interests configured"}
	}

	selected := o.selectInterests(interests)
	job, created, err := o.store.CreateJobIfNoneActive(ctx, userID, selected)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}
	if !created {
		// Lost a race with a concurrent request; the winner's job stands.
		return job, false, nil
	}

	o.logger.Info().
		Str("job_id", job.ID.String()).
		Str("user_id", userID.String()).
		Strs("interests", selected).
		Msg("generation job created")

	// The ceiling counts from acceptance, including time spent queued.
	deadline := time.Now().Add(o.jobTimeout)
	if err := o.dispatcher.Go(func() { o.runJob(job, deadline) }); err != nil {
		msg := "job could not be scheduled: " + err.Error()
		o.finish(job.ID, types.JobFailed, &msg)
		job.Status = types.JobFailed
		job.Error = &msg
	}
	return job, true, nil
}

// selectInterests picks up to the configured number without replacement.
func (o *Orchestrator) selectInterests(interests []string) []string {
	picked := make([]string, len(interests))
	copy(picked, interests)
	o.shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > o.interestsPerGeneration {
		picked = picked[:o.interestsPerGeneration]
	}
	return picked
}

// GetJobStatus returns the job with its derived progress.
func (o *Orchestrator) GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (*types.JobStatusView, error) {
	job, err := o.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return &types.JobStatusView{Job: job, Progress: job.Progress()}, nil
}

// CancelJob marks a pending or processing job as cancelled. In-flight
// pipelines are not interrupted; their results are discarded.
func (o *Orchestrator) CancelJob(ctx context.Context, userID, jobID uuid.UUID) (*types.Job, error) {
	job, err := o.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, &types.ErrConflict{Resource: "job", ID: jobID.String(), Message: "job is already " + string(job.Status)}
	}

	changed, err := o.store.UpdateJobStatus(ctx, jobID, types.JobCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	if !changed {
		return nil, &types.ErrConflict{Resource: "job", ID: jobID.String(), Message: "job finished before it could be cancelled"}
	}

	o.logger.Info().Str("job_id", jobID.String()).Msg("job cancelled")
	return o.store.GetJob(ctx, jobID)
}

func (o *Orchestrator) ownedJob(ctx context.Context, userID, jobID uuid.UUID) (*types.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, &types.ErrNotFound{Resource: "job", ID: jobID.String()}
	}
	if job.UserID != userID {
		return nil, &types.ErrForbidden{Resource: "job", ID: jobID.String()}
	}
	return job, nil
}
