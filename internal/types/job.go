package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

// Job status values
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// IsActive reports whether s counts toward the single active job limit.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobProcessing
}

// Job is one batch request to generate prompts for a user.
type Job struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"userId"`
	SelectedInterests    []string   `json:"selectedInterests"`
	Status               JobStatus  `json:"status"`
	Error                *string    `json:"error"`
	ResearchCompleted    int        `json:"researchCompleted"`
	CompositionCompleted int        `json:"compositionCompleted"`
	VisualsCompleted     int        `json:"visualsCompleted"`
	StartedAt            *time.Time `json:"startedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Stage is the coarse progress phase reported to pollers.
type Stage string

// Progress stages
const (
	StageResearch    Stage = "research"
	StageComposition Stage = "composition"
	StageVisuals     Stage = "visuals"
	StageDone        Stage = "done"
)

// JobProgress summarises how far a job has come.
type JobProgress struct {
	Total     int   `json:"total"`
	Completed int   `json:"completed"`
	Stage     Stage `json:"stage"`
}

// Progress derives the poller view from the job's counters.
func (j *Job) Progress() JobProgress {
	total := len(j.SelectedInterests)
	completed := min(j.ResearchCompleted, j.CompositionCompleted)

	stage := StageResearch
	switch {
	case j.Status.IsTerminal():
		stage = StageDone
	case completed >= total:
		stage = StageVisuals
	case j.ResearchCompleted > 0:
		stage = StageComposition
	}

	return JobProgress{Total: total, Completed: completed, Stage: stage}
}

// JobStatusView pairs a job with its derived progress.
type JobStatusView struct {
	Job      *Job        `json:"job"`
	Progress JobProgress `json:"progress"`
}

// DailyRunResult aggregates the outcome of a daily sweep.
type DailyRunResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
