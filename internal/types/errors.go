package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound indicates a referenced user, prompt or job does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrForbidden indicates the resource exists but belongs to someone else
type ErrForbidden struct {
	Resource string
	ID       string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("access to %s %s is forbidden", e.Resource, e.ID)
}

// ErrConflict indicates the action is not valid for the current status
type ErrConflict struct {
	Resource string
	ID       string
	Message  string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Message)
}

// ErrValidation indicates missing or malformed input
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrActiveJob indicates a regeneration was refused because a job is running
type ErrActiveJob struct {
	JobID uuid.UUID
}

func (e *ErrActiveJob) Error() string {
	return fmt.Sprintf("a generation job is already in progress: %s", e.JobID)
}
