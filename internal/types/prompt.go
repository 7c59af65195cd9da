// Package types provides the data shared by the prompt engine: research
// reports, prompts, jobs and the typed errors callers map to responses.
package types

import (
	"time"

	"github.com/google/uuid"
)

// PromptStatus is the lifecycle state of a writing prompt.
type PromptStatus string

// Prompt status values
const (
	PromptPending    PromptStatus = "pending"
	PromptGenerating PromptStatus = "generating"
	PromptReady      PromptStatus = "ready"
	PromptUsed       PromptStatus = "used"
	PromptDismissed  PromptStatus = "dismissed"
	PromptFailed     PromptStatus = "failed"
)

// ListableStatuses are the statuses a caller may filter prompts by.
var ListableStatuses = []PromptStatus{PromptReady, PromptUsed, PromptDismissed}

// IsListable reports whether s may be used as a list filter.
func (s PromptStatus) IsListable() bool {
	for _, l := range ListableStatuses {
		if s == l {
			return true
		}
	}
	return false
}

// WritingPrompt is a persisted, user-facing writing prompt.
type WritingPrompt struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"userId"`
	Interest        string       `json:"interest"`
	Hook            string       `json:"hook"`
	Blurb           string       `json:"blurb"`
	ImageURL        *string      `json:"imageUrl"`
	Tags            []string     `json:"tags"`
	SuggestedAngles []string     `json:"suggestedAngles"`
	Sources         []Source     `json:"sources"`
	ArtStyle        *ArtStyle    `json:"artStyle"`
	Status          PromptStatus `json:"status"`
	UsedAt          *time.Time   `json:"usedAt"`
	DismissedAt     *time.Time   `json:"dismissedAt"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// PromptFilter selects prompts for listing.
type PromptFilter struct {
	UserID   uuid.UUID
	Statuses []PromptStatus
	Limit    int
	Offset   int
}

// EditorData is the payload handed to the editor when a prompt is used.
type EditorData struct {
	Title           string   `json:"title"`
	Blurb           string   `json:"blurb"`
	ImageURL        *string  `json:"imageUrl"`
	Tags            []string `json:"tags"`
	Interest        string   `json:"interest"`
	SuggestedAngles []string `json:"suggestedAngles"`
	Sources         []Source `json:"sources"`
}

// EditorData projects the prompt into the editor payload.
func (p *WritingPrompt) EditorData() EditorData {
	return EditorData{
		Title:           p.Hook,
		Blurb:           p.Blurb,
		ImageURL:        p.ImageURL,
		Tags:            p.Tags,
		Interest:        p.Interest,
		SuggestedAngles: p.SuggestedAngles,
		Sources:         p.Sources,
	}
}
