package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/types"
)

// PromptStore is the persistence PromptService needs.
type PromptStore interface {
	GetPrompt(ctx context.Context, id uuid.UUID) (*types.WritingPrompt, error)
	ListPrompts(ctx context.Context, filter types.PromptFilter) ([]types.WritingPrompt, error)
	CountReadyPrompts(ctx context.Context, userID uuid.UUID) (int, error)
	TransitionPrompt(ctx context.Context, id uuid.UUID, status types.PromptStatus) (*types.WritingPrompt, error)
	DeletePrompt(ctx context.Context, id uuid.UUID) (bool, error)
}

// PromptList is one page of prompts.
type PromptList struct {
	Prompts    []types.WritingPrompt `json:"prompts"`
	HasMore    bool                  `json:"hasMore"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	ReadyCount int                   `json:"readyCount"`
}

// PromptService enforces ownership and status rules for prompt actions.
type PromptService struct {
	store PromptStore
}

// NewPromptService creates a new prompt service.
func NewPromptService(store PromptStore) *PromptService {
	return &PromptService{store: store}
}

// Get returns a prompt owned by userID.
func (s *PromptService) Get(ctx context.Context, userID, id uuid.UUID) (*types.WritingPrompt, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if p == nil {
		return nil, &types.ErrNotFound{Resource: "prompt", ID: id.String()}
	}
	if p.UserID != userID {
		return nil, &types.ErrForbidden{Resource: "prompt", ID: id.String()}
	}
	return p, nil
}

// List returns a page of the caller's prompts. The filter's limit and
// offset must already be validated.
func (s *PromptService) List(ctx context.Context, filter types.PromptFilter) (*PromptList, error) {
	prompts, err := s.store.ListPrompts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	ready, err := s.store.CountReadyPrompts(ctx, filter.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count prompts: %w", err)
	}
	return &PromptList{
		Prompts:    prompts,
		HasMore:    len(prompts) == filter.Limit,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		ReadyCount: ready,
	}, nil
}

// Use marks a ready prompt as used.
func (s *PromptService) Use(ctx context.Context, userID, id uuid.UUID) (*types.WritingPrompt, error) {
	return s.transition(ctx, userID, id, types.PromptUsed)
}

// Dismiss marks a ready prompt as dismissed.
func (s *PromptService) Dismiss(ctx context.Context, userID, id uuid.UUID) (*types.WritingPrompt, error) {
	return s.transition(ctx, userID, id, types.PromptDismissed)
}

func (s *PromptService) transition(ctx context.Context, userID, id uuid.UUID, to types.PromptStatus) (*types.WritingPrompt, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PromptReady {
		return nil, statusConflict(p)
	}

	updated, err := s.store.TransitionPrompt(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update prompt: %w", err)
	}
	if updated == nil {
		// Another request moved it first.
		current, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		return nil, statusConflict(current)
	}
	return updated, nil
}

func statusConflict(p *types.WritingPrompt) error {
	msg := "prompt is not ready"
	switch p.Status {
	case types.PromptUsed:
		msg = "prompt has already been used"
	case types.PromptDismissed:
		msg = "prompt has already been dismissed"
	}
	return &types.ErrConflict{Resource: "prompt", ID: p.ID.String(), Message: msg}
}

// Delete removes a prompt owned by userID.
func (s *PromptService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	deleted, err := s.store.DeletePrompt(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete prompt: %w", err)
	}
	if !deleted {
		return &types.ErrNotFound{Resource: "prompt", ID: id.String()}
	}
	return nil
}
