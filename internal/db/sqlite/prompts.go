package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/db"
	"github.com/jonathan/ink-prompts/internal/types"
)

const promptColumns = `id, user_id, interest, hook, blurb, image_url, tags,
	suggested_angles, sources, art_style, status, used_at, dismissed_at,
	created_at, updated_at`

func scanPrompt(row rowScanner) (*types.WritingPrompt, error) {
	var (
		p                    types.WritingPrompt
		tags, angles         db.StringArray
		sources              db.SourceList
		imageURL, artStyle   sql.NullString
		usedAt, dismissedAt  sql.NullString
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Interest, &p.Hook, &p.Blurb, &imageURL,
		&tags, &angles, &sources, &artStyle, &status, &usedAt, &dismissedAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Tags = tags
	p.SuggestedAngles = angles
	p.Sources = sources
	p.Status = types.PromptStatus(status)
	p.ImageURL = nullString(imageURL)
	if artStyle.Valid {
		style := types.ArtStyle(artStyle.String)
		p.ArtStyle = &style
	}
	if p.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, err
	}
	if p.DismissedAt, err = parseNullTime(dismissedAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePrompt inserts p and fills its generated fields.
func (s *Store) CreatePrompt(ctx context.Context, p *types.WritingPrompt) error {
	if p.Status == "" {
		p.Status = types.PromptReady
	}
	var artStyle any
	if p.ArtStyle != nil {
		artStyle = string(*p.ArtStyle)
	}
	tags, angles := p.Tags, p.SuggestedAngles
	if tags == nil {
		tags = []string{}
	}
	if angles == nil {
		angles = []string{}
	}

	now := s.timestamp()
	created, err := scanPrompt(s.db.QueryRowContext(ctx,
		`INSERT INTO writing_prompts
		     (id, user_id, interest, hook, blurb, image_url, tags, suggested_angles,
		      sources, art_style, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+promptColumns,
		uuid.New(), p.UserID, p.Interest, p.Hook, p.Blurb, p.ImageURL,
		db.StringArray(tags), db.StringArray(angles), db.SourceList(p.Sources),
		artStyle, string(p.Status), now, now,
	))
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	*p = *created
	return nil
}

// GetPrompt retrieves a prompt by ID, or nil if absent.
func (s *Store) GetPrompt(ctx context.Context, id uuid.UUID) (*types.WritingPrompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM writing_prompts WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return p, nil
}

// ListPrompts returns the user's prompts newest first.
func (s *Store) ListPrompts(ctx context.Context, filter types.PromptFilter) ([]types.WritingPrompt, error) {
	f := db.NormalizeFilter(filter)

	args := []any{f.UserID}
	for _, st := range f.Statuses {
		args = append(args, string(st))
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM writing_prompts
		 WHERE user_id = ? AND status IN (`+placeholders(len(f.Statuses))+`)
		 ORDER BY created_at DESC, id
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []types.WritingPrompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prompts: %w", err)
	}
	return prompts, nil
}

// CountReadyPrompts counts the user's prompts waiting to be acted on.
func (s *Store) CountReadyPrompts(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM writing_prompts WHERE user_id = ? AND status = 'ready'`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count prompts: %w", err)
	}
	return n, nil
}

// TransitionPrompt moves a ready prompt to used or dismissed. It returns
// nil without error if the prompt was not ready.
func (s *Store) TransitionPrompt(ctx context.Context, id uuid.UUID, status types.PromptStatus) (*types.WritingPrompt, error) {
	col := db.PromptTimestampColumn(status)
	if col == "" {
		return nil, fmt.Errorf("invalid prompt status transition to %q", status)
	}
	now := s.timestamp()
	p, err := scanPrompt(s.db.QueryRowContext(ctx,
		`UPDATE writing_prompts
		 SET status = ?, `+col+` = ?, updated_at = ?
		 WHERE id = ? AND status = 'ready'
		 RETURNING `+promptColumns,
		string(status), now, now, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update prompt: %w", err)
	}
	return p, nil
}

// DeletePrompt hard deletes a prompt and reports whether it existed.
func (s *Store) DeletePrompt(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM writing_prompts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete prompt: %w", err)
	}
	return n > 0, nil
}
