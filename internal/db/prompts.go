package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ink-prompts/internal/types"
)

const promptColumns = `id, user_id, interest, hook, blurb, image_url, tags,
	suggested_angles, sources, art_style, status, used_at, dismissed_at,
	created_at, updated_at`

func scanPrompt(row pgx.Row) (*types.WritingPrompt, error) {
	var (
		p        types.WritingPrompt
		tags     StringArray
		angles   StringArray
		sources  SourceList
		artStyle *string
		status   string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Interest, &p.Hook, &p.Blurb, &p.ImageURL,
		&tags, &angles, &sources, &artStyle, &status, &p.UsedAt, &p.DismissedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Tags = tags
	p.SuggestedAngles = angles
	p.Sources = sources
	p.Status = types.PromptStatus(status)
	if artStyle != nil {
		style := types.ArtStyle(*artStyle)
		p.ArtStyle = &style
	}
	return &p, nil
}

func artStyleArg(s *types.ArtStyle) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// CreatePrompt inserts p and fills its generated fields.
func (db *DB) CreatePrompt(ctx context.Context, p *types.WritingPrompt) error {
	if p.Status == "" {
		p.Status = types.PromptReady
	}
	created, err := scanPrompt(db.pool.QueryRow(ctx,
		`INSERT INTO writing_prompts
		     (user_id, interest, hook, blurb, image_url, tags, suggested_angles, sources, art_style, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+promptColumns,
		p.UserID, p.Interest, p.Hook, p.Blurb, p.ImageURL,
		StringArray(nonNil(p.Tags)), StringArray(nonNil(p.SuggestedAngles)), SourceList(p.Sources),
		artStyleArg(p.ArtStyle), string(p.Status),
	))
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	*p = *created
	return nil
}

// GetPrompt retrieves a prompt by ID, or nil if absent.
func (db *DB) GetPrompt(ctx context.Context, id uuid.UUID) (*types.WritingPrompt, error) {
	p, err := scanPrompt(db.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM writing_prompts WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return p, nil
}

// ListPrompts returns the user's prompts newest first.
func (db *DB) ListPrompts(ctx context.Context, filter types.PromptFilter) ([]types.WritingPrompt, error) {
	f := NormalizeFilter(filter)
	rows, err := db.pool.Query(ctx,
		`SELECT `+promptColumns+` FROM writing_prompts
		 WHERE user_id = $1 AND status = ANY($2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		f.UserID, statusStrings(f.Statuses), f.Limit, f.Offset,
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
func (db *DB) CountReadyPrompts(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM writing_prompts WHERE user_id = $1 AND status = 'ready'`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count prompts: %w", err)
	}
	return n, nil
}

// TransitionPrompt moves a ready prompt to used or dismissed. It returns
// nil without error if the prompt was not ready.
func (db *DB) TransitionPrompt(ctx context.Context, id uuid.UUID, status types.PromptStatus) (*types.WritingPrompt, error) {
	col := PromptTimestampColumn(status)
	if col == "" {
		return nil, fmt.Errorf("invalid prompt status transition to %q", status)
	}
	p, err := scanPrompt(db.pool.QueryRow(ctx,
		`UPDATE writing_prompts
		 SET status = $2, `+col+` = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'ready'
		 RETURNING `+promptColumns,
		id, string(status),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update prompt: %w", err)
	}
	return p, nil
}

// DeletePrompt hard deletes a prompt and reports whether it existed.
func (db *DB) DeletePrompt(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM writing_prompts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete prompt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
