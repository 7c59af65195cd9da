package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/db"
)

// EnsureUser returns the internal id for an external identity, creating
// the user on first sight.
func (s *Store) EnsureUser(ctx context.Context, externalID string) (uuid.UUID, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		uuid.New(), externalID, s.timestamp(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	id, err := s.GetUserIDByExternalID(ctx, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("failed to ensure user: %s vanished", externalID)
	}
	return id, nil
}

// GetUserIDByExternalID returns uuid.Nil when the user does not exist.
func (s *Store) GetUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE external_id = ?`, externalID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return id, nil
}

// UserExists reports whether a user with the internal id exists.
func (s *Store) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}

// GetUserInterests returns the declared interests, or an empty slice.
func (s *Store) GetUserInterests(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var interests db.StringArray
	err := s.db.QueryRowContext(ctx,
		`SELECT interests FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&interests)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get user interests: %w", err)
	}
	return interests, nil
}

// SetUserInterests replaces the user's interests.
func (s *Store) SetUserInterests(ctx context.Context, userID uuid.UUID, interests []string) error {
	if interests == nil {
		interests = []string{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, interests, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET interests = excluded.interests, updated_at = excluded.updated_at`,
		userID, db.StringArray(interests), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to set user interests: %w", err)
	}
	return nil
}

// ListUsersNeedingDailyPrompts returns users with at least one interest
// and no job created at or after since.
func (s *Store) ListUsersNeedingDailyPrompts(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.user_id FROM user_preferences p
		 WHERE json_array_length(p.interests) > 0
		   AND NOT EXISTS (
		       SELECT 1 FROM prompt_generation_jobs j
		       WHERE j.user_id = p.user_id AND j.created_at >= ?)
		 ORDER BY p.user_id`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users for daily prompts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return ids, nil
}
