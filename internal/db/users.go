package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnsureUser returns the internal id for an external identity, creating
// the user on first sight.
func (db *DB) EnsureUser(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (external_id) VALUES ($1)
		 ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		 RETURNING id`,
		externalID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return id, nil
}

// GetUserIDByExternalID looks up a user without creating one. It returns
// uuid.Nil when the user does not exist.
func (db *DB) GetUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE external_id = $1`,
		externalID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return id, nil
}

// UserExists reports whether a user with the internal id exists.
func (db *DB) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// GetUserInterests returns the declared interests, or an empty slice.
func (db *DB) GetUserInterests(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var interests StringArray
	err := db.pool.QueryRow(ctx,
		`SELECT interests FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&interests)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get user interests: %w", err)
	}
	return interests, nil
}

// SetUserInterests replaces the user's interests.
func (db *DB) SetUserInterests(ctx context.Context, userID uuid.UUID, interests []string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, interests, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET interests = EXCLUDED.interests, updated_at = NOW()`,
		userID, StringArray(nonNil(interests)),
	)
	if err != nil {
		return fmt.Errorf("failed to set user interests: %w", err)
	}
	return nil
}

// ListUsersNeedingDailyPrompts returns users with at least one interest
// and no job created at or after since.
func (db *DB) ListUsersNeedingDailyPrompts(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.user_id FROM user_preferences p
		 WHERE jsonb_array_length(p.interests) > 0
		   AND NOT EXISTS (
		       SELECT 1 FROM prompt_generation_jobs j
		       WHERE j.user_id = p.user_id AND j.created_at >= $1)
		 ORDER BY p.user_id`,
		since,
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

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
