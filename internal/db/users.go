package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelami/reelads/internal/models"
)

func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, full_name, avatar_url, credits, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.FullName, &user.AvatarURL,
		&user.Credits, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// ConsumeCredit atomically decrements one credit if the balance allows it.
// The conditional single-statement UPDATE is what keeps two concurrent
// requests from both spending the last credit: exactly one of them matches
// the WHERE clause.
func (db *DB) ConsumeCredit(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE users
		SET credits = credits - 1, updated_at = NOW()
		WHERE id = $1 AND credits >= 1
	`
	result, err := db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to consume credit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// AddCredits tops up a user's balance (admin/payment flow).
func (db *DB) AddCredits(ctx context.Context, userID uuid.UUID, amount int) error {
	query := `UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2`
	result, err := db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}
