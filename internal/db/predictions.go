package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// The prediction_index table routes inbound webhook callbacks: one row per
// externally-issued job ID, written at submission time, read at webhook time,
// never mutated.

func (db *DB) CreatePredictionMapping(ctx context.Context, predictionID string, projectID uuid.UUID) error {
	query := `
		INSERT INTO prediction_index (prediction_id, project_id)
		VALUES ($1, $2)
		ON CONFLICT (prediction_id) DO NOTHING
	`
	_, err := db.ExecContext(ctx, query, predictionID, projectID)
	if err != nil {
		return fmt.Errorf("failed to create prediction mapping: %w", err)
	}
	return nil
}

func (db *DB) GetProjectIDForPrediction(ctx context.Context, predictionID string) (uuid.UUID, error) {
	query := `SELECT project_id FROM prediction_index WHERE prediction_id = $1`

	var projectID uuid.UUID
	err := db.QueryRowContext(ctx, query, predictionID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("prediction %s: %w", predictionID, ErrUnknownJob)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	return projectID, nil
}

// DeletePredictionMapping compacts the index once a prediction has resolved
// terminally. Best effort — a dangling row only costs a lookup.
func (db *DB) DeletePredictionMapping(ctx context.Context, predictionID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM prediction_index WHERE prediction_id = $1`, predictionID)
	return err
}
