package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/reelami/reelads/internal/models"
)

const projectColumns = `
	id, user_id, product_id, status, video_configuration, final_script,
	assets, actor_id, voice_id, layout_id, actor_video_url, voice_provider,
	voice_identifier, layout_name, tts_audio_url, audio_duration_sec,
	lipsync_job_id, lipsync_video_path, asset_montage_path, final_video_url,
	error_message, created_at, updated_at
`

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.ProductID, &p.Status, &p.VideoConfiguration,
		&p.FinalScript, &p.Assets, &p.ActorID, &p.VoiceID, &p.LayoutID,
		&p.ActorVideoURL, &p.VoiceProvider, &p.VoiceIdentifier, &p.LayoutName,
		&p.TTSAudioURL, &p.AudioDurationSec, &p.LipsyncJobID,
		&p.LipsyncVideoPath, &p.AssetMontagePath, &p.FinalVideoURL,
		&p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return p, nil
}

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(db.QueryRowContext(ctx, query, id))
}

// UpsertProject writes the full aggregate snapshot. Persistence is best
// effort and eventually written — targeted setters below handle the fields
// that race between concurrent branches.
func (db *DB) UpsertProject(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (
			id, user_id, product_id, status, video_configuration, final_script,
			assets, actor_id, voice_id, layout_id, actor_video_url, voice_provider,
			voice_identifier, layout_name, tts_audio_url, audio_duration_sec,
			lipsync_job_id, lipsync_video_path, asset_montage_path, final_video_url,
			error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			video_configuration = EXCLUDED.video_configuration,
			final_script = EXCLUDED.final_script,
			assets = EXCLUDED.assets,
			actor_id = EXCLUDED.actor_id,
			voice_id = EXCLUDED.voice_id,
			layout_id = EXCLUDED.layout_id,
			actor_video_url = EXCLUDED.actor_video_url,
			voice_provider = EXCLUDED.voice_provider,
			voice_identifier = EXCLUDED.voice_identifier,
			layout_name = EXCLUDED.layout_name,
			tts_audio_url = EXCLUDED.tts_audio_url,
			audio_duration_sec = EXCLUDED.audio_duration_sec,
			lipsync_job_id = EXCLUDED.lipsync_job_id,
			lipsync_video_path = EXCLUDED.lipsync_video_path,
			asset_montage_path = EXCLUDED.asset_montage_path,
			final_video_url = EXCLUDED.final_video_url,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		p.ID, p.UserID, p.ProductID, p.Status, p.VideoConfiguration,
		p.FinalScript, p.Assets, p.ActorID, p.VoiceID, p.LayoutID,
		p.ActorVideoURL, p.VoiceProvider, p.VoiceIdentifier, p.LayoutName,
		p.TTSAudioURL, p.AudioDurationSec, p.LipsyncJobID, p.LipsyncVideoPath,
		p.AssetMontagePath, p.FinalVideoURL, p.ErrorMessage,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// TransitionProjectStatus performs a conditional status update: the write
// applies only if the current status is one of the event's legal sources.
// Returns false when another writer won the edge first — callers treat that
// as a no-op, which is what makes duplicate webhooks and racing branches
// idempotent.
func (db *DB) TransitionProjectStatus(ctx context.Context, id uuid.UUID, event models.StatusEvent) (bool, error) {
	sources := models.EventSources(event)
	if len(sources) == 0 {
		return false, fmt.Errorf("%w: unknown event %q", models.ErrInvalidTransition, event)
	}

	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	query := `
		UPDATE projects
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`
	result, err := db.ExecContext(ctx, query, models.EventTarget(event), id, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition project status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

func (db *DB) UpdateProjectError(ctx context.Context, id uuid.UUID, status models.ProjectStatus, errorMessage string) error {
	query := `
		UPDATE projects
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, status, errorMessage, id)
	return err
}

func (db *DB) SetProjectVoiceOver(ctx context.Context, id uuid.UUID, audioURL string, durationSec float64) error {
	query := `
		UPDATE projects
		SET tts_audio_url = $1, audio_duration_sec = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, audioURL, durationSec, id)
	return err
}

func (db *DB) SetProjectLipsyncJob(ctx context.Context, id uuid.UUID, jobID string) error {
	query := `UPDATE projects SET lipsync_job_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, jobID, id)
	return err
}

func (db *DB) SetProjectLipsyncVideo(ctx context.Context, id uuid.UUID, localPath string) error {
	query := `UPDATE projects SET lipsync_video_path = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, localPath, id)
	return err
}

func (db *DB) SetProjectAssetMontage(ctx context.Context, id uuid.UUID, localPath string) error {
	query := `UPDATE projects SET asset_montage_path = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, localPath, id)
	return err
}

func (db *DB) SetProjectFinalVideo(ctx context.Context, id uuid.UUID, url string) error {
	query := `UPDATE projects SET final_video_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, url, id)
	return err
}
