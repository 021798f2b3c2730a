package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelami/reelads/internal/models"
)

// Catalog lookups backing the configuration phase: products, actors, voices
// and layouts are plain reference data the client picks from.

func (db *DB) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (id, user_id, name, description, product_link, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		product.ID, product.UserID, product.Name, product.Description,
		product.ProductLink, product.LogoURL,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
}

func (db *DB) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `
		SELECT id, user_id, name, description, product_link, logo_url, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &models.Product{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID, &product.UserID, &product.Name, &product.Description,
		&product.ProductLink, &product.LogoURL, &product.CreatedAt, &product.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

func (db *DB) GetActor(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	query := `
		SELECT id, name, gender, full_video_url, thumbnail_image_url, default_voice_id
		FROM actors
		WHERE id = $1
	`

	actor := &models.Actor{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&actor.ID, &actor.Name, &actor.Gender, &actor.FullVideoURL,
		&actor.ThumbnailImageURL, &actor.DefaultVoiceID,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("actor: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	return actor, nil
}

func (db *DB) ListActors(ctx context.Context) ([]models.Actor, error) {
	query := `
		SELECT id, name, gender, full_video_url, thumbnail_image_url, default_voice_id
		FROM actors
		ORDER BY name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	defer rows.Close()

	var actors []models.Actor
	for rows.Next() {
		var a models.Actor
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Gender, &a.FullVideoURL,
			&a.ThumbnailImageURL, &a.DefaultVoiceID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan actor: %w", err)
		}
		actors = append(actors, a)
	}

	return actors, rows.Err()
}

func (db *DB) GetVoice(ctx context.Context, id uuid.UUID) (*models.Voice, error) {
	query := `
		SELECT id, name, gender, provider, voice_identifier, sample_audio_url
		FROM voices
		WHERE id = $1
	`

	voice := &models.Voice{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&voice.ID, &voice.Name, &voice.Gender, &voice.Provider,
		&voice.VoiceIdentifier, &voice.SampleAudioURL,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("voice: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice: %w", err)
	}

	return voice, nil
}

func (db *DB) ListVoices(ctx context.Context) ([]models.Voice, error) {
	query := `
		SELECT id, name, gender, provider, voice_identifier, sample_audio_url
		FROM voices
		ORDER BY name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	defer rows.Close()

	var voices []models.Voice
	for rows.Next() {
		var v models.Voice
		if err := rows.Scan(
			&v.ID, &v.Name, &v.Gender, &v.Provider,
			&v.VoiceIdentifier, &v.SampleAudioURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan voice: %w", err)
		}
		voices = append(voices, v)
	}

	return voices, rows.Err()
}

func (db *DB) GetVideoLayout(ctx context.Context, id uuid.UUID) (*models.VideoLayout, error) {
	query := `
		SELECT id, name, description, thumbnail_url
		FROM video_layouts
		WHERE id = $1
	`

	layout := &models.VideoLayout{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&layout.ID, &layout.Name, &layout.Description, &layout.ThumbnailURL,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video layout: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video layout: %w", err)
	}

	return layout, nil
}

func (db *DB) ListVideoLayouts(ctx context.Context) ([]models.VideoLayout, error) {
	query := `
		SELECT id, name, description, thumbnail_url
		FROM video_layouts
		ORDER BY name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list video layouts: %w", err)
	}
	defer rows.Close()

	var layouts []models.VideoLayout
	for rows.Next() {
		var l models.VideoLayout
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.ThumbnailURL); err != nil {
			return nil, fmt.Errorf("failed to scan video layout: %w", err)
		}
		layouts = append(layouts, l)
	}

	return layouts, rows.Err()
}
