package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums

type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeVideo AssetType = "video"
)

type TTSProvider string

const (
	TTSProviderOpenAI     TTSProvider = "openai"
	TTSProviderElevenLabs TTSProvider = "elevenlabs"
)

type VideoLayoutType string

const (
	LayoutTopBottom    VideoLayoutType = "TOP_BOTTOM"
	LayoutAvatarBubble VideoLayoutType = "AVATAR_BUBBLE"
)

type AspectRatio string

const (
	AspectRatioSquare      AspectRatio = "1:1"
	AspectRatioNineSixteen AspectRatio = "9:16"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// AssetList stores the project's ordered asset descriptors as a JSONB column.
type AssetList []Asset

func (a AssetList) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal([]Asset{})
	}
	return json.Marshal(a)
}

func (a *AssetList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Models

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ProductLink *string   `json:"product_link,omitempty"`
	LogoURL     *string   `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor is a stock presenter whose portrait video feeds the lip-sync renderer.
type Actor struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Gender            string    `json:"gender"`
	FullVideoURL      string    `json:"full_video_url"`
	ThumbnailImageURL *string   `json:"thumbnail_image_url,omitempty"`
	DefaultVoiceID    uuid.UUID `json:"default_voice_id"`
}

type Voice struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Gender          string      `json:"gender"`
	Provider        TTSProvider `json:"provider"`
	VoiceIdentifier string      `json:"voice_identifier"` // provider-specific voice ID ("nova", an ElevenLabs voice ID, ...)
	SampleAudioURL  *string     `json:"sample_audio_url,omitempty"`
}

type VideoLayout struct {
	ID           uuid.UUID       `json:"id"`
	Name         VideoLayoutType `json:"name"`
	Description  *string         `json:"description,omitempty"`
	ThumbnailURL *string         `json:"thumbnail_url,omitempty"`
}

// Asset is one user-supplied image or clip used by the montage branch.
// LocalPath points into the project's working directory on local disk.
type Asset struct {
	Type        AssetType `json:"type"`
	LocalPath   string    `json:"local_path"`
	Description *string   `json:"description,omitempty"`
}

// VideoConfiguration captures the creative brief set during the draft phase.
type VideoConfiguration struct {
	DurationSeconds int    `json:"duration_seconds"`
	TargetAudience  string `json:"target_audience"`
	CTA             string `json:"cta"`
	Direction       string `json:"direction"`
}

func (v VideoConfiguration) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VideoConfiguration) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// Project is the aggregate tracking one ad-video generation request end to end.
//
// Assets, FinalScript, VoiceID and LayoutID are mutable only during the
// configuration phase; once generation starts they are read-only. The two
// generation branches populate LipsyncVideoPath and AssetMontagePath
// independently — presence of both is the convergence condition for final
// assembly.
type Project struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	ProductID uuid.UUID     `json:"product_id"`
	Status    ProjectStatus `json:"status"`

	VideoConfiguration *VideoConfiguration `json:"video_configuration,omitempty"`
	FinalScript        *string             `json:"final_script,omitempty"`
	Assets             AssetList           `json:"assets,omitempty"`

	ActorID  *uuid.UUID `json:"actor_id,omitempty"`
	VoiceID  *uuid.UUID `json:"voice_id,omitempty"`
	LayoutID *uuid.UUID `json:"layout_id,omitempty"`

	// Denormalized collaborator snapshots so pipeline stages don't need
	// catalog lookups mid-flight.
	ActorVideoURL   *string          `json:"actor_video_url,omitempty"`
	VoiceProvider   *TTSProvider     `json:"voice_provider,omitempty"`
	VoiceIdentifier *string          `json:"voice_identifier,omitempty"`
	LayoutName      *VideoLayoutType `json:"layout_name,omitempty"`

	// Branch A (voice + lip-sync) outputs
	TTSAudioURL      *string  `json:"tts_audio_url,omitempty"`
	AudioDurationSec *float64 `json:"audio_duration_sec,omitempty"`
	LipsyncJobID     *string  `json:"lipsync_job_id,omitempty"`
	LipsyncVideoPath *string  `json:"lipsync_video_path,omitempty"`

	// Branch B (asset montage) output
	AssetMontagePath *string `json:"asset_montage_path,omitempty"`

	FinalVideoURL *string `json:"final_video_url,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch refreshes UpdatedAt. Diagnostics only — never used for concurrency control.
func (p *Project) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// DTOs for API requests and responses

type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ProductLink *string `json:"product_link,omitempty"`
}

type CreateProjectRequest struct {
	ProductID uuid.UUID `json:"product_id"`
}

type CreateProjectResponse struct {
	ProjectID uuid.UUID     `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

type SelectActorVoiceRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
	VoiceID uuid.UUID `json:"voice_id"`
}

type SelectLayoutRequest struct {
	LayoutID uuid.UUID `json:"layout_id"`
}

type GenerateScriptResponse struct {
	ScriptGenerated bool   `json:"script_generated"`
	Script          string `json:"script"`
}

type StartGenerationResponse struct {
	GenerationStarted bool   `json:"generation_started"`
	Message           string `json:"message"`
}

type ProjectStatusResponse struct {
	Status        ProjectStatus `json:"status"`
	Message       string        `json:"message"`
	FinalVideoURL *string       `json:"final_video_url,omitempty"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
}

// ReplicateWebhookPayload is the body the external lip-sync renderer POSTs
// back. Output is a URL string on success, null otherwise.
type ReplicateWebhookPayload struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Output *string `json:"output"`
	Error  *string `json:"error,omitempty"`
}
