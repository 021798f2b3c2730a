package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueVoiceLipsync = "queue:voice_lipsync"
	QueueAssetMontage = "queue:asset_montage"
	QueuePostProcess  = "queue:post_process"
	QueueReconcile    = "queue:reconcile"
)

// Outcome values carried by reconcile jobs, mirroring the external renderer's
// webhook statuses.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeUnknown   = "unknown"
)

type Queue struct {
	client *redis.Client
}

// Job is the unit of background work. ProjectID drives the two branch queues
// and post-processing; PredictionID/Outcome/OutputURL are set only on
// reconcile jobs, where the project must first be resolved via the
// prediction index.
type Job struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	ProjectID    uuid.UUID `json:"project_id,omitempty"`
	PredictionID string    `json:"prediction_id,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	OutputURL    string    `json:"output_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueVoiceLipsync schedules Branch A: TTS then lip-sync job submission.
func (q *Queue) EnqueueVoiceLipsync(ctx context.Context, projectID uuid.UUID) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "voice_lipsync",
		ProjectID: projectID,
	}
	return q.Enqueue(ctx, QueueVoiceLipsync, job)
}

// EnqueueAssetMontage schedules Branch B: the asset montage render.
func (q *Queue) EnqueueAssetMontage(ctx context.Context, projectID uuid.UUID) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "asset_montage",
		ProjectID: projectID,
	}
	return q.Enqueue(ctx, QueueAssetMontage, job)
}

// EnqueuePostProcess schedules the convergent combine/captions/upload chain.
func (q *Queue) EnqueuePostProcess(ctx context.Context, projectID uuid.UUID) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "post_process",
		ProjectID: projectID,
	}
	return q.Enqueue(ctx, QueuePostProcess, job)
}

// EnqueueReconcile schedules processing of one webhook delivery from the
// external renderer.
func (q *Queue) EnqueueReconcile(ctx context.Context, predictionID, outcome, outputURL string) error {
	job := &Job{
		ID:           uuid.New(),
		Type:         "reconcile",
		PredictionID: predictionID,
		Outcome:      outcome,
		OutputURL:    outputURL,
	}
	return q.Enqueue(ctx, QueueReconcile, job)
}
