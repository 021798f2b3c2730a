package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelami/reelads/internal/queue"
)

func newWebhookHandler(t *testing.T) (*Handler, *queue.Queue) {
	t.Helper()

	mr := miniredis.RunT(t)
	q, err := queue.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	// The webhook path touches only the queue
	return NewHandler(nil, q, nil, nil, nil, t.TempDir()), q
}

func postWebhook(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/webhook/replicate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ReplicateWebhook(rec, req)
	return rec
}

func TestReplicateWebhookAcknowledgesAndEnqueues(t *testing.T) {
	h, q := newWebhookHandler(t)

	rec := postWebhook(t, h, `{"id":"pred-1","status":"succeeded","output":"https://cdn.example.com/out.mp4"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())

	job, err := q.Dequeue(context.Background(), queue.QueueReconcile, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "pred-1", job.PredictionID)
	assert.Equal(t, queue.OutcomeSucceeded, job.Outcome)
	assert.Equal(t, "https://cdn.example.com/out.mp4", job.OutputURL)
}

func TestReplicateWebhookFailedOutcome(t *testing.T) {
	h, q := newWebhookHandler(t)

	rec := postWebhook(t, h, `{"id":"pred-2","status":"failed","output":null,"error":"oom"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	job, err := q.Dequeue(context.Background(), queue.QueueReconcile, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.OutcomeFailed, job.Outcome)
	assert.Empty(t, job.OutputURL)
}

func TestReplicateWebhookUnknownStatusStillAcknowledged(t *testing.T) {
	h, q := newWebhookHandler(t)

	// Statuses this deployment doesn't understand are the worker's problem,
	// not the sender's
	rec := postWebhook(t, h, `{"id":"pred-3","status":"processing"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	job, err := q.Dequeue(context.Background(), queue.QueueReconcile, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.OutcomeUnknown, job.Outcome)
}

func TestReplicateWebhookRejectsBadPayload(t *testing.T) {
	h, q := newWebhookHandler(t)

	rec := postWebhook(t, h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postWebhook(t, h, `{"status":"succeeded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing prediction id")

	length, err := q.GetQueueLength(context.Background(), queue.QueueReconcile)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestReplicateWebhookDuplicateDeliveriesBothAccepted(t *testing.T) {
	h, q := newWebhookHandler(t)

	body := `{"id":"pred-4","status":"succeeded","output":"https://cdn.example.com/out.mp4"}`
	assert.Equal(t, http.StatusOK, postWebhook(t, h, body).Code)
	assert.Equal(t, http.StatusOK, postWebhook(t, h, body).Code)

	// Dedup happens at the status gate in the worker, not at the edge
	length, err := q.GetQueueLength(context.Background(), queue.QueueReconcile)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}
