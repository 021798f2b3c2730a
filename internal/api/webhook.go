package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/reelami/reelads/internal/models"
	"github.com/reelami/reelads/internal/queue"
)

// ReplicateWebhook handles POST /webhook/replicate, the callback the lip-sync
// renderer fires when a prediction finishes.
//
// The handler does no pipeline work itself. It validates the payload shape,
// enqueues a reconcile job, and acknowledges — always with the same body, so
// the sender never retries a delivery we have accepted. Duplicate and unknown
// deliveries are the reconcile worker's problem; a webhook endpoint that does
// real work while the sender's timeout runs is how deliveries get redelivered.
func (h *Handler) ReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.ReplicateWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if payload.ID == "" {
		respondError(w, http.StatusBadRequest, "Missing prediction id")
		return
	}

	outcome := outcomeFor(payload.Status)
	outputURL := ""
	if payload.Output != nil {
		outputURL = *payload.Output
	}

	log.Printf("[Webhook] prediction %s reported %s", payload.ID, payload.Status)

	if err := h.queue.EnqueueReconcile(r.Context(), payload.ID, outcome, outputURL); err != nil {
		log.Printf("[Webhook] failed to enqueue reconcile for prediction %s: %v", payload.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to accept webhook")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func outcomeFor(status string) string {
	switch status {
	case "succeeded":
		return queue.OutcomeSucceeded
	case "failed":
		return queue.OutcomeFailed
	case "canceled":
		return queue.OutcomeCanceled
	default:
		return queue.OutcomeUnknown
	}
}
