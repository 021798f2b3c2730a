package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// ---------------------------------------------------------------------------
// Replicate lip-sync renderer
//
// Submits a MuseTalk prediction (actor portrait video + voice-over audio) and
// registers a webhook for completion. The prediction runs for minutes on the
// external service; this client never blocks waiting for it — resumption is
// driven entirely by the webhook callback.
// ---------------------------------------------------------------------------

const (
	replicateBaseURL = "https://api.replicate.com/v1"

	// MuseTalk model version pinned for reproducible output.
	museTalkVersion = "5501004e78525e4bbd9fa20d1e75ad51fddce5a274bec07b9b16d685e34eeaf8"

	replicateSubmitTimeout   = 30 * time.Second
	replicateDownloadTimeout = 5 * time.Minute
)

type ReplicateService struct {
	apiToken   string
	webhookURL string
	client     *http.Client
}

// NewReplicateService creates the client. webhookURL is the publicly
// reachable endpoint the renderer calls back on completion.
func NewReplicateService(apiToken, webhookURL string) *ReplicateService {
	return &ReplicateService{
		apiToken:   apiToken,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: replicateDownloadTimeout},
	}
}

type replicatePredictionRequest struct {
	Version             string            `json:"version"`
	Input               map[string]string `json:"input"`
	Webhook             string            `json:"webhook"`
	WebhookEventsFilter []string          `json:"webhook_events_filter"`
}

type replicatePredictionResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Error  *string `json:"error"`
}

// SubmitLipsyncJob starts a lip-sync render and returns the prediction ID.
// The returned ID is the key webhook callbacks are routed by.
func (s *ReplicateService) SubmitLipsyncJob(ctx context.Context, videoURL, audioURL string) (string, error) {
	reqBody := replicatePredictionRequest{
		Version: museTalkVersion,
		Input: map[string]string{
			"video_input": videoURL,
			"audio_input": audioURL,
		},
		Webhook:             s.webhookURL,
		WebhookEventsFilter: []string{"completed"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, replicateSubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(submitCtx, "POST", replicateBaseURL+"/predictions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create prediction request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Replicate] Submitting lip-sync prediction (video=%s, webhook=%s)", videoURL, s.webhookURL)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("replicate returned status %d: %s", resp.StatusCode, string(body))
	}

	var prediction replicatePredictionResponse
	if err := json.Unmarshal(body, &prediction); err != nil {
		return "", fmt.Errorf("failed to parse prediction response: %w", err)
	}

	if prediction.ID == "" {
		return "", fmt.Errorf("replicate returned no prediction id: %s", string(body))
	}

	log.Printf("[Replicate] Prediction submitted (id=%s, status=%s)", prediction.ID, prediction.Status)

	return prediction.ID, nil
}

// DownloadOutput fetches the rendered video the webhook reported and writes
// it to outputPath.
func (s *ReplicateService) DownloadOutput(ctx context.Context, outputURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", outputURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download lip-sync output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lip-sync output download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write lip-sync output: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lip-sync output was empty")
	}

	log.Printf("[Replicate] Downloaded lip-sync output (%d bytes) to %s", n, outputPath)

	return nil
}
