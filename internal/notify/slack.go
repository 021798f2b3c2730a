package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelami/reelads/internal/models"
)

// SlackNotifier posts generation outcomes to a Slack incoming webhook so the
// team sees every finished or failed ad in one channel.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

func (s *SlackNotifier) ProjectCompleted(ctx context.Context, project *models.Project, userEmail string) error {
	videoURL := ""
	if project.FinalVideoURL != nil {
		videoURL = *project.FinalVideoURL
	}
	text := fmt.Sprintf(":white_check_mark: Ad video completed\nProject: %s\nUser: %s\nVideo: %s",
		project.ID, userEmail, videoURL)
	return s.post(ctx, text)
}

func (s *SlackNotifier) ProjectFailed(ctx context.Context, project *models.Project, userEmail, reason string) error {
	text := fmt.Sprintf(":x: Ad video failed\nProject: %s\nUser: %s\nStatus: %s\nReason: %s",
		project.ID, userEmail, project.Status, reason)
	return s.post(ctx, text)
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
