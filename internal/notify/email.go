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

const resendAPIURL = "https://api.resend.com/emails"

// EmailNotifier emails the project owner when their ad finishes rendering.
// Uses the Resend HTTP API.
type EmailNotifier struct {
	apiKey      string
	fromAddress string
	client      *http.Client
}

var _ Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(apiKey, fromAddress string) *EmailNotifier {
	return &EmailNotifier{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (e *EmailNotifier) ProjectCompleted(ctx context.Context, project *models.Project, userEmail string) error {
	if userEmail == "" {
		return nil
	}

	videoURL := ""
	if project.FinalVideoURL != nil {
		videoURL = *project.FinalVideoURL
	}

	html := fmt.Sprintf(
		"<p>Your ad video is ready.</p><p><a href=%q>Watch it here</a></p>",
		videoURL,
	)

	return e.send(ctx, userEmail, "Your ad video is ready", html)
}

func (e *EmailNotifier) ProjectFailed(ctx context.Context, project *models.Project, userEmail, reason string) error {
	if userEmail == "" {
		return nil
	}

	html := fmt.Sprintf(
		"<p>We could not finish generating your ad video.</p><p>Reason: %s</p><p>Your credit has not been lost; please try again or contact support.</p>",
		reason,
	)

	return e.send(ctx, userEmail, "Your ad video generation failed", html)
}

func (e *EmailNotifier) send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(resendRequest{
		From:    e.fromAddress,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", resendAPIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
