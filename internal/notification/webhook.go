package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"botrader/internal/model"
)

// WebhookNotifier POSTs notifications as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST notifications to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	ID          string        `json:"id"`
	Variant     model.Variant `json:"variant"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Spotlight   bool          `json:"spotlight"`
	TS          string        `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(webhookPayload{
		ID:          n.ID,
		Variant:     n.Variant,
		Title:       n.Title,
		Description: n.Description,
		Spotlight:   n.Spotlight,
		TS:          n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	slog.DebugContext(ctx, "webhook delivered", "url", w.url, "id", n.ID)
	return nil
}
