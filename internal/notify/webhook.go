// Package notify posts run completion webhooks. Delivery is
// best-effort: failures are logged and never fail the run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"retflow/internal/observability"
	"retflow/pkg/models"
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	RunID     string            `json:"run_id"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Stages    map[string]string `json:"stages,omitempty"`
}

// Notifier posts run events to a configured webhook.
type Notifier struct {
	url    string
	events map[string]bool
	client *http.Client
	logger *observability.Logger
}

// NewNotifier creates a notifier from the config. A nil notifier is
// returned when no webhook is configured; its methods are no-ops.
func NewNotifier(cfg models.Notify, logger *observability.Logger) *Notifier {
	if cfg.WebhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = observability.Default()
	}

	events := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = true
	}
	if len(events) == 0 {
		events["completed"] = true
		events["failed"] = true
	}

	return &Notifier{
		url:    cfg.WebhookURL,
		events: events,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// RunCompleted posts a completion event.
func (n *Notifier) RunCompleted(ctx context.Context, runID string, duration time.Duration, stages map[string]string) {
	n.send(ctx, Payload{
		Event:     "completed",
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Success:   true,
		Duration:  duration.String(),
		Stages:    stages,
	})
}

// RunFailed posts a failure event.
func (n *Notifier) RunFailed(ctx context.Context, runID string, runErr error, stages map[string]string) {
	payload := Payload{
		Event:     "failed",
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Success:   false,
		Stages:    stages,
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	n.send(ctx, payload)
}

func (n *Notifier) send(ctx context.Context, payload Payload) {
	if n == nil || !n.events[payload.Event] {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("webhook payload encoding failed", map[string]interface{}{"error": err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook request build failed", map[string]interface{}{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", map[string]interface{}{
			"url":   n.url,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected", map[string]interface{}{
			"url":    n.url,
			"status": fmt.Sprintf("%d", resp.StatusCode),
		})
	}
}
