// Package notify fans attendance events out to admin observers. Delivery is
// best-effort and at-most-once; the pipeline never blocks on it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"faceattend/internal/config"
)

type Notifier interface {
	Publish(ctx context.Context, topic string, event any)
}

// LogNotifier is the default sink when no webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(ctx context.Context, topic string, event any) {
	_ = ctx
	raw, err := json.Marshal(event)
	if err != nil {
		log.Printf("notify marshal failed topic=%s err=%v", topic, err)
		return
	}
	log.Printf("notify topic=%s event=%s", topic, raw)
}

// WebhookNotifier POSTs events to an admin dashboard endpoint. Failures are
// logged and dropped; there is no retry.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewNotifier(cfg config.Config) Notifier {
	if cfg.NotifierMode == "webhook" && strings.TrimSpace(cfg.NotifierWebhookURL) != "" {
		return &WebhookNotifier{
			url:    strings.TrimSpace(cfg.NotifierWebhookURL),
			client: &http.Client{Timeout: 5 * time.Second},
		}
	}
	return LogNotifier{}
}

func (n *WebhookNotifier) Publish(ctx context.Context, topic string, event any) {
	payload, err := json.Marshal(map[string]any{
		"topic":   topic,
		"event":   event,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("notify marshal failed topic=%s err=%v", topic, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("notify request failed topic=%s err=%v", topic, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("notify delivery failed topic=%s err=%v", topic, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("notify delivery rejected topic=%s status=%d", topic, resp.StatusCode)
	}
}
