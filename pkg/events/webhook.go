package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// WebhookNotifier forwards every published Event to a single operator
// configured URL, bearer-signing the request with a short-lived JWT the
// way the teacher's pkg/auth issues HS256 tokens (spec.md §4.8's
// "notification hook", SPEC_FULL.md §B). Delivery is best-effort: a failed
// or slow webhook must never block EventBus.Publish, so WebhookNotifier
// subscribes and drains its channel on its own goroutine.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
	logger logging.Logger
}

// NewWebhookNotifier builds a WebhookNotifier for url, signing each
// delivery with secret.
func NewWebhookNotifier(url string, secret []byte, logger logging.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger.With(logging.Component("webhook_notifier")),
	}
}

// Run subscribes to bus and delivers events until ctx is cancelled.
func (w *WebhookNotifier) Run(ctx context.Context, bus *Bus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := w.deliver(ctx, ev); err != nil {
				w.logger.Warn("webhook delivery failed", logging.String("kind", ev.Kind), logging.Error(err))
			}
		}
	}
}

func (w *WebhookNotifier) deliver(ctx context.Context, ev model.Event) error {
	token, err := w.sign(ev)
	if err != nil {
		return fmt.Errorf("failed to sign notification token: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// sign produces a short-lived HS256 token authenticating this delivery,
// scoped to the event's kind and node so the receiver can dedupe retries.
func (w *WebhookNotifier) sign(ev model.Event) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"node_id": ev.NodeID,
		"kind":    ev.Kind,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(w.secret)
}
