package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/promiseland/internal/crypto"
)

// Webhook signature headers.
const (
	HeaderWebhookTimestamp = "X-PL-Webhook-Timestamp"
	HeaderWebhookSignature = "X-PL-Webhook-Signature"
)

// WebhookSender posts JSON notifications to an arbitrary URL, signed with
// HMAC-SHA256 when a secret is configured.
type WebhookSender struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookSender creates a WebhookSender.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Send posts {"title": ..., "message": ...}.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(map[string]string{"title": title, "message": message})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var headers map[string]string
	if len(w.secret) > 0 {
		ts := w.now().Unix()
		headers = map[string]string{
			HeaderWebhookTimestamp: strconv.FormatInt(ts, 10),
			HeaderWebhookSignature: crypto.WebhookSignature(w.secret, ts, body),
		}
	}
	return postJSON(ctx, w.client, "webhook", w.url, body, headers)
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
