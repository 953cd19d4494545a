package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TypeWebhookDelivery is the asynq task type for outbound event webhooks.
const TypeWebhookDelivery = "webhook:deliver"

// WebhookPayload carries one domain event to the configured ops endpoint.
type WebhookPayload struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurredAt"`
	Body       json.RawMessage `json:"body"`
}

// NewWebhookTask builds an outbound webhook delivery task.
func NewWebhookTask(p WebhookPayload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode webhook payload: %w", err)
	}
	return asynq.NewTask(TypeWebhookDelivery, body, asynq.MaxRetry(8), asynq.Queue("notifications")), nil
}

// ValidateWebhookURL rejects endpoints the sink will never deliver to. Plain
// http is only allowed for loopback targets.
func ValidateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload.
// The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the sink secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeoutMs int) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// WebhookSink posts signed event payloads to a single operator endpoint. It
// runs in the worker process; asynq owns the retry schedule.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
	Logger zerolog.Logger
}

// HandleWebhookDelivery is the asynq handler for TypeWebhookDelivery tasks.
func (s *WebhookSink) HandleWebhookDelivery(ctx context.Context, t *asynq.Task) error {
	var p WebhookPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode webhook payload: %w", errors.Join(err, asynq.SkipRetry))
	}
	client := s.Client
	if client == nil {
		client = HTTPClient(0)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: encode webhook body: %w", errors.Join(err, asynq.SkipRetry))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Topic", p.Topic)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	if s.Secret != "" {
		req.Header.Set("X-Webhook-Signature", ComputeSignature(s.Secret, ts, p.EventID, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: webhook endpoint returned %d", resp.StatusCode)
	}
	s.Logger.Debug().Str("topic", p.Topic).Str("event_id", p.EventID).Msg("webhook delivered")
	return nil
}
