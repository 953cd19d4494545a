package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// WebhookResult is a provider callback after signature verification.
type WebhookResult struct {
	Valid   bool
	OrderID string
	// Status is the provider's payment state in its own vocabulary.
	Status string
}

// Provider verifies and decodes an inbound webhook for one payment provider.
type Provider interface {
	VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error)
}

type webhookPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// HMACProvider verifies callbacks signed with an HMAC-SHA256 of the raw body
// carried in the X-Signature header. An empty secret accepts everything,
// which is only acceptable in development.
type HMACProvider struct {
	Secret string
}

// VerifyWebhook implements Provider.
func (p HMACProvider) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookResult{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.OrderID == "" || payload.Status == "" {
		return WebhookResult{}, errors.New("orderId and status are required")
	}
	result := WebhookResult{OrderID: payload.OrderID, Status: payload.Status}
	if p.Secret == "" {
		result.Valid = true
		return result, nil
	}
	mac := hmac.New(sha256.New, []byte(p.Secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	got := r.Header.Get("X-Signature")
	result.Valid = hmac.Equal([]byte(want), []byte(got))
	return result, nil
}
