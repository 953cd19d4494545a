package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/payment"
)

type memOrders struct {
	orders map[uuid.UUID]order.Order
}

func (s *memOrders) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *memOrders) CreateOrder(_ context.Context, o order.Order) error {
	s.orders[o.ID] = o
	return nil
}

func (s *memOrders) UpdateOrder(_ context.Context, o order.Order) (order.Order, error) {
	current := s.orders[o.ID]
	if current.Version != o.Version {
		return order.Order{}, order.ErrConflict
	}
	o.Version++
	s.orders[o.ID] = o
	return o, nil
}

const secret = "whsec"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhook(t *testing.T) (payment.Webhook, *memOrders, uuid.UUID) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	id := uuid.New()
	store := &memOrders{orders: map[uuid.UUID]order.Order{
		id: {
			ID:       id,
			Channel:  order.ChannelRetail,
			Status:   order.StatusPending,
			Payment:  order.PaymentPending,
			Total:    money.Cents(5000, "USD"),
			Currency: "USD",
			Version:  1,
		},
	}}
	h := payment.Webhook{
		Orders:    &order.Service{Store: store, Logger: zerolog.Nop()},
		Provider:  payment.HMACProvider{Secret: secret},
		Replay:    client,
		ReplayTTL: time.Hour,
	}
	return h, store, id
}

func post(h payment.Webhook, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Signature", signature)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestSettlementMarksOrderPaid(t *testing.T) {
	h, store, id := newWebhook(t)
	body := []byte(`{"orderId":"` + id.String() + `","status":"settlement"}`)

	rec := post(h, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, order.PaymentPaid, store.orders[id].Payment)
}

func TestBadSignatureRejected(t *testing.T) {
	h, store, id := newWebhook(t)
	body := []byte(`{"orderId":"` + id.String() + `","status":"settlement"}`)

	rec := post(h, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, order.PaymentPending, store.orders[id].Payment)
}

func TestReplayRejectedBeforeOrderTouch(t *testing.T) {
	h, store, id := newWebhook(t)
	body := []byte(`{"orderId":"` + id.String() + `","status":"settlement"}`)

	require.Equal(t, http.StatusOK, post(h, body, sign(body)).Code)
	rec := post(h, body, sign(body))
	require.Equal(t, http.StatusConflict, rec.Code)
	// first delivery stands
	require.Equal(t, order.PaymentPaid, store.orders[id].Payment)
}

func TestUnknownStatusRejected(t *testing.T) {
	h, _, id := newWebhook(t)
	body := []byte(`{"orderId":"` + id.String() + `","status":"mystery"}`)

	rec := post(h, body, sign(body))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRefundBeforePaymentIsInvalid(t *testing.T) {
	h, store, id := newWebhook(t)
	body := []byte(`{"orderId":"` + id.String() + `","status":"refund"}`)

	rec := post(h, body, sign(body))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, order.PaymentPending, store.orders[id].Payment)
}
