package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/notify"
)

func TestEventsAreMirroredToWebhookQueue(t *testing.T) {
	bus, q := newFixture(t, func(d *notify.Dispatcher) {
		d.ForwardWebhooks = true
	})

	err := bus.Publish(context.Background(), events.TopicOrderShipped, events.OrderShipped{
		ID:             "o1",
		TrackingNumber: "TRK-1",
		Email:          "buyer@example.com",
	})
	require.NoError(t, err)

	var webhooks []notify.WebhookPayload
	for _, task := range q.tasks {
		if task.Type() != notify.TypeWebhookDelivery {
			continue
		}
		var p notify.WebhookPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		webhooks = append(webhooks, p)
	}
	require.Len(t, webhooks, 1)
	require.Equal(t, events.TopicOrderShipped, webhooks[0].Topic)
	require.NotEmpty(t, webhooks[0].EventID)

	var body events.OrderShipped
	require.NoError(t, json.Unmarshal(webhooks[0].Body, &body))
	require.Equal(t, "TRK-1", body.TrackingNumber)
}

func TestWebhookSinkSignsDeliveries(t *testing.T) {
	var gotSig, gotTopic string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotTopic = r.Header.Get("X-Webhook-Topic")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	task, err := notify.NewWebhookTask(notify.WebhookPayload{
		EventID: "ev1",
		Topic:   events.TopicOrderCreated,
		Body:    json.RawMessage(`{"id":"o1"}`),
	})
	require.NoError(t, err)

	sink := &notify.WebhookSink{
		URL:    srv.URL,
		Secret: "shh",
		Client: srv.Client(),
		Logger: zerolog.Nop(),
	}
	require.NoError(t, sink.HandleWebhookDelivery(context.Background(), task))
	require.Equal(t, events.TopicOrderCreated, gotTopic)
	require.NotEmpty(t, gotSig)
	require.NotEmpty(t, gotBody)
}

func TestWebhookSinkRetriesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	task, err := notify.NewWebhookTask(notify.WebhookPayload{
		EventID: "ev1",
		Topic:   events.TopicOrderCreated,
		Body:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	sink := &notify.WebhookSink{URL: srv.URL, Client: srv.Client(), Logger: zerolog.Nop()}
	require.Error(t, sink.HandleWebhookDelivery(context.Background(), task))
}

func TestValidateWebhookURL(t *testing.T) {
	require.NoError(t, notify.ValidateWebhookURL("https://hooks.example.com/maison"))
	require.NoError(t, notify.ValidateWebhookURL("http://localhost:9999/hook"))
	require.Error(t, notify.ValidateWebhookURL("http://evil.example.com/hook"))
	require.Error(t, notify.ValidateWebhookURL("ftp://example.com/hook"))
}
