package notify_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/notify"
)

type stubQueue struct {
	tasks []*asynq.Task
}

func (q *stubQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func (q *stubQueue) payloads(t *testing.T) []notify.EmailPayload {
	t.Helper()
	out := make([]notify.EmailPayload, 0, len(q.tasks))
	for _, task := range q.tasks {
		var p notify.EmailPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		out = append(out, p)
	}
	return out
}

func newFixture(t *testing.T, mut func(*notify.Dispatcher)) (*events.Bus, *stubQueue) {
	t.Helper()
	bus := events.NewBus(events.Options{Logger: zerolog.Nop()})
	t.Cleanup(bus.Reset)
	q := &stubQueue{}
	d := &notify.Dispatcher{Tasks: q, Logger: zerolog.Nop(), AdminEmail: "ops@maison.example"}
	if mut != nil {
		mut(d)
	}
	_, err := d.Attach(bus)
	require.NoError(t, err)
	return bus, q
}

func TestOrderCreatedQueuesEmail(t *testing.T) {
	bus, q := newFixture(t, nil)

	err := bus.Publish(context.Background(), events.TopicOrderCreated, events.OrderCreated{
		ID:         "o1",
		CustomerID: "c1",
		Total:      11500,
		Currency:   "USD",
		Items:      []events.OrderItemRef{{ProductID: "p1", Quantity: 1}},
		Email:      "buyer@example.com",
	})
	require.NoError(t, err)

	payloads := q.payloads(t)
	require.Len(t, payloads, 1)
	require.Equal(t, "buyer@example.com", payloads[0].To)
	require.Equal(t, "Order received", payloads[0].Subject)
	require.Contains(t, payloads[0].HTML, "USD 115.00")
}

func TestMissingRecipientSkipsQuietly(t *testing.T) {
	bus, q := newFixture(t, nil)

	err := bus.Publish(context.Background(), events.TopicOrderShipped, events.OrderShipped{
		ID:             "o1",
		TrackingNumber: "TRK-1",
	})
	require.NoError(t, err)
	require.Empty(t, q.tasks)
}

func TestLowStockAlertsAdmin(t *testing.T) {
	bus, q := newFixture(t, nil)

	err := bus.Publish(context.Background(), events.TopicProductLowStock, events.ProductLowStock{
		ProductID:    "p1",
		VariantID:    "v1",
		CurrentStock: 2,
		Threshold:    5,
	})
	require.NoError(t, err)

	payloads := q.payloads(t)
	require.Len(t, payloads, 1)
	require.Equal(t, "ops@maison.example", payloads[0].To)
	require.Contains(t, payloads[0].Subject, "Low stock")
}

func TestTopicToggleSuppressesDelivery(t *testing.T) {
	bus, q := newFixture(t, func(d *notify.Dispatcher) {
		d.TopicToggles = map[string]bool{events.TopicOrderCancelled: false}
	})

	err := bus.Publish(context.Background(), events.TopicOrderCancelled, events.OrderCancelled{
		ID:    "o1",
		Email: "buyer@example.com",
	})
	require.NoError(t, err)
	require.Empty(t, q.tasks)
}

func TestWorkerDeliversQueuedEmail(t *testing.T) {
	task, err := notify.NewEmailTask(notify.EmailPayload{
		To:      "buyer@example.com",
		Subject: "Order received",
		HTML:    "<p>hi</p>",
		Topic:   events.TopicOrderCreated,
	})
	require.NoError(t, err)

	outbox := &common.InMemoryEmail{}
	worker := &notify.EmailWorker{Mail: outbox, Logger: zerolog.Nop()}
	require.NoError(t, worker.HandleEmailDelivery(context.Background(), task))

	require.Len(t, outbox.Outbox, 1)
	require.Equal(t, "buyer@example.com", outbox.Outbox[0].To)
	require.Equal(t, "Order received", outbox.Outbox[0].Subject)
}

func TestWorkerSkipsRetryOnGarbage(t *testing.T) {
	worker := &notify.EmailWorker{Mail: &common.InMemoryEmail{}, Logger: zerolog.Nop()}
	err := worker.HandleEmailDelivery(context.Background(), asynq.NewTask(notify.TypeEmailDelivery, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
