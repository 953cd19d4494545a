package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/maison-living/backend-maison/internal/events"
)

// TaskEnqueuer is the slice of *asynq.Client the dispatcher needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns order events into queued email deliveries. Subscribers run
// inside the publishing request, so the dispatcher only enqueues; the actual
// SMTP round-trip happens in the worker process.
type Dispatcher struct {
	Tasks  TaskEnqueuer
	Logger zerolog.Logger
	// AdminEmail receives operational alerts such as low-stock warnings.
	AdminEmail string
	// TopicToggles disables delivery per topic; absent topics are enabled.
	TopicToggles map[string]bool
	// ForwardWebhooks mirrors every event onto the ops webhook queue.
	ForwardWebhooks bool
}

// Attach subscribes the dispatcher to the notification-bearing topics. The
// returned function detaches all subscriptions.
func (d *Dispatcher) Attach(bus *events.Bus) (func(), error) {
	if d == nil || d.Tasks == nil {
		return nil, errors.New("notify dispatcher not configured")
	}
	var offs []func()
	detach := func() {
		for _, off := range offs {
			off()
		}
	}
	for topic, handler := range map[string]events.Handler{
		events.TopicOrderCreated:    d.onOrderCreated,
		events.TopicOrderShipped:    d.onOrderShipped,
		events.TopicOrderCancelled:  d.onOrderCancelled,
		events.TopicProductLowStock: d.onLowStock,
	} {
		off, err := bus.Subscribe(topic, handler)
		if err != nil {
			detach()
			return nil, err
		}
		offs = append(offs, off)
	}
	if d.ForwardWebhooks {
		off, err := bus.Subscribe(events.TopicWildcard, d.onAnyEvent)
		if err != nil {
			detach()
			return nil, err
		}
		offs = append(offs, off)
	}
	return detach, nil
}

func (d *Dispatcher) onAnyEvent(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("notify: encode %s event: %w", ev.Topic, err)
	}
	task, err := NewWebhookTask(WebhookPayload{
		EventID:    uuid.NewString(),
		Topic:      ev.Topic,
		OccurredAt: ev.OccurredAt,
		Body:       body,
	})
	if err != nil {
		return err
	}
	if _, err := d.Tasks.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue %s webhook: %w", ev.Topic, err)
	}
	return nil
}

func (d *Dispatcher) enabled(topic string) bool {
	if d.TopicToggles == nil {
		return true
	}
	enabled, ok := d.TopicToggles[topic]
	return !ok || enabled
}

func (d *Dispatcher) enqueue(ctx context.Context, topic, to, subject, html string) error {
	if to == "" || !d.enabled(topic) {
		return nil
	}
	task, err := NewEmailTask(EmailPayload{To: to, Subject: subject, HTML: html, Topic: topic})
	if err != nil {
		return err
	}
	info, err := d.Tasks.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("notify: enqueue %s email: %w", topic, err)
	}
	d.Logger.Debug().Str("topic", topic).Str("task_id", info.ID).Msg("email queued")
	return nil
}

func (d *Dispatcher) onOrderCreated(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.OrderCreated)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	subject := "Order received"
	body := fmt.Sprintf("<p>Thanks for your order <strong>%s</strong>.</p><p>Total: %s %d.%02d</p>",
		payload.ID, payload.Currency, payload.Total/100, payload.Total%100)
	return d.enqueue(ctx, ev.Topic, payload.Email, subject, body)
}

func (d *Dispatcher) onOrderShipped(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.OrderShipped)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	subject := "Your order is on its way"
	body := fmt.Sprintf("<p>Order <strong>%s</strong> has shipped.</p><p>Tracking: %s", payload.ID, payload.TrackingNumber)
	if payload.Carrier != "" {
		body += " (" + payload.Carrier + ")"
	}
	body += "</p>"
	if payload.TrackingLink != "" {
		body += fmt.Sprintf(`<p><a href="%s">Track your shipment</a></p>`, payload.TrackingLink)
	}
	return d.enqueue(ctx, ev.Topic, payload.Email, subject, body)
}

func (d *Dispatcher) onOrderCancelled(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.OrderCancelled)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	subject := "Order canceled"
	body := fmt.Sprintf("<p>Order <strong>%s</strong> has been canceled.</p>", payload.ID)
	if payload.Reason != "" {
		body += fmt.Sprintf("<p>Reason: %s</p>", payload.Reason)
	}
	if payload.RefundAmount != nil {
		body += fmt.Sprintf("<p>A refund of %d.%02d is on its way.</p>", *payload.RefundAmount/100, *payload.RefundAmount%100)
	}
	return d.enqueue(ctx, ev.Topic, payload.Email, subject, body)
}

func (d *Dispatcher) onLowStock(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.ProductLowStock)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	subject := fmt.Sprintf("Low stock: %s", payload.ProductID)
	body := fmt.Sprintf("<p>Variant %s/%s is down to %d units (threshold %d) as of %s.</p>",
		payload.ProductID, payload.VariantID, payload.CurrentStock, payload.Threshold,
		ev.OccurredAt.Format(time.RFC3339))
	return d.enqueue(ctx, ev.Topic, d.AdminEmail, subject, body)
}
