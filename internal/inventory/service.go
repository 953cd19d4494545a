package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/maison-living/backend-maison/internal/events"
)

var (
	// ErrNotFound indicates the variant has no stock record.
	ErrNotFound = errors.New("stock record not found")
)

// Store is the persistence boundary for stock levels. AdjustStock applies a
// signed delta atomically and returns the resulting quantity; levels are
// clamped at zero rather than going negative.
type Store interface {
	GetStock(ctx context.Context, productID, variantID string) (int, error)
	AdjustStock(ctx context.Context, productID, variantID string, delta int) (int, error)
}

// Service keeps stock levels in sync with the order stream. It reacts to
// order:created by decrementing and to order:cancelled by releasing the held
// quantities back, and raises product:low_stock when a decrement leaves a
// variant at or below the threshold.
type Service struct {
	Store  Store
	Events *events.Bus
	Logger zerolog.Logger
	// LowStockThreshold triggers product:low_stock when remaining stock
	// reaches it. Zero disables the alert.
	LowStockThreshold int
}

// Attach subscribes the service to the order topics it reacts to. The
// returned function detaches both subscriptions.
func (s *Service) Attach(bus *events.Bus) (func(), error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("inventory service not configured")
	}
	offCreated, err := bus.Subscribe(events.TopicOrderCreated, s.onOrderCreated)
	if err != nil {
		return nil, err
	}
	offCancelled, err := bus.Subscribe(events.TopicOrderCancelled, s.onOrderCancelled)
	if err != nil {
		offCreated()
		return nil, err
	}
	return func() {
		offCreated()
		offCancelled()
	}, nil
}

func (s *Service) onOrderCreated(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.OrderCreated)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	var errs []error
	for _, item := range payload.Items {
		remaining, err := s.Store.AdjustStock(ctx, item.ProductID, item.VariantID, -item.Quantity)
		if err != nil {
			errs = append(errs, fmt.Errorf("decrement %s/%s: %w", item.ProductID, item.VariantID, err))
			continue
		}
		s.Logger.Debug().
			Str("product_id", item.ProductID).
			Str("variant_id", item.VariantID).
			Int("remaining", remaining).
			Msg("stock decremented")
		s.maybeAlertLowStock(ctx, item.ProductID, item.VariantID, remaining)
	}
	return errors.Join(errs...)
}

func (s *Service) onOrderCancelled(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.OrderCancelled)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	var errs []error
	for _, item := range payload.Items {
		if _, err := s.Store.AdjustStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("release %s/%s: %w", item.ProductID, item.VariantID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) maybeAlertLowStock(ctx context.Context, productID, variantID string, remaining int) {
	if s.Events == nil || s.LowStockThreshold <= 0 || remaining > s.LowStockThreshold {
		return
	}
	_ = s.Events.Publish(ctx, events.TopicProductLowStock, events.ProductLowStock{
		ProductID:    productID,
		VariantID:    variantID,
		CurrentStock: remaining,
		Threshold:    s.LowStockThreshold,
	})
}
