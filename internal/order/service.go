package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maison-living/backend-maison/internal/events"
)

// Store is the persistence boundary for orders. Update must compare the
// version it was given against the stored row and return ErrConflict when a
// concurrent writer got there first.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	CreateOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) (Order, error)
}

// CustomerDirectory resolves notification recipients for event payloads.
type CustomerDirectory interface {
	GetCustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error)
}

// Service drives the order lifecycle state machine. Every accepted
// transition is persisted before its events fire, so a failing subscriber
// can never roll back a committed transition.
type Service struct {
	Store     Store
	Events    *events.Bus
	Customers CustomerDirectory
	Logger    zerolog.Logger
	// MaxRetries bounds reload-and-retry attempts after a version conflict.
	MaxRetries int
}

func (s *Service) retries() int {
	if s == nil || s.MaxRetries <= 0 {
		return 2
	}
	return s.MaxRetries
}

// Get loads an order by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	return s.Store.GetOrder(ctx, id)
}

// UpdateStatus moves the order_status axis to an explicit target. Illegal
// edges fail with ErrInvalidTransition and leave the row untouched.
// completed additionally requires the payment axis to be paid.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target Status) (Order, error) {
	updated, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if !CanTransitionStatus(o.Status, target) {
			return false, fmt.Errorf("%s -> %s: %w", o.Status, target, ErrInvalidTransition)
		}
		if target == StatusCompleted && o.Payment != PaymentPaid {
			return false, fmt.Errorf("cannot complete unpaid order: %w", ErrInvalidTransition)
		}
		o.Status = target
		return true, nil
	})
	if err != nil || !changed {
		return updated, err
	}
	s.emitUpdated(ctx, updated)
	if target == StatusCanceled {
		s.emitCancelled(ctx, updated)
	}
	return updated, nil
}

// Cancel is UpdateStatus(canceled) with a recorded reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (Order, error) {
	updated, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if !CanTransitionStatus(o.Status, StatusCanceled) {
			return false, fmt.Errorf("%s -> %s: %w", o.Status, StatusCanceled, ErrInvalidTransition)
		}
		o.Status = StatusCanceled
		o.CancelReason = reason
		return true, nil
	})
	if err != nil || !changed {
		return updated, err
	}
	s.emitUpdated(ctx, updated)
	s.emitCancelled(ctx, updated)
	return updated, nil
}

// AddTracking attaches tracking evidence and marks the order fulfilled.
// Replaying the call with the identical tracking number is a no-op, not an
// error; a different number on an already-fulfilled order is rejected.
func (s *Service) AddTracking(ctx context.Context, id uuid.UUID, t Tracking) (Order, error) {
	if t.Number == "" {
		return Order{}, ErrTrackingRequired
	}
	updated, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if o.Status == StatusCanceled {
			return false, fmt.Errorf("order is canceled: %w", ErrInvalidTransition)
		}
		if o.Fulfillment == FulfillmentFulfilled {
			if o.Tracking != nil && o.Tracking.Number == t.Number {
				return false, nil
			}
			return false, fmt.Errorf("order already fulfilled with different tracking: %w", ErrInvalidTransition)
		}
		o.Fulfillment = FulfillmentFulfilled
		o.Tracking = &t
		return true, nil
	})
	if err != nil || !changed {
		return updated, err
	}
	s.emitUpdated(ctx, updated)
	s.emitShipped(ctx, updated)
	return updated, nil
}

// ApplyPayment advances the payment axis, typically from a provider
// callback. Replaying the current status is a no-op so webhooks stay
// idempotent; paid is sticky apart from an explicit retail refund.
func (s *Service) ApplyPayment(ctx context.Context, id uuid.UUID, target PaymentStatus) (Order, error) {
	updated, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if !ValidPaymentStatus(o.Channel, target) {
			return false, fmt.Errorf("payment status %q not valid for %s channel: %w", target, o.Channel, ErrInvalidTransition)
		}
		if o.Payment == target {
			return false, nil
		}
		if !CanTransitionPayment(o.Channel, o.Payment, target) {
			return false, fmt.Errorf("%s -> %s: %w", o.Payment, target, ErrInvalidTransition)
		}
		o.Payment = target
		return true, nil
	})
	if err != nil || !changed {
		return updated, err
	}
	s.emitUpdated(ctx, updated)
	return updated, nil
}

// mutate runs the load-apply-save cycle with optimistic concurrency. A
// version conflict reloads and revalidates; the apply func sees fresh state
// each attempt, so a transition that became illegal mid-race fails instead
// of being silently replayed.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, apply func(*Order) (bool, error)) (Order, bool, error) {
	if s == nil || s.Store == nil {
		return Order{}, false, errors.New("order service not configured")
	}
	attempts := s.retries() + 1
	for attempt := 0; attempt < attempts; attempt++ {
		o, err := s.Store.GetOrder(ctx, id)
		if err != nil {
			return Order{}, false, err
		}
		changed, err := apply(&o)
		if err != nil {
			return Order{}, false, err
		}
		if !changed {
			return o, false, nil
		}
		saved, err := s.Store.UpdateOrder(ctx, o)
		if err == nil {
			return saved, true, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Order{}, false, err
		}
		s.Logger.Debug().Str("order_id", id.String()).Int("attempt", attempt+1).Msg("order version conflict, retrying")
	}
	return Order{}, false, ErrConflict
}

func (s *Service) emitUpdated(ctx context.Context, o Order) {
	if s.Events == nil {
		return
	}
	_ = s.Events.Publish(ctx, events.TopicOrderUpdated, events.OrderUpdated{
		ID:                o.ID.String(),
		Status:            string(o.Status),
		PaymentStatus:     string(o.Payment),
		FulfillmentStatus: string(o.Fulfillment),
	})
}

func (s *Service) emitCancelled(ctx context.Context, o Order) {
	if s.Events == nil {
		return
	}
	payload := events.OrderCancelled{
		ID:     o.ID.String(),
		Reason: o.CancelReason,
		Items:  itemRefs(o.Lines),
		Email:  s.emailFor(ctx, o.CustomerID),
	}
	if o.Payment == PaymentPaid {
		refund := o.Total.Amount
		payload.RefundAmount = &refund
	}
	_ = s.Events.Publish(ctx, events.TopicOrderCancelled, payload)
}

func (s *Service) emitShipped(ctx context.Context, o Order) {
	if s.Events == nil || o.Tracking == nil {
		return
	}
	_ = s.Events.Publish(ctx, events.TopicOrderShipped, events.OrderShipped{
		ID:             o.ID.String(),
		TrackingNumber: o.Tracking.Number,
		Carrier:        o.Tracking.Carrier,
		TrackingLink:   o.Tracking.Link,
		Email:          s.emailFor(ctx, o.CustomerID),
	})
}

func (s *Service) emailFor(ctx context.Context, customerID uuid.UUID) string {
	if s.Customers == nil || customerID == uuid.Nil {
		return ""
	}
	email, err := s.Customers.GetCustomerEmail(ctx, customerID)
	if err != nil {
		return ""
	}
	return email
}

func itemRefs(lines []Line) []events.OrderItemRef {
	refs := make([]events.OrderItemRef, 0, len(lines))
	for _, line := range lines {
		refs = append(refs, events.OrderItemRef{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Qty,
		})
	}
	return refs
}
