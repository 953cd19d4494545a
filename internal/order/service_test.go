package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/order"
)

// memStore is an in-memory order store with version compare-and-swap.
type memStore struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]order.Order
	failUpdates int // inject this many conflicts before accepting
}

func newMemStore() *memStore {
	return &memStore{orders: map[uuid.UUID]order.Order{}}
}

func (s *memStore) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *memStore) CreateOrder(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) UpdateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates > 0 {
		s.failUpdates--
		return order.Order{}, order.ErrConflict
	}
	current, ok := s.orders[o.ID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if current.Version != o.Version {
		return order.Order{}, order.ErrConflict
	}
	o.Version++
	s.orders[o.ID] = o
	return o, nil
}

type capture struct {
	mu     sync.Mutex
	topics []string
}

func (c *capture) handler() events.Handler {
	return func(_ context.Context, ev events.Event) error {
		c.mu.Lock()
		c.topics = append(c.topics, ev.Topic)
		c.mu.Unlock()
		return nil
	}
}

func (c *capture) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

func newFixture(t *testing.T) (*order.Service, *memStore, *capture) {
	t.Helper()
	store := newMemStore()
	bus := events.NewBus(events.Options{Logger: zerolog.Nop()})
	t.Cleanup(bus.Reset)
	cap := &capture{}
	_, err := bus.Subscribe(events.TopicWildcard, cap.handler())
	require.NoError(t, err)
	svc := &order.Service{Store: store, Events: bus, Logger: zerolog.Nop()}
	return svc, store, cap
}

func seedOrder(t *testing.T, store *memStore, mut func(*order.Order)) order.Order {
	t.Helper()
	o := order.Order{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		Channel:     order.ChannelRetail,
		Status:      order.StatusPending,
		Payment:     order.PaymentPending,
		Fulfillment: order.FulfillmentNotFulfilled,
		Subtotal:    money.Cents(10000, "USD"),
		Discount:    money.Cents(0, "USD"),
		Shipping:    money.Cents(1500, "USD"),
		Total:       money.Cents(11500, "USD"),
		Currency:    "USD",
		Lines: []order.Line{{
			ProductID: "p1", VariantID: "v1",
			UnitPrice: money.Cents(10000, "USD"), Qty: 1,
			Subtotal: money.Cents(10000, "USD"),
		}},
		Version: 1,
	}
	if mut != nil {
		mut(&o)
	}
	require.NoError(t, store.CreateOrder(context.Background(), o))
	return o
}

func TestUpdateStatusEmitsOrderUpdated(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)

	updated, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusProcessing)
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, updated.Status)
	require.Equal(t, o.Version+1, updated.Version)
	require.Equal(t, []string{events.TopicOrderUpdated}, cap.seen())
}

func TestCompleteRequiresPaid(t *testing.T) {
	svc, store, _ := newFixture(t)
	o := seedOrder(t, store, func(o *order.Order) {
		o.Status = order.StatusProcessing
	})

	_, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusCompleted)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = svc.ApplyPayment(context.Background(), o.ID, order.PaymentPaid)
	require.NoError(t, err)
	updated, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, updated.Status)
}

func TestCancelEmitsCancelledWithRefundWhenPaid(t *testing.T) {
	svc, store, _ := newFixture(t)
	o := seedOrder(t, store, func(o *order.Order) {
		o.Payment = order.PaymentPaid
	})

	bus := svc.Events
	var cancelled events.OrderCancelled
	_, err := bus.Subscribe(events.TopicOrderCancelled, func(_ context.Context, ev events.Event) error {
		cancelled = ev.Payload.(events.OrderCancelled)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, "customer request")
	require.NoError(t, err)
	require.Equal(t, o.ID.String(), cancelled.ID)
	require.Equal(t, "customer request", cancelled.Reason)
	require.NotNil(t, cancelled.RefundAmount)
	require.Equal(t, int64(11500), *cancelled.RefundAmount)
}

func TestCanceledIsTerminal(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, func(o *order.Order) {
		o.Status = order.StatusCanceled
	})

	for _, target := range []order.Status{order.StatusPending, order.StatusProcessing, order.StatusCompleted} {
		_, err := svc.UpdateStatus(context.Background(), o.ID, target)
		require.ErrorIs(t, err, order.ErrInvalidTransition)
	}
	require.Empty(t, cap.seen(), "rejected transitions must emit nothing")

	stored, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o, stored, "rejected transitions must leave the order untouched")
}

func TestAddTrackingRequiresNumber(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)

	_, err := svc.AddTracking(context.Background(), o.ID, order.Tracking{Carrier: "ups"})
	require.ErrorIs(t, err, order.ErrTrackingRequired)
	require.Empty(t, cap.seen())

	stored, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.FulfillmentNotFulfilled, stored.Fulfillment)
}

func TestAddTrackingFulfillsAndEmitsShipped(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)

	updated, err := svc.AddTracking(context.Background(), o.ID, order.Tracking{Number: "TRK-1", Carrier: "ups"})
	require.NoError(t, err)
	require.Equal(t, order.FulfillmentFulfilled, updated.Fulfillment)
	require.Equal(t, "TRK-1", updated.Tracking.Number)
	require.Equal(t, []string{events.TopicOrderUpdated, events.TopicOrderShipped}, cap.seen())
}

func TestAddTrackingReplayIsNoOp(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)

	first, err := svc.AddTracking(context.Background(), o.ID, order.Tracking{Number: "TRK-1"})
	require.NoError(t, err)
	emitted := len(cap.seen())

	replayed, err := svc.AddTracking(context.Background(), o.ID, order.Tracking{Number: "TRK-1"})
	require.NoError(t, err)
	require.Equal(t, first.Version, replayed.Version)
	require.Len(t, cap.seen(), emitted, "replay must not emit again")

	_, err = svc.AddTracking(context.Background(), o.ID, order.Tracking{Number: "TRK-2"})
	require.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestApplyPaymentIdempotentAndSticky(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)

	_, err := svc.ApplyPayment(context.Background(), o.ID, order.PaymentPaid)
	require.NoError(t, err)
	emitted := len(cap.seen())

	// Replaying the webhook with the same status is a no-op.
	replayed, err := svc.ApplyPayment(context.Background(), o.ID, order.PaymentPaid)
	require.NoError(t, err)
	require.Equal(t, order.PaymentPaid, replayed.Payment)
	require.Len(t, cap.seen(), emitted)

	// paid is sticky: only an explicit refund leaves it.
	_, err = svc.ApplyPayment(context.Background(), o.ID, order.PaymentPending)
	require.ErrorIs(t, err, order.ErrInvalidTransition)
	refunded, err := svc.ApplyPayment(context.Background(), o.ID, order.PaymentRefunded)
	require.NoError(t, err)
	require.Equal(t, order.PaymentRefunded, refunded.Payment)
}

func TestApplyPaymentRejectsWrongChannelStatus(t *testing.T) {
	svc, store, _ := newFixture(t)
	o := seedOrder(t, store, func(o *order.Order) {
		o.Channel = order.ChannelWholesale
		o.Payment = order.PaymentAwaiting
	})

	_, err := svc.ApplyPayment(context.Background(), o.ID, order.PaymentRefunded)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	overdue, err := svc.ApplyPayment(context.Background(), o.ID, order.PaymentOverdue)
	require.NoError(t, err)
	require.Equal(t, order.PaymentOverdue, overdue.Payment)
}

func TestConflictRetriesThenSucceeds(t *testing.T) {
	svc, store, _ := newFixture(t)
	o := seedOrder(t, store, nil)
	store.failUpdates = 1

	updated, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusProcessing)
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, updated.Status)
}

func TestConflictExhaustsRetries(t *testing.T) {
	svc, store, cap := newFixture(t)
	o := seedOrder(t, store, nil)
	store.failUpdates = 10

	_, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusProcessing)
	require.ErrorIs(t, err, order.ErrConflict)
	require.Empty(t, cap.seen(), "a lost race must not emit events")
}
