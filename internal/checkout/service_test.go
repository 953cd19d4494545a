package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/checkout"
	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/pricing"
	"github.com/maison-living/backend-maison/internal/shipping"
)

type memOrders struct {
	created []order.Order
}

func (s *memOrders) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	for _, o := range s.created {
		if o.ID == id {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (s *memOrders) CreateOrder(_ context.Context, o order.Order) error {
	s.created = append(s.created, o)
	return nil
}

func (s *memOrders) UpdateOrder(_ context.Context, o order.Order) (order.Order, error) {
	return o, nil
}

type stubShippingStore struct{}

func (stubShippingStore) GetShippingOptions(_ context.Context, country, regionID string) ([]shipping.Option, error) {
	if country != "US" {
		return nil, nil
	}
	return []shipping.Option{
		{ID: "std", Name: "Standard", Price: money.Cents(1500, "USD"), ETDMinDays: 3, ETDMaxDays: 7},
	}, nil
}

type fixture struct {
	svc    *checkout.Service
	carts  *cart.Service
	orders *memOrders
	bus    *events.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &cart.Service{R: client, Currency: "USD"}
	bus := events.NewBus(events.Options{Logger: zerolog.Nop()})
	t.Cleanup(bus.Reset)
	orders := &memOrders{}
	svc := &checkout.Service{
		Carts:   carts,
		Pricing: &pricing.Engine{Shipping: &shipping.Resolver{Store: stubShippingStore{}}},
		Orders:  orders,
		Events:  bus,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
	return fixture{svc: svc, carts: carts, orders: orders, bus: bus}
}

func address() order.Address {
	return order.Address{
		ReceiverName: "A. Buyer",
		Country:      "US",
		RegionID:     "CA",
		AddressLine1: "1 Main St",
	}
}

func (f fixture) readyCart(t *testing.T) cart.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.Create(ctx, "")
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, c.ID, cart.Line{
		ProductID: "p1", VariantID: "v1", SKU: "OAK-01", Material: "oak",
		UnitPrice: money.Cents(10000, "USD"), Qty: 2,
	})
	require.NoError(t, err)
	_, err = f.carts.SetDestination(ctx, c.ID, cart.Destination{Country: "US", RegionID: "CA"})
	require.NoError(t, err)
	c, err = f.carts.SelectShipping(ctx, c.ID, "std")
	require.NoError(t, err)
	return c
}

func TestConfirmFreezesOrderAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.readyCart(t)
	customerID := uuid.New()

	var created events.OrderCreated
	_, err := f.bus.Subscribe(events.TopicOrderCreated, func(_ context.Context, ev events.Event) error {
		created = ev.Payload.(events.OrderCreated)
		return nil
	})
	require.NoError(t, err)

	o, err := f.svc.Confirm(ctx, checkout.Input{
		CartID:     c.ID,
		CustomerID: customerID,
		Address:    address(),
	})
	require.NoError(t, err)

	require.Equal(t, order.StatusPending, o.Status)
	require.Equal(t, order.PaymentPending, o.Payment)
	require.Equal(t, order.FulfillmentNotFulfilled, o.Fulfillment)
	require.Equal(t, int64(20000), o.Subtotal.Amount)
	require.Equal(t, int64(1500), o.Shipping.Amount)
	require.Equal(t, int64(21500), o.Total.Amount)
	require.Equal(t, int64(1), o.Version)
	require.Len(t, o.Lines, 1)
	require.Equal(t, "OAK-01", o.Lines[0].SKU)
	require.Equal(t, "oak", o.Lines[0].Material)

	require.Len(t, f.orders.created, 1)
	require.Equal(t, o.ID.String(), created.ID)
	require.Equal(t, int64(21500), created.Total)

	_, err = f.carts.Get(ctx, c.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestConfirmRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, "")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, checkout.Input{CartID: c.ID, Address: address()})
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	require.Empty(t, f.orders.created)
}

func TestConfirmRequiresResolvedShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, "")
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, c.ID, cart.Line{
		ProductID: "p1", VariantID: "v1", UnitPrice: money.Cents(10000, "USD"), Qty: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, checkout.Input{CartID: c.ID, Address: address()})
	require.ErrorIs(t, err, checkout.ErrShippingRequired)
	require.Empty(t, f.orders.created)
}

func TestConfirmRequiresAddress(t *testing.T) {
	f := newFixture(t)
	c := f.readyCart(t)

	_, err := f.svc.Confirm(context.Background(), checkout.Input{CartID: c.ID})
	require.ErrorIs(t, err, checkout.ErrAddressRequired)
}

func TestWholesaleChannelStartsAwaitingPayment(t *testing.T) {
	f := newFixture(t)
	c := f.readyCart(t)

	o, err := f.svc.Confirm(context.Background(), checkout.Input{
		CartID:  c.ID,
		Channel: order.ChannelWholesale,
		Address: address(),
	})
	require.NoError(t, err)
	require.Equal(t, order.PaymentAwaiting, o.Payment)
}
