package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/pricing"
)

var (
	// ErrEmptyCart rejects checkout on a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrShippingRequired rejects checkout before a shipping option has been
	// selected and resolved for the destination.
	ErrShippingRequired = errors.New("shipping selection required")
	// ErrAddressRequired rejects checkout without a usable shipping address.
	ErrAddressRequired = errors.New("shipping address required")
)

// Input is everything checkout needs beyond the cart itself.
type Input struct {
	CartID     string
	CustomerID uuid.UUID
	Channel    order.Channel
	Address    order.Address
}

// Service freezes a priced cart into an immutable order. The price the
// customer saw is recomputed one final time at confirmation; whatever the
// engine returns at that moment is what the order records.
type Service struct {
	Carts     *cart.Service
	Pricing   *pricing.Engine
	Orders    order.Store
	Events    *events.Bus
	Customers order.CustomerDirectory
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Confirm runs the checkout: final pricing, order creation, cart teardown and
// the order:created event, in that order. The order is persisted before the
// event fires and before the cart is cleared, so a crash can orphan a cart
// but never lose a confirmed order.
func (s *Service) Confirm(ctx context.Context, in Input) (order.Order, error) {
	if s == nil || s.Carts == nil || s.Pricing == nil || s.Orders == nil {
		return order.Order{}, errors.New("checkout service not configured")
	}
	if in.Address.Country == "" || in.Address.AddressLine1 == "" || in.Address.ReceiverName == "" {
		return order.Order{}, ErrAddressRequired
	}
	if in.Channel == "" {
		in.Channel = order.ChannelRetail
	}

	c, err := s.Carts.Get(ctx, in.CartID)
	if err != nil {
		return order.Order{}, err
	}
	if c.IsEmpty() {
		return order.Order{}, ErrEmptyCart
	}

	quote, err := s.Pricing.Quote(ctx, c)
	if err != nil {
		return order.Order{}, fmt.Errorf("price cart: %w", err)
	}
	if !quote.ShippingResolved {
		return order.Order{}, ErrShippingRequired
	}

	now := s.now()
	o := order.Order{
		ID:          uuid.New(),
		CustomerID:  in.CustomerID,
		Channel:     in.Channel,
		Status:      order.StatusPending,
		Payment:     order.InitialPaymentStatus(in.Channel),
		Fulfillment: order.FulfillmentNotFulfilled,
		Subtotal:    quote.Subtotal,
		Discount:    quote.Discount,
		Shipping:    quote.Shipping,
		Total:       quote.Total,
		Currency:    quote.Currency,
		CouponCode:  quote.CouponCode,
		Lines:       freezeLines(c, quote),
		Address:     in.Address,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Orders.CreateOrder(ctx, o); err != nil {
		return order.Order{}, fmt.Errorf("persist order: %w", err)
	}

	if err := s.Carts.Clear(ctx, in.CartID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", in.CartID).Msg("cart cleanup after checkout failed")
	}
	s.emitCreated(ctx, o)
	return o, nil
}

// freezeLines copies the priced lines into the order, carrying the display
// metadata the quote does not track from the cart lines.
func freezeLines(c cart.Cart, quote pricing.Quote) []order.Line {
	meta := make(map[string]cart.Line, len(c.Lines))
	for _, line := range c.Lines {
		meta[line.VariantID] = line
	}
	lines := make([]order.Line, 0, len(quote.Lines))
	for _, lq := range quote.Lines {
		src := meta[lq.VariantID]
		lines = append(lines, order.Line{
			ProductID: lq.ProductID,
			VariantID: lq.VariantID,
			SKU:       src.SKU,
			Material:  src.Material,
			UnitPrice: lq.UnitPrice,
			Qty:       lq.Qty,
			Subtotal:  lq.LineTotal,
		})
	}
	return lines
}

func (s *Service) emitCreated(ctx context.Context, o order.Order) {
	if s.Events == nil {
		return
	}
	items := make([]events.OrderItemRef, 0, len(o.Lines))
	for _, line := range o.Lines {
		items = append(items, events.OrderItemRef{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Qty,
		})
	}
	payload := events.OrderCreated{
		ID:         o.ID.String(),
		CustomerID: o.CustomerID.String(),
		Total:      o.Total.Amount,
		Currency:   o.Currency,
		Items:      items,
	}
	if s.Customers != nil && o.CustomerID != uuid.Nil {
		if email, err := s.Customers.GetCustomerEmail(ctx, o.CustomerID); err == nil {
			payload.Email = email
		}
	}
	_ = s.Events.Publish(ctx, events.TopicOrderCreated, payload)
}
