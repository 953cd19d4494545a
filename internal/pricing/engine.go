package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/shipping"
	"github.com/maison-living/backend-maison/internal/wholesale"
)

// ErrShippingOptionUnavailable is returned when the cart's selected option no
// longer exists for its destination. Pricing fails closed rather than
// guessing a fallback cost.
var ErrShippingOptionUnavailable = errors.New("selected shipping option unavailable")

// LineQuote is the priced form of one cart line.
type LineQuote struct {
	ProductID   string      `json:"productId"`
	VariantID   string      `json:"variantId"`
	Qty         int         `json:"qty"`
	RetailUnit  money.Money `json:"retailUnitPrice"`
	UnitPrice   money.Money `json:"unitPrice"`
	IsWholesale bool        `json:"isWholesale"`
	LineTotal   money.Money `json:"lineTotal"`
}

// Quote aggregates the computed pricing components for a cart. It is derived
// from current configuration on every call and never cached; the only frozen
// copy is the one checkout captures into an order.
type Quote struct {
	Currency         string      `json:"currency"`
	Lines            []LineQuote `json:"lines"`
	Subtotal         money.Money `json:"subtotal"`
	WholesaleSavings money.Money `json:"wholesaleSavings"`
	CouponCode       string      `json:"couponCode,omitempty"`
	Discount         money.Money `json:"discount"`
	ShippingResolved bool        `json:"shippingResolved"`
	FreeShipping     bool        `json:"freeShipping"`
	Shipping         money.Money `json:"shipping"`
	Total            money.Money `json:"total"`
}

// Engine composes the wholesale, coupon and shipping resolvers into one cart
// price. The computation is pure: identical inputs yield identical quotes
// and nothing is mutated.
type Engine struct {
	Coupons  *coupon.Resolver
	Tiers    wholesale.Store
	Shipping *shipping.Resolver
}

// Quote prices the cart. Combination policy: the wholesale tier applies per
// line first, the coupon then discounts the tier-adjusted subtotal. This is
// the single decision point for coupon/tier stacking.
//
// Shipping contributes only once the caller has selected an option; an
// unresolved selection leaves ShippingResolved=false and excludes shipping
// from the total — callers must not read that as free shipping.
func (e *Engine) Quote(ctx context.Context, c cart.Cart) (Quote, error) {
	if e == nil {
		return Quote{}, errors.New("pricing engine not configured")
	}
	q := Quote{
		Currency: c.Currency,
		Subtotal: money.Zero(c.Currency),
		Discount: money.Zero(c.Currency),
		Shipping: money.Zero(c.Currency),
	}
	q.WholesaleSavings = money.Zero(c.Currency)

	tier, err := e.customerTier(ctx, c.CustomerID)
	if err != nil {
		return Quote{}, fmt.Errorf("resolve customer tier: %w", err)
	}
	for _, line := range c.Lines {
		wq := wholesale.PriceQuote(tier, line.VariantID, line.UnitPrice)
		lineTotal := wq.Price.MulQty(line.Qty)
		q.Lines = append(q.Lines, LineQuote{
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			Qty:         line.Qty,
			RetailUnit:  line.UnitPrice,
			UnitPrice:   wq.Price,
			IsWholesale: wq.IsWholesale,
			LineTotal:   lineTotal,
		})
		q.Subtotal = q.Subtotal.Add(lineTotal)
		q.WholesaleSavings = q.WholesaleSavings.Add(wq.Savings.MulQty(line.Qty))
	}

	if c.CouponCode != "" {
		if e.Coupons == nil {
			return Quote{}, errors.New("coupon resolver not configured")
		}
		d, err := e.Coupons.Resolve(ctx, c.CouponCode, q.Subtotal)
		if err != nil {
			return Quote{}, fmt.Errorf("coupon %q: %w", c.CouponCode, err)
		}
		q.CouponCode = d.Code
		q.Discount = d.Amount
	}

	if c.ShippingOptionID != "" && c.Destination != nil {
		if e.Shipping == nil {
			return Quote{}, errors.New("shipping resolver not configured")
		}
		options, err := e.Shipping.OptionsFor(ctx, c.Destination.Country, c.Destination.RegionID)
		if err != nil {
			return Quote{}, fmt.Errorf("load shipping options: %w", err)
		}
		selected, ok := findOption(options, c.ShippingOptionID)
		if !ok {
			return Quote{}, ErrShippingOptionUnavailable
		}
		q.ShippingResolved = true
		q.Shipping = e.Shipping.EffectivePrice(selected, q.Subtotal)
		q.FreeShipping = q.Shipping.IsZero() && !selected.Price.IsZero()
	}

	q.Total = q.Subtotal.Sub(q.Discount)
	if q.ShippingResolved {
		q.Total = q.Total.Add(q.Shipping)
	}
	q.Total = q.Total.Max0()
	return q, nil
}

func (e *Engine) customerTier(ctx context.Context, customerID string) (*wholesale.Tier, error) {
	if customerID == "" || e.Tiers == nil {
		return nil, nil
	}
	id, err := uuid.Parse(customerID)
	if err != nil {
		return nil, fmt.Errorf("parse customer id: %w", err)
	}
	return e.Tiers.GetCustomerTier(ctx, id)
}

func findOption(options []shipping.Option, id string) (shipping.Option, bool) {
	for _, opt := range options {
		if opt.ID == id {
			return opt, true
		}
	}
	return shipping.Option{}, false
}
