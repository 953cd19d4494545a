package pricing_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/pricing"
	"github.com/maison-living/backend-maison/internal/shipping"
	"github.com/maison-living/backend-maison/internal/wholesale"
)

type couponStore map[string]coupon.Coupon

func (s couponStore) GetCouponByCode(_ context.Context, code string) (coupon.Coupon, error) {
	c, ok := s[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

type tierStore struct {
	tier *wholesale.Tier
}

func (s tierStore) GetCustomerTier(context.Context, uuid.UUID) (*wholesale.Tier, error) {
	return s.tier, nil
}

type shippingStore map[string][]shipping.Option

func (s shippingStore) GetShippingOptions(_ context.Context, country, regionID string) ([]shipping.Option, error) {
	return s[country+"/"+regionID], nil
}

func newEngine(tier *wholesale.Tier, freeThreshold int64) *pricing.Engine {
	coupons := couponStore{
		"take50":   {Code: "take50", Kind: coupon.KindFixed, Amount: money.Cents(5000, "USD")},
		"spring10": {Code: "spring10", Kind: coupon.KindPercent, PercentBps: 1000},
	}
	options := shippingStore{
		"US/ca": {
			{ID: "standard", Name: "Standard", Price: money.Cents(1500, "USD")},
			{ID: "express", Name: "Express", Price: money.Cents(2500, "USD")},
		},
	}
	return &pricing.Engine{
		Coupons:  &coupon.Resolver{Store: coupons},
		Tiers:    tierStore{tier: tier},
		Shipping: &shipping.Resolver{Store: options, FreeThreshold: money.Cents(freeThreshold, "USD")},
	}
}

func testCart(lines ...cart.Line) cart.Cart {
	return cart.Cart{
		ID:         "c1",
		CustomerID: uuid.NewString(),
		Currency:   "USD",
		Lines:      lines,
	}
}

func usd(cents int64) money.Money { return money.Cents(cents, "USD") }

func TestQuoteRetailSubtotal(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(
		cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(1000), Qty: 2},
		cart.Line{ProductID: "p2", VariantID: "v2", UnitPrice: usd(500), Qty: 3},
	)
	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, int64(3500), q.Subtotal.Amount)
	require.Equal(t, int64(3500), q.Total.Amount)
	require.False(t, q.ShippingResolved)
}

func TestQuoteIsIdempotentAndPure(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(1000), Qty: 2})
	c.CouponCode = "spring10"

	first, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	second, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "spring10", c.CouponCode, "cart must not be mutated")
	require.Len(t, c.Lines, 1)
}

func TestQuoteTierThenCoupon(t *testing.T) {
	tier := wholesale.TierGrowth // 30%
	e := newEngine(&tier, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(10000), Qty: 1})
	c.CouponCode = "spring10"

	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	// Tier first: 10000 -> 7000. Coupon discounts the tier-adjusted subtotal: 10% of 7000.
	require.Equal(t, int64(7000), q.Subtotal.Amount)
	require.Equal(t, int64(3000), q.WholesaleSavings.Amount)
	require.Equal(t, int64(700), q.Discount.Amount)
	require.Equal(t, int64(6300), q.Total.Amount)
	require.True(t, q.Lines[0].IsWholesale)
}

func TestQuoteFixedCouponFloor(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(3000), Qty: 1})
	c.CouponCode = "take50"

	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, int64(3000), q.Discount.Amount, "fixed coupon capped at subtotal")
	require.Equal(t, int64(0), q.Total.Amount)
}

func TestQuoteTotalNeverNegativeWithShipping(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(3000), Qty: 1})
	c.CouponCode = "take50"
	c.Destination = &cart.Destination{Country: "US", RegionID: "ca"}
	c.ShippingOptionID = "standard"

	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	// max(0, 3000 - 3000 + 1500) = 1500
	require.Equal(t, int64(1500), q.Total.Amount)
	require.GreaterOrEqual(t, q.Total.Amount, int64(0))
}

func TestQuoteFreeShippingOverride(t *testing.T) {
	e := newEngine(nil, 25000)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(26000), Qty: 1})
	c.Destination = &cart.Destination{Country: "US", RegionID: "ca"}
	c.ShippingOptionID = "standard"

	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	require.True(t, q.ShippingResolved)
	require.True(t, q.FreeShipping)
	require.Equal(t, int64(0), q.Shipping.Amount)
	require.Equal(t, int64(26000), q.Total.Amount)
}

func TestQuoteUnresolvedShippingIsNotFree(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(5000), Qty: 1})
	c.Destination = &cart.Destination{Country: "US", RegionID: "ca"}
	// No option selected.

	q, err := e.Quote(context.Background(), c)
	require.NoError(t, err)
	require.False(t, q.ShippingResolved)
	require.False(t, q.FreeShipping)
}

func TestQuoteInvalidCouponFailsClosed(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(5000), Qty: 1})
	c.CouponCode = "ghost"

	_, err := e.Quote(context.Background(), c)
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestQuoteVanishedShippingOptionFailsClosed(t *testing.T) {
	e := newEngine(nil, 0)
	c := testCart(cart.Line{ProductID: "p1", VariantID: "v1", UnitPrice: usd(5000), Qty: 1})
	c.Destination = &cart.Destination{Country: "US", RegionID: "ca"}
	c.ShippingOptionID = "discontinued"

	_, err := e.Quote(context.Background(), c)
	require.ErrorIs(t, err, pricing.ErrShippingOptionUnavailable)
}
