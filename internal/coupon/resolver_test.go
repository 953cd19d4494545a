package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/money"
)

type stubStore struct {
	coupons map[string]Coupon
}

func (s *stubStore) GetCouponByCode(_ context.Context, code string) (Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return c, nil
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newResolver(coupons ...Coupon) *Resolver {
	store := &stubStore{coupons: map[string]Coupon{}}
	for _, c := range coupons {
		store.coupons[c.Code] = c
	}
	return &Resolver{Store: store, Now: fixedClock}
}

func TestResolvePercent(t *testing.T) {
	r := newResolver(Coupon{Code: "spring15", Kind: KindPercent, PercentBps: 1500})
	d, err := r.Resolve(context.Background(), "  SPRING15 ", money.Cents(10000, "USD"))
	require.NoError(t, err)
	require.Equal(t, "spring15", d.Code)
	require.Equal(t, int64(1500), d.Amount.Amount)
}

func TestResolveFixedCappedAtSubtotal(t *testing.T) {
	r := newResolver(Coupon{Code: "take50", Kind: KindFixed, Amount: money.Cents(5000, "USD")})
	d, err := r.Resolve(context.Background(), "TAKE50", money.Cents(3000, "USD"))
	require.NoError(t, err)
	require.Equal(t, int64(3000), d.Amount.Amount, "fixed discount must never exceed the subtotal")
}

func TestResolveNotFound(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve(context.Background(), "missing", money.Cents(1000, "USD"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveExpired(t *testing.T) {
	past := fixedClock().Add(-time.Hour)
	r := newResolver(Coupon{Code: "old", Kind: KindPercent, PercentBps: 1000, ExpiresAt: &past})
	_, err := r.Resolve(context.Background(), "old", money.Cents(1000, "USD"))
	require.ErrorIs(t, err, ErrExpired)
}

func TestResolveMinimumNotMet(t *testing.T) {
	r := newResolver(Coupon{
		Code:        "bigspender",
		Kind:        KindPercent,
		PercentBps:  2000,
		MinSubtotal: money.Cents(20000, "USD"),
	})
	_, err := r.Resolve(context.Background(), "bigspender", money.Cents(19999, "USD"))
	require.ErrorIs(t, err, ErrMinimumNotMet)

	d, err := r.Resolve(context.Background(), "bigspender", money.Cents(20000, "USD"))
	require.NoError(t, err)
	require.Equal(t, int64(4000), d.Amount.Amount)
}

func TestResolveBlankCode(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve(context.Background(), "   ", money.Cents(1000, "USD"))
	require.ErrorIs(t, err, ErrInvalidInput)
}
