package wholesale

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maison-living/backend-maison/internal/money"
)

func TestPriceQuoteGrowthTier(t *testing.T) {
	tier := TierGrowth
	q := PriceQuote(&tier, "v1", money.Cents(10000, "USD"))
	require.True(t, q.IsWholesale)
	require.Equal(t, int64(7000), q.Price.Amount)
	require.Equal(t, int64(3000), q.Savings.Amount)
}

func TestPriceQuoteRoundsHalfUp(t *testing.T) {
	tier := TierStarter // 20%
	// 20% of 1111 = 222.2 -> savings 222, price 889.
	q := PriceQuote(&tier, "v1", money.Cents(1111, "USD"))
	require.Equal(t, int64(222), q.Savings.Amount)
	require.Equal(t, int64(889), q.Price.Amount)

	tierE := TierEnterprise // 40%
	// 40% of 1111 = 444.4 -> 444; of 1115 = 446 exact.
	q = PriceQuote(&tierE, "v1", money.Cents(1111, "USD"))
	require.Equal(t, int64(444), q.Savings.Amount)
}

func TestPriceQuoteNilTier(t *testing.T) {
	retail := money.Cents(5000, "USD")
	q := PriceQuote(nil, "v1", retail)
	require.False(t, q.IsWholesale)
	require.Equal(t, retail, q.Price)
	require.True(t, q.Savings.IsZero())
}

func TestPriceQuoteUnknownTier(t *testing.T) {
	bogus := Tier("platinum")
	retail := money.Cents(5000, "USD")
	q := PriceQuote(&bogus, "v1", retail)
	require.False(t, q.IsWholesale)
	require.Equal(t, retail, q.Price)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("  Growth ")
	require.NoError(t, err)
	require.Equal(t, TierGrowth, tier)

	_, err = ParseTier("platinum")
	require.ErrorIs(t, err, ErrUnknownTier)
}

type stubTierStore struct {
	tier *Tier
}

func (s stubTierStore) GetCustomerTier(context.Context, uuid.UUID) (*Tier, error) {
	return s.tier, nil
}

func TestQuoteForLoadsAssignedTier(t *testing.T) {
	tier := TierEnterprise
	r := &Resolver{Store: stubTierStore{tier: &tier}}
	q, err := r.QuoteFor(context.Background(), uuid.New(), "v1", money.Cents(10000, "USD"))
	require.NoError(t, err)
	require.True(t, q.IsWholesale)
	require.Equal(t, int64(6000), q.Price.Amount)
}
