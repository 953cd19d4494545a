package wholesale

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/money"
)

// Tier is a negotiated customer-level discount bracket, independent of any
// single cart's contents. A customer holds at most one active tier; changes
// are administrator-driven and only affect future price computations.
type Tier string

const (
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
)

// ErrUnknownTier is returned when an administrator submits a tier name
// outside the enumeration.
var ErrUnknownTier = errors.New("unknown wholesale tier")

// discountBps maps each tier to its discount in basis points.
var discountBps = map[Tier]int64{
	TierStarter:    2000,
	TierGrowth:     3000,
	TierEnterprise: 4000,
}

// ParseTier validates an administrator-supplied tier name.
func ParseTier(value string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := discountBps[t]; !ok {
		return "", ErrUnknownTier
	}
	return t, nil
}

// DiscountBps returns the tier's discount in basis points, or zero for an
// unrecognised tier.
func (t Tier) DiscountBps() int64 {
	return discountBps[t]
}

// Quote is the wholesale price computation for one variant.
type Quote struct {
	IsWholesale bool        `json:"isWholesale"`
	Price       money.Money `json:"price"`
	Savings     money.Money `json:"savings"`
}

// Store resolves the tier assigned to a customer, nil when none.
type Store interface {
	GetCustomerTier(ctx context.Context, customerID uuid.UUID) (*Tier, error)
}

// Resolver computes tier prices for variant/retail-price pairs.
type Resolver struct {
	Store Store
}

// QuoteFor loads the customer's tier and prices the variant. Customers
// without a tier get the retail price unchanged.
func (r *Resolver) QuoteFor(ctx context.Context, customerID uuid.UUID, variantID string, retail money.Money) (Quote, error) {
	if r == nil || r.Store == nil {
		return Quote{}, errors.New("wholesale resolver not configured")
	}
	tier, err := r.Store.GetCustomerTier(ctx, customerID)
	if err != nil {
		return Quote{}, err
	}
	return PriceQuote(tier, variantID, retail), nil
}

// PriceQuote prices a single variant for the given tier. A nil or
// unrecognised tier yields the retail price with IsWholesale=false. The
// wholesale price is retail minus the tier share, rounded half-up through
// the money package.
func PriceQuote(tier *Tier, _ string, retail money.Money) Quote {
	if tier == nil {
		return Quote{Price: retail, Savings: money.Zero(retail.Currency)}
	}
	bps := tier.DiscountBps()
	if bps == 0 {
		return Quote{Price: retail, Savings: money.Zero(retail.Currency)}
	}
	savings := retail.PercentOf(bps)
	return Quote{
		IsWholesale: true,
		Price:       retail.Sub(savings),
		Savings:     savings,
	}
}
