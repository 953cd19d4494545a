package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maison-living/backend-maison/internal/money"
)

var (
	// ErrNotFound is returned when no coupon matches the normalised code.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon's expiry has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrMinimumNotMet indicates the cart subtotal is below the coupon requirement.
	ErrMinimumNotMet = errors.New("coupon minimum cart total not met")
	// ErrInvalidInput is returned for malformed codes before any lookup.
	ErrInvalidInput = errors.New("invalid coupon code")
)

// Kind enumerates the supported discount rules.
type Kind string

const (
	// KindPercent discounts a basis-point share of the subtotal.
	KindPercent Kind = "percent"
	// KindFixed discounts a fixed amount, capped at the subtotal.
	KindFixed Kind = "fixed"
)

// Coupon captures the promotional rule as stored. The resolver treats it as
// read-only; usage bookkeeping happens elsewhere.
type Coupon struct {
	Code        string
	Kind        Kind
	PercentBps  int64
	Amount      money.Money
	MinSubtotal money.Money
	ExpiresAt   *time.Time
}

// Discount is a successfully priced coupon application.
type Discount struct {
	Code   string
	Amount money.Money
}

// Store loads coupons by their normalised (lowercase) code.
type Store interface {
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
}

// Resolver validates and prices a coupon code against a cart subtotal.
type Resolver struct {
	Store Store
	Now   func() time.Time
}

func (r *Resolver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Normalize trims and lowercases a coupon code for case-insensitive matching.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Resolve looks up the code and computes the discount for the given subtotal.
// A coupon never discounts below zero: fixed amounts are capped at the
// subtotal. Wholesale tier discounts are not consulted here; combining the
// two is the pricing engine's decision.
func (r *Resolver) Resolve(ctx context.Context, code string, subtotal money.Money) (Discount, error) {
	if r == nil || r.Store == nil {
		return Discount{}, errors.New("coupon resolver not configured")
	}
	normalized := Normalize(code)
	if normalized == "" {
		return Discount{}, ErrInvalidInput
	}
	c, err := r.Store.GetCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("load coupon %q: %w", normalized, err)
	}
	if c.ExpiresAt != nil && r.now().After(*c.ExpiresAt) {
		return Discount{}, ErrExpired
	}
	if !c.MinSubtotal.IsZero() && !subtotal.GTE(c.MinSubtotal) {
		return Discount{}, ErrMinimumNotMet
	}
	return Discount{Code: c.Code, Amount: discountAmount(c, subtotal)}, nil
}

func discountAmount(c Coupon, subtotal money.Money) money.Money {
	switch c.Kind {
	case KindPercent:
		return subtotal.PercentOf(c.PercentBps)
	case KindFixed:
		fixed := c.Amount
		if fixed.Currency == "" {
			fixed.Currency = subtotal.Currency
		}
		return money.Min(fixed, subtotal).Max0()
	default:
		return money.Zero(subtotal.Currency)
	}
}
