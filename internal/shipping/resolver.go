package shipping

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/maison-living/backend-maison/internal/money"
)

// ErrNoRoute is returned when no shipping options serve the destination.
var ErrNoRoute = errors.New("shipping unavailable for destination")

// Option is one way to ship to a (country, region) pair. Multiple options may
// exist per pair; the caller selects one, the resolver never auto-selects.
type Option struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       money.Money `json:"price"`
	ETDMinDays  int         `json:"etdMinDays"`
	ETDMaxDays  int         `json:"etdMaxDays"`
}

// Store loads the options configured for a destination.
type Store interface {
	GetShippingOptions(ctx context.Context, country, regionID string) ([]Option, error)
}

// Resolver returns the available options for a destination and prices a
// caller-selected option against the free-shipping threshold.
type Resolver struct {
	Store Store
	// FreeThreshold is the subtotal at or above which shipping is free.
	// Zero disables the override.
	FreeThreshold money.Money
}

// OptionsFor returns the ordered options for the destination: cheapest first,
// id as tie-break. An unsupported destination yields an empty slice, not an
// error; callers render "shipping unavailable".
func (r *Resolver) OptionsFor(ctx context.Context, country, regionID string) ([]Option, error) {
	if r == nil || r.Store == nil {
		return nil, errors.New("shipping resolver not configured")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	regionID = strings.TrimSpace(regionID)
	if country == "" || regionID == "" {
		return nil, errors.New("country and region are required")
	}
	options, err := r.Store.GetShippingOptions(ctx, country, regionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].Price.Amount != options[j].Price.Amount {
			return options[i].Price.Amount < options[j].Price.Amount
		}
		return options[i].ID < options[j].ID
	})
	return options, nil
}

// EffectivePrice returns what the caller actually pays for the selected
// option. At or above the free-shipping threshold the price is forced to
// zero regardless of the option's listed price.
func (r *Resolver) EffectivePrice(opt Option, subtotal money.Money) money.Money {
	if r != nil && r.FreeThreshold.Amount > 0 && subtotal.GTE(r.FreeThreshold) {
		return money.Zero(subtotal.Currency)
	}
	return opt.Price
}

// Selection tracks the caller's shipping choice on a cart. Until an option
// is selected, shipping is unresolved and must not be assumed zero — "no
// selection yet" and "free shipping" are different states even though both
// render as non-numeric to the customer.
type Selection struct {
	Option *Option `json:"option,omitempty"`
}

// Resolved reports whether an option has been chosen.
func (s Selection) Resolved() bool {
	return s.Option != nil
}
