package cart

import (
	"time"

	"github.com/maison-living/backend-maison/internal/money"
)

// Line is one cart entry: a variant reference, its unit price and a positive
// quantity, plus optional display metadata.
type Line struct {
	ProductID string      `json:"productId"`
	VariantID string      `json:"variantId"`
	SKU       string      `json:"sku,omitempty"`
	Material  string      `json:"material,omitempty"`
	UnitPrice money.Money `json:"unitPrice"`
	Qty       int         `json:"qty"`
}

// Destination is where the cart would ship.
type Destination struct {
	Country  string `json:"country"`
	RegionID string `json:"regionId"`
}

// Cart is the in-progress, mutable collection of line items prior to
// checkout. It lives in the session store and is destroyed when checkout
// freezes it into an order.
type Cart struct {
	ID               string       `json:"id"`
	CustomerID       string       `json:"customerId,omitempty"`
	Currency         string       `json:"currency"`
	Lines            []Line       `json:"lines"`
	CouponCode       string       `json:"couponCode,omitempty"`
	Destination      *Destination `json:"destination,omitempty"`
	ShippingOptionID string       `json:"shippingOptionId,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Subtotal is the retail sum over all lines, before any tier or coupon
// discount.
func (c Cart) Subtotal() money.Money {
	total := money.Zero(c.Currency)
	for _, line := range c.Lines {
		total = total.Add(line.UnitPrice.MulQty(line.Qty))
	}
	return total
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
