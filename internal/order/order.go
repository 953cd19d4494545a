package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/money"
)

// Status is the customer/business-visible lifecycle axis.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// PaymentStatus is the payment axis, advanced by provider callbacks or
// manual admin override. Retail orders use pending/paid/refunded; wholesale
// orders on invoice terms use awaiting/paid/overdue.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentAwaiting PaymentStatus = "awaiting"
	PaymentPaid     PaymentStatus = "paid"
	PaymentOverdue  PaymentStatus = "overdue"
	PaymentRefunded PaymentStatus = "refunded"
)

// FulfillmentStatus tracks whether physical goods have been dispatched,
// independent of payment or overall order status.
type FulfillmentStatus string

const (
	FulfillmentNotFulfilled FulfillmentStatus = "not_fulfilled"
	FulfillmentFulfilled    FulfillmentStatus = "fulfilled"
)

// Channel distinguishes retail checkouts from negotiated wholesale orders.
type Channel string

const (
	ChannelRetail    Channel = "retail"
	ChannelWholesale Channel = "wholesale"
)

// Line is an immutable order line, frozen from the cart at checkout.
type Line struct {
	ProductID string      `json:"productId"`
	VariantID string      `json:"variantId"`
	SKU       string      `json:"sku,omitempty"`
	Material  string      `json:"material,omitempty"`
	UnitPrice money.Money `json:"unitPrice"`
	Qty       int         `json:"qty"`
	Subtotal  money.Money `json:"subtotal"`
}

// Address is the frozen shipping destination.
type Address struct {
	ReceiverName string `json:"receiverName"`
	Phone        string `json:"phone,omitempty"`
	Country      string `json:"country"`
	RegionID     string `json:"regionId"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
}

// Tracking carries the fulfillment evidence attached by "add tracking".
type Tracking struct {
	Number  string `json:"number"`
	Carrier string `json:"carrier,omitempty"`
	Link    string `json:"link,omitempty"`
}

// Order is the immutable snapshot created at checkout confirmation. Amounts
// are frozen from the pricing engine's last computation; only the three
// status axes (and tracking) change afterwards, exclusively through the
// lifecycle service. Orders are never deleted.
type Order struct {
	ID           uuid.UUID         `json:"id"`
	CustomerID   uuid.UUID         `json:"customerId"`
	Channel      Channel           `json:"channel"`
	Status       Status            `json:"status"`
	Payment      PaymentStatus     `json:"paymentStatus"`
	Fulfillment  FulfillmentStatus `json:"fulfillmentStatus"`
	Subtotal     money.Money       `json:"subtotal"`
	Discount     money.Money       `json:"discount"`
	Shipping     money.Money       `json:"shipping"`
	Total        money.Money       `json:"total"`
	Currency     string            `json:"currency"`
	CouponCode   string            `json:"couponCode,omitempty"`
	Lines        []Line            `json:"lines"`
	Address      Address           `json:"address"`
	Tracking     *Tracking         `json:"tracking,omitempty"`
	CancelReason string            `json:"cancelReason,omitempty"`
	// Version is the optimistic-concurrency token; Save rejects stale writes.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the order status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}
