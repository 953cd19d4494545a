package events

// Typed payloads for the topics the platform emits. Each topic with a struct
// here gets its schema registered on the bus at wiring time; published
// payloads of the matching type are validated against the struct tags.

// OrderItemRef identifies a purchased line inside an order event.
type OrderItemRef struct {
	ProductID string `json:"productId" validate:"required"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// OrderCreated is published once when checkout freezes a cart into an order.
type OrderCreated struct {
	ID         string         `json:"id" validate:"required"`
	CustomerID string         `json:"customerId" validate:"required"`
	Total      int64          `json:"total" validate:"gte=0"`
	Currency   string         `json:"currency" validate:"len=3"`
	Items      []OrderItemRef `json:"items" validate:"min=1,dive"`
	Email      string         `json:"email,omitempty"`
}

// OrderUpdated accompanies every accepted lifecycle transition.
type OrderUpdated struct {
	ID                string `json:"id" validate:"required"`
	Status            string `json:"status" validate:"required"`
	PaymentStatus     string `json:"paymentStatus" validate:"required"`
	FulfillmentStatus string `json:"fulfillmentStatus" validate:"required"`
}

// OrderCancelled is published when an order reaches the canceled state.
type OrderCancelled struct {
	ID           string         `json:"id" validate:"required"`
	Reason       string         `json:"reason,omitempty"`
	RefundAmount *int64         `json:"refundAmount,omitempty"`
	Items        []OrderItemRef `json:"items,omitempty" validate:"dive"`
	Email        string         `json:"email,omitempty"`
}

// OrderShipped is published when tracking is attached and the order is
// marked fulfilled.
type OrderShipped struct {
	ID             string `json:"id" validate:"required"`
	TrackingNumber string `json:"trackingNumber" validate:"required"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingLink   string `json:"trackingLink,omitempty"`
	Email          string `json:"email,omitempty"`
}

// ProductLowStock is published by the inventory collaborator when stock for a
// variant crosses the configured threshold.
type ProductLowStock struct {
	ProductID    string `json:"productId" validate:"required"`
	VariantID    string `json:"variantId,omitempty"`
	CurrentStock int    `json:"currentStock" validate:"gte=0"`
	Threshold    int    `json:"threshold" validate:"gt=0"`
}

// RegisterDefaultSchemas wires the payload prototypes above onto the bus.
func RegisterDefaultSchemas(b *Bus) {
	b.RegisterSchema(TopicOrderCreated, OrderCreated{})
	b.RegisterSchema(TopicOrderUpdated, OrderUpdated{})
	b.RegisterSchema(TopicOrderCancelled, OrderCancelled{})
	b.RegisterSchema(TopicOrderShipped, OrderShipped{})
	b.RegisterSchema(TopicProductLowStock, ProductLowStock{})
}
