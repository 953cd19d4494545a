package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated    = "order:created"
	TopicOrderUpdated    = "order:updated"
	TopicOrderCancelled  = "order:cancelled"
	TopicOrderShipped    = "order:shipped"
	TopicProductLowStock = "product:low_stock"

	// TopicWildcard subscribers receive every published event.
	TopicWildcard = "*"
)

// DefaultTopics returns the canonical list of topics that carry a registered
// payload schema.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderUpdated,
		TopicOrderCancelled,
		TopicOrderShipped,
		TopicProductLowStock,
	}
}
