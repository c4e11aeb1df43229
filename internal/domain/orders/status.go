package orders

// OrderStatus is the current status of an order in its lifecycle.
//
// Only StatusPending is assigned locally (at creation). Every later value is
// whatever the CRM reported in a status-update message; there is no state
// machine on our side, a differing inbound status overwrites the previous one.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusCompleted  OrderStatus = "Completed"
	StatusActivated  OrderStatus = "Activated"
)
