package contracts

import "time"

// OrderItemMessage is the wire-format for a single line in an order message.
type OrderItemMessage struct {
	BookID    int64   `json:"book_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"` // snapshot in dollars
}

// OrderMessage is a serialized snapshot of an order, published to the "orders"
// work queue after the creating transaction commits. Delivery is at-most-once
// from the publisher's perspective: publish failures are swallowed.
type OrderMessage struct {
	OrderID       int64              `json:"order_id"`
	CustomerEmail string             `json:"customer_email"`
	Items         []OrderItemMessage `json:"items"`
	TotalAmount   float64            `json:"total_amount"` // dollars
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// StatusUpdateMessage flows on the "order-updates" queue. The CRM side is
// loosely typed; these are the only fields the consumer actually reads. The
// order reference is embedded in Description as free text.
type StatusUpdateMessage struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Notification is the ephemeral payload fanned out to live SSE subscribers.
// It is never persisted; its lifetime is bounded by the connection.
type Notification struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}
