package ports

import (
	"context"

	"bookstore-orders/internal/domain/orders"
	"bookstore-orders/internal/shared/contracts"
)

// OrderService handles the POST /api/orders flow: validate → snapshot prices →
// total → tx insert → fire-and-forget publish.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd CreateOrderCommand) (*orders.Order, error)
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
}

type CreateOrderCommand struct {
	CustomerEmail string
	Items         []ItemInput
}

type ItemInput struct {
	BookID   int64
	Quantity int
}

// Publisher sends a raw message to a named queue. Implemented by the RabbitMQ
// client; order creation treats every error from it as non-fatal.
type Publisher interface {
	Publish(queue string, body []byte, persistent bool) error
}

// Notifier fans a live notification out to every connected subscriber. Publish
// must never block the caller.
type Notifier interface {
	Publish(n contracts.Notification)
}
