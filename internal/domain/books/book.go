package books

import (
	"time"

	"bookstore-orders/internal/domain/orders"
)

// Book is the catalog record an order line references. The pipeline only ever
// reads it to snapshot Price at order time.
type Book struct {
	ID        int64
	Title     string
	Author    string
	Price     orders.Money // current list price in cents
	CreatedAt time.Time
}
