package orders

import "time"

// OrderItem is a single line of an order. UnitPrice is the book price captured
// at order time; later book-price edits never touch it.
type OrderItem struct {
	ID        int64 // DB PK
	OrderID   int64
	BookID    int64
	Quantity  int
	UnitPrice Money // per-unit snapshot in cents
}

// Order represents a customer's order.
//
// CustomerEmail is denormalized on purpose: it is not a foreign key, and
// customer lookups for display are best-effort by email match.
type Order struct {
	ID            int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CustomerEmail string
	Items         []OrderItem
	TotalAmount   Money // computed once at creation, immutable afterwards
	Status        OrderStatus
}

// SetTotalAmount computes the total from the item snapshots. Called exactly
// once, before the order is persisted.
func (order *Order) SetTotalAmount() {
	var sum Money
	for _, it := range order.Items {
		sum += Money(it.Quantity) * it.UnitPrice
	}
	order.TotalAmount = sum
}
