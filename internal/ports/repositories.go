package ports

import (
	"context"

	"bookstore-orders/internal/domain/books"
	"bookstore-orders/internal/domain/orders"
)

// UnitOfWork wraps a function in a DB transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository coordinates orders + items. CreateOrder persists the total
// computed at creation; nothing ever recomputes it.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *orders.Order) error
	GetByID(ctx context.Context, id int64) (*orders.Order, error)
	UpdateStatus(ctx context.Context, id int64, status orders.OrderStatus) error
}

// BookRepository reads the catalog; the pipeline only needs price snapshots.
type BookRepository interface {
	GetByID(ctx context.Context, id int64) (*books.Book, error)
}
