package postgres

import (
	"context"

	"bookstore-orders/internal/domain/orders"
	"bookstore-orders/internal/ports"
)

// OrdersRepo implements persistence for orders using pgx and SQL.
type OrdersRepo struct{}

// NewOrdersRepo constructs a new OrdersRepo.
func NewOrdersRepo() ports.OrderRepository {
	return &OrdersRepo{}
}

// CreateOrder inserts the order header and its line items. Amounts are stored
// as NUMERIC(10,2); we send integer cents and divide by 100 in SQL to avoid
// floating errors.
func (r *OrdersRepo) CreateOrder(ctx context.Context, order *orders.Order) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (customer_email, total_amount, status)
		VALUES ($1, $2::numeric/100, $3)
		RETURNING id, created_at, updated_at`,
		order.CustomerEmail,
		int64(order.TotalAmount),
		string(orders.StatusPending),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}
	order.Status = orders.StatusPending

	for i := range order.Items {
		it := &order.Items[i]
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, book_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric/100)
			RETURNING id
		`,
			order.ID,
			it.BookID,
			it.Quantity,
			int64(it.UnitPrice),
		).Scan(&it.ID)
		if err != nil {
			return err
		}
		it.OrderID = order.ID
	}

	return nil
}

// GetByID retrieves an order with its line items. Returns pgx.ErrNoRows when
// the order does not exist.
func (r *OrdersRepo) GetByID(ctx context.Context, id int64) (*orders.Order, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var order orders.Order
	err = tx.QueryRow(ctx, `
		SELECT id, customer_email, total_amount::numeric*100, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerEmail, &order.TotalAmount, &order.Status,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, book_id, quantity, unit_price::numeric*100
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item orders.OrderItem
		if err := rows.Scan(&item.ID, &item.BookID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateStatus overwrites the order status. Total amount is never touched
// here; it is immutable after creation.
func (r *OrdersRepo) UpdateStatus(ctx context.Context, id int64, status orders.OrderStatus) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2
	`, string(status), id)
	return err
}
