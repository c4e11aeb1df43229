package orderservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bookstore-orders/internal/domain/orders"
	"bookstore-orders/internal/ports"
	"bookstore-orders/internal/shared/contracts"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"

	"github.com/jackc/pgx/v5"
)

// ErrBookNotFound is returned when an order line references an unknown book.
var ErrBookNotFound = errors.New("book not found")

// Service implements ports.OrderService.
type Service struct {
	uow    ports.UnitOfWork
	repo   ports.OrderRepository
	books  ports.BookRepository
	pub    ports.Publisher
	logger *logger.Logger
}

var _ ports.OrderService = (*Service)(nil)

// New creates a new OrderService with the required dependencies.
func New(uow ports.UnitOfWork, repo ports.OrderRepository, books ports.BookRepository, pub ports.Publisher, logger *logger.Logger) *Service {
	return &Service{uow: uow, repo: repo, books: books, pub: pub, logger: logger}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// PlaceOrder validates input, snapshots book prices, computes the total once,
// persists the order, and then publishes an OrderMessage to the work queue.
// Publishing is strictly fire-and-forget: any broker error is logged and
// swallowed, and the caller observes a successfully created order regardless.
func (service *Service) PlaceOrder(ctx context.Context, cmd ports.CreateOrderCommand) (*orders.Order, error) {
	cmd.CustomerEmail = strings.TrimSpace(cmd.CustomerEmail)
	if !emailPattern.MatchString(cmd.CustomerEmail) {
		return nil, errors.New("customer_email must be a valid email address")
	}
	if len(cmd.Items) < 1 || len(cmd.Items) > 50 {
		return nil, errors.New("order must contain between 1 and 50 items")
	}
	for i, it := range cmd.Items {
		if it.BookID <= 0 {
			return nil, fmt.Errorf("item %d book_id must be positive", i+1)
		}
		if it.Quantity < 1 || it.Quantity > 100 {
			return nil, fmt.Errorf("item %d quantity must be between 1 and 100", i+1)
		}
	}

	order := &orders.Order{
		CustomerEmail: cmd.CustomerEmail,
		Status:        orders.StatusPending,
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		order.Items = make([]orders.OrderItem, len(cmd.Items))
		for i, it := range cmd.Items {
			book, err := service.books.GetByID(txCtx, it.BookID)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %d", ErrBookNotFound, it.BookID)
			}
			if err != nil {
				service.logger.Error(ctx, "db_transaction_failed", "failed to load book for order line", err)
				return err
			}
			// unit price is a snapshot, not a live reference
			order.Items[i] = orders.OrderItem{
				BookID:    it.BookID,
				Quantity:  it.Quantity,
				UnitPrice: book.Price,
			}
		}

		order.SetTotalAmount()

		if err := service.repo.CreateOrder(txCtx, order); err != nil {
			service.logger.Error(ctx, "db_transaction_failed", "failed to create order", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Integration is decoupled from order creation: a dead broker must never
	// make this request fail.
	service.publishCreated(ctx, order)

	return order, nil
}

// GetOrder returns an order with its line items.
func (service *Service) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	var out *orders.Order
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = service.repo.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// publishCreated serializes the order snapshot and publishes it to the work
// queue. Every failure is swallowed after logging.
func (service *Service) publishCreated(ctx context.Context, order *orders.Order) {
	msg := contracts.OrderMessage{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount.ToFloat2(),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
	}
	for _, it := range order.Items {
		msg.Items = append(msg.Items, contracts.OrderItemMessage{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.ToFloat2(),
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "order_publish_failed", "failed to marshal order message", err)
		return
	}

	if err := service.pub.Publish(rabbitmq.QueueOrders, body, true); err != nil {
		service.logger.Error(ctx, "order_publish_failed", "failed to publish order to work queue", err)
		return
	}

	service.logger.Debug(ctx, "order_published", "Order published to work queue", map[string]any{
		"order_id": order.ID,
	})
}
