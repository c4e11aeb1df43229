package statusconsumer

import (
	"context"
	"encoding/json"
	"errors"

	"bookstore-orders/internal/domain/orders"
	"bookstore-orders/internal/ports"
	"bookstore-orders/internal/shared/contracts"
	"bookstore-orders/internal/shared/logger"

	"github.com/jackc/pgx/v5"
)

// Consumer applies inbound status updates to orders and fans the change out to
// live subscribers. Every failure mode is log-and-drop: no retry, no DLQ.
type Consumer struct {
	uow    ports.UnitOfWork
	orders ports.OrderRepository
	hub    ports.Notifier
	logger *logger.Logger
}

// New creates a Consumer with the required dependencies.
func New(uow ports.UnitOfWork, repo ports.OrderRepository, hub ports.Notifier, logger *logger.Logger) *Consumer {
	return &Consumer{uow: uow, orders: repo, hub: hub, logger: logger}
}

// Handle processes one update message body. It never asks for redelivery; the
// caller always acks.
func (c *Consumer) Handle(ctx context.Context, body []byte) {
	var update contracts.StatusUpdateMessage
	if err := json.Unmarshal(body, &update); err != nil {
		c.logger.Error(ctx, "status_update_decode_failed", "Failed to decode status update; dropping", err)
		return
	}

	orderID, ok := orders.ExtractOrderID(update.Description)
	if !ok {
		c.logger.Warn(ctx, "order_ref_not_found", "No order reference in update description; dropping", map[string]any{
			"crm_id":      update.ID,
			"description": update.Description,
		})
		return
	}

	changed, err := c.apply(ctx, orderID, orders.OrderStatus(update.Status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.logger.Warn(ctx, "order_not_found", "Referenced order does not exist; dropping", map[string]any{
				"order_id": orderID,
				"crm_id":   update.ID,
			})
			return
		}
		c.logger.Error(ctx, "status_update_failed", "Failed to persist status update; dropping", err)
		return
	}
	if !changed {
		// duplicate delivery of the same status: idempotent no-op
		return
	}

	c.logger.Info(ctx, "order_status_updated", "Order status updated from CRM", map[string]any{
		"order_id": orderID,
		"status":   update.Status,
	})

	// best-effort: Publish never blocks and failure to notify never fails the
	// already-committed status update
	c.hub.Publish(contracts.Notification{OrderID: orderID, Status: update.Status})
}

// apply persists the new status in one transaction. Reports changed=false when
// the order already carries the status.
func (c *Consumer) apply(ctx context.Context, orderID int64, status orders.OrderStatus) (bool, error) {
	var changed bool
	err := c.uow.WithinTx(ctx, func(txCtx context.Context) error {
		order, err := c.orders.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == status {
			return nil
		}
		if err := c.orders.UpdateStatus(txCtx, orderID, status); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
