package crmrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookstore-orders/internal/shared/contracts"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/salesforce"
)

// errMalformed marks a message that can never be processed; the consume loop
// nacks it without requeue so the broker dead-letters it.
var errMalformed = errors.New("malformed order message")

// Relay pushes order snapshots from the work queue into the CRM. One message
// is in flight at a time per instance, keeping CRM object creation correlated
// with queue order.
type Relay struct {
	crm    *salesforce.Client
	logger *logger.Logger
}

// New creates a Relay around a CRM client.
func New(crm *salesforce.Client, logger *logger.Logger) *Relay {
	return &Relay{crm: crm, logger: logger}
}

// Handle processes one delivery body. It returns errMalformed for undecodable
// bodies; any CRM failure after the auth retry is logged here and reported nil
// so the caller acks. The message is lost: there is no DLQ routing on terminal
// CRM failure.
func (r *Relay) Handle(ctx context.Context, body []byte) error {
	var msg contracts.OrderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.logger.Error(ctx, "message_decode_failed", "Failed to decode order message", err)
		return errMalformed
	}

	if err := r.push(ctx, msg); err != nil {
		r.logger.Error(ctx, "crm_push_failed", "Failed to push order to CRM; message will be acked and dropped", err)
		return nil
	}

	r.logger.Info(ctx, "crm_case_created", "Order pushed to CRM", map[string]any{
		"order_id": msg.OrderID,
	})
	return nil
}

// push creates the CRM case, re-authenticating exactly once on a rejected
// token: invalidate the cache, authenticate again, retry the POST once.
func (r *Relay) push(ctx context.Context, msg contracts.OrderMessage) error {
	cs := MapOrderToCase(msg)

	err := r.crm.CreateCase(ctx, cs)
	if errors.Is(err, salesforce.ErrUnauthorized) {
		r.logger.Warn(ctx, "crm_token_expired", "Cached token rejected; re-authenticating once", map[string]any{
			"order_id": msg.OrderID,
		})
		r.crm.InvalidateToken()
		err = r.crm.CreateCase(ctx, cs)
	}
	return err
}

// MapOrderToCase maps an order snapshot to a CRM case. The description carries
// only the first line item; the remaining lines are not represented in the CRM.
func MapOrderToCase(msg contracts.OrderMessage) salesforce.Case {
	subject := fmt.Sprintf("Web Order #%d", msg.OrderID)

	desc := fmt.Sprintf("Web Order #%d from %s. Total: $%.2f.",
		msg.OrderID, msg.CustomerEmail, msg.TotalAmount)
	if len(msg.Items) > 0 {
		first := msg.Items[0]
		desc += fmt.Sprintf(" First item: book %d x%d @ $%.2f.",
			first.BookID, first.Quantity, first.UnitPrice)
	}

	return salesforce.Case{
		Subject:     subject,
		Description: desc,
		Status:      "New",
		Origin:      "Web",
	}
}
