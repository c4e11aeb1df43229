package crmrelay

import (
	"context"
	"errors"
	"time"

	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumeForever continuously (re)creates a channel and consumes the work
// queue with prefetch 1: handling is strictly sequential per instance.
func ConsumeForever(ctx context.Context, rmq *rabbitmq.Client, relay *Relay, log *logger.Logger) {
	const (
		prefetch       = 1 // sequential per consumer instance, keeps CRM creation order-correlated
		retryBaseDelay = time.Second
		retryMaxDelay  = 30 * time.Second
	)

	backoff := retryBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := rmq.NewConsumerChannel(prefetch)
		if err != nil {
			log.Error(ctx, "rabbitmq_channel_open_failed", "Failed to open consumer channel", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		backoff = retryBaseDelay

		deliveries, err := ch.Consume(rabbitmq.QueueOrders, "", false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			log.Error(ctx, "rabbitmq_consume_failed", "Failed to start consuming orders", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	consumption:
		for {
			select {
			case <-ctx.Done():
				_ = ch.Close()
				return

			case amqpErr := <-closed:
				if amqpErr != nil {
					log.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", amqpErr)
				}
				break consumption

			case d, ok := <-deliveries:
				if !ok {
					log.Error(ctx, "rabbitmq_deliveries_closed", "Deliveries channel closed", errors.New("deliveries channel closed"))
					break consumption
				}
				handleDelivery(ctx, relay, d)
			}
		}

		// small delay before recreating the channel (avoid hot loop)
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, retryMaxDelay)
	}
}

// handleDelivery runs one message through the relay and acks/nacks it.
// Malformed payloads go to the DLQ; everything else is acked, including
// terminal CRM failures.
func handleDelivery(ctx context.Context, relay *Relay, d amqp.Delivery) {
	err := relay.Handle(ctx, d.Body)
	if errors.Is(err, errMalformed) {
		_ = d.Nack(false, false) // dead-letter unrecoverable payloads
		return
	}
	_ = d.Ack(false)
}

// sleepWithContext sleeps for the given duration or returns early if ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles the backoff up to the cap.
func nextBackoff(curr, cap time.Duration) time.Duration {
	n := curr * 2
	if n > cap {
		return cap
	}
	return n
}
