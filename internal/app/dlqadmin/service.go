package dlqadmin

import (
	"context"
	"fmt"
	"time"

	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BrokerChannel is the slice of an AMQP channel the remediation walks need.
// Satisfied by *rabbitmq.AdminChannel; tests supply an in-memory fake.
type BrokerChannel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueuePurge(name string, noWait bool) (int, error)
	Close() error
}

// OpenChannel dials a fresh broker connection and opens a channel on it. Each
// remediation request gets its own, trading latency for isolation from the
// shared publisher/consumer channels.
type OpenChannel func() (BrokerChannel, error)

// DLQMessage is the operator's view of one dead-lettered message. Body and
// headers are preserved verbatim; the DLQ itself stays the owner until the
// message is requeued or deleted.
type DLQMessage struct {
	Body       string         `json:"body"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Service implements the remediation operations against per-queue DLQs.
//
// The single-item operations re-walk the whole DLQ by position. That is only
// safe under one operator at a time: a concurrent producer writing to the DLQ
// mid-walk will see messages reordered or interleaved. The walks are also not
// atomic: a crash mid-walk can lose or duplicate messages. Acceptable for an
// administrative tool.
type Service struct {
	open   OpenChannel
	logger *logger.Logger
}

// NewService creates a Service that opens a fresh channel per operation.
func NewService(open OpenChannel, logger *logger.Logger) *Service {
	return &Service{open: open, logger: logger}
}

// Count returns the number of messages currently in the DLQ of queueBase.
func (s *Service) Count(ctx context.Context, queueBase string) (int, error) {
	ch, err := s.open()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	return s.count(ch, queueBase)
}

func (s *Service) count(ch BrokerChannel, queueBase string) (int, error) {
	q, err := ch.QueueDeclarePassive(rabbitmq.DLQName(queueBase), true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspect %s: %w", rabbitmq.DLQName(queueBase), err)
	}
	return q.Messages, nil
}

// List non-destructively peeks up to maxCount messages: each is read and then
// immediately negative-acknowledged with requeue, preserving DLQ contents.
func (s *Service) List(ctx context.Context, queueBase string, maxCount int) ([]DLQMessage, error) {
	ch, err := s.open()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	dlq := rabbitmq.DLQName(queueBase)

	var (
		out  []DLQMessage
		tags []uint64
	)
	for len(out) < maxCount {
		d, ok, err := ch.Get(dlq, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		props := map[string]any{}
		for k, v := range d.Headers {
			props[k] = v
		}
		if d.ContentType != "" {
			props["content_type"] = d.ContentType
		}

		out = append(out, DLQMessage{
			Body:       string(d.Body),
			Properties: props,
			Timestamp:  d.Timestamp,
		})
		tags = append(tags, d.DeliveryTag)
	}

	// requeue everything we looked at, in read order
	for _, tag := range tags {
		if err := ch.Nack(tag, false, true); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// RequeueAll drains the DLQ and republishes every message to the work queue
// with its original headers, marked persistent. A message leaves the DLQ only
// after its republish succeeded.
func (s *Service) RequeueAll(ctx context.Context, queueBase string) (int, error) {
	ch, err := s.open()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	// bound the walk by the count at start; republished stragglers from
	// concurrent producers stay behind for the next run
	total, err := s.count(ch, queueBase)
	if err != nil {
		return 0, err
	}

	dlq := rabbitmq.DLQName(queueBase)
	requeued := 0
	for i := 0; i < total; i++ {
		d, ok, err := ch.Get(dlq, false)
		if err != nil {
			return requeued, err
		}
		if !ok {
			break
		}

		if err := s.republish(ctx, ch, queueBase, d); err != nil {
			return requeued, err
		}
		if err := ch.Ack(d.DeliveryTag, false); err != nil {
			return requeued, err
		}
		requeued++
	}

	s.logger.Info(ctx, "dlq_requeued_all", "Requeued all DLQ messages to work queue", map[string]any{
		"queue": queueBase, "requeued": requeued,
	})
	return requeued, nil
}

// RequeueOne walks the DLQ sequentially; the message at the 0-based index is
// republished to the work queue, every other message is republished back onto
// the DLQ unchanged.
func (s *Service) RequeueOne(ctx context.Context, queueBase string, index int) error {
	return s.walkOne(ctx, queueBase, index, true)
}

// DeleteOne is the same re-walk, but the target message is acknowledged and
// dropped instead of republished.
func (s *Service) DeleteOne(ctx context.Context, queueBase string, index int) error {
	return s.walkOne(ctx, queueBase, index, false)
}

func (s *Service) walkOne(ctx context.Context, queueBase string, index int, requeue bool) error {
	ch, err := s.open()
	if err != nil {
		return err
	}
	defer ch.Close()

	total, err := s.count(ch, queueBase)
	if err != nil {
		return err
	}
	if index < 0 || index >= total {
		return fmt.Errorf("index %d out of range (dlq has %d messages)", index, total)
	}

	dlq := rabbitmq.DLQName(queueBase)
	for i := 0; i < total; i++ {
		d, ok, err := ch.Get(dlq, false)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		switch {
		case i == index && requeue:
			if err := s.republish(ctx, ch, queueBase, d); err != nil {
				return err
			}
		case i == index:
			// delete: just ack below
		default:
			// put everyone else back at the tail of the DLQ
			if err := s.republish(ctx, ch, dlq, d); err != nil {
				return err
			}
		}

		if err := ch.Ack(d.DeliveryTag, false); err != nil {
			return err
		}
	}

	action := "dlq_deleted_one"
	if requeue {
		action = "dlq_requeued_one"
	}
	s.logger.Info(ctx, action, "DLQ single-message operation completed", map[string]any{
		"queue": queueBase, "index": index,
	})
	return nil
}

// Purge unconditionally empties the DLQ and returns how many messages were dropped.
func (s *Service) Purge(ctx context.Context, queueBase string) (int, error) {
	ch, err := s.open()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	n, err := ch.QueuePurge(rabbitmq.DLQName(queueBase), false)
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "dlq_purged", "DLQ purged", map[string]any{
		"queue": queueBase, "purged": n,
	})
	return n, nil
}

// republish copies a delivery to the given queue, headers intact, persistent.
func (s *Service) republish(ctx context.Context, ch BrokerChannel, queue string, d amqp.Delivery) error {
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		Headers:      d.Headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
	})
}
