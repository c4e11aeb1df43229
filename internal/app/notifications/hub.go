package notifications

import (
	"context"
	"sync"

	"bookstore-orders/internal/ports"
	"bookstore-orders/internal/shared/contracts"
)

// subscriberBuffer bounds each subscriber's queue. A subscriber that falls
// this far behind loses notifications rather than blocking the publisher or
// its peers.
const subscriberBuffer = 16

// Hub is an in-process broadcast channel bridging the status-update consumer
// to SSE subscribers. Safe for concurrent publish and subscribe/unsubscribe.
// Subscribers only see notifications published while they are registered; no
// history is replayed.
type Hub struct {
	mu   sync.Mutex
	subs map[chan contracts.Notification]struct{}
}

var _ ports.Notifier = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan contracts.Notification]struct{})}
}

// Publish delivers n to every current subscriber. It never blocks: a full
// subscriber buffer drops the notification for that subscriber only.
func (h *Hub) Publish(n contracts.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			// slow subscriber: drop for this one, keep the rest flowing
		}
	}
}

// Subscribe registers a new subscriber. The returned channel yields future
// notifications in publish order and is closed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context) <-chan contracts.Notification {
	ch := make(chan contracts.Notification, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()

	return ch
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remove deregisters and closes the channel. Closing under the lock is safe:
// all sends happen under the same lock.
func (h *Hub) remove(ch chan contracts.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}
