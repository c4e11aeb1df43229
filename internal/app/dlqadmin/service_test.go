package dlqadmin

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
)

type storedMsg struct {
	body        []byte
	headers     amqp.Table
	contentType string
}

type pendingMsg struct {
	queue string
	msg   storedMsg
}

// fakeChannel is an in-memory BrokerChannel. Queues are FIFO slices; fetched
// but unacked messages sit in pending keyed by delivery tag.
type fakeChannel struct {
	queues  map[string][]storedMsg
	pending map[uint64]pendingMsg
	nextTag uint64
	closed  bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queues:  map[string][]storedMsg{},
		pending: map[uint64]pendingMsg{},
	}
}

func (f *fakeChannel) seed(queue string, bodies ...string) {
	for _, b := range bodies {
		f.queues[queue] = append(f.queues[queue], storedMsg{
			body:        []byte(b),
			headers:     amqp.Table{"x-origin": "test"},
			contentType: "application/json",
		})
	}
}

func (f *fakeChannel) bodies(queue string) []string {
	var out []string
	for _, m := range f.queues[queue] {
		out = append(out, string(m.body))
	}
	return out
}

func (f *fakeChannel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	q := f.queues[queue]
	if len(q) == 0 {
		return amqp.Delivery{}, false, nil
	}
	m := q[0]
	f.queues[queue] = q[1:]

	f.nextTag++
	f.pending[f.nextTag] = pendingMsg{queue: queue, msg: m}

	return amqp.Delivery{
		Body:        m.body,
		Headers:     m.headers,
		ContentType: m.contentType,
		DeliveryTag: f.nextTag,
	}, true, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.queues[key] = append(f.queues[key], storedMsg{
		body:        msg.Body,
		headers:     msg.Headers,
		contentType: msg.ContentType,
	})
	return nil
}

func (f *fakeChannel) Ack(tag uint64, multiple bool) error {
	delete(f.pending, tag)
	return nil
}

func (f *fakeChannel) Nack(tag uint64, multiple, requeue bool) error {
	p, ok := f.pending[tag]
	if !ok {
		return nil
	}
	delete(f.pending, tag)
	if requeue {
		f.queues[p.queue] = append(f.queues[p.queue], p.msg)
	}
	return nil
}

func (f *fakeChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name, Messages: len(f.queues[name])}, nil
}

func (f *fakeChannel) QueuePurge(name string, _ bool) (int, error) {
	n := len(f.queues[name])
	f.queues[name] = nil
	return n, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newDLQService(ch *fakeChannel) *Service {
	open := func() (BrokerChannel, error) { return ch, nil }
	return NewService(open, logger.NewLogger("web-service-test"))
}

func TestCount(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b", "c")
	svc := newDLQService(ch)

	n, err := svc.Count(context.Background(), rabbitmq.QueueOrders)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, ch.closed)
}

func TestListPreservesQueueContents(t *testing.T) {
	ch := newFakeChannel()
	dlq := rabbitmq.DLQName(rabbitmq.QueueOrders)
	ch.seed(dlq, "a", "b", "c")
	svc := newDLQService(ch)

	msgs, err := svc.List(context.Background(), rabbitmq.QueueOrders, 2)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "b", msgs[1].Body)
	assert.Equal(t, "application/json", msgs[0].Properties["content_type"])
	assert.Equal(t, "test", msgs[0].Properties["x-origin"])

	// a peek leaves all three in the queue in order
	assert.Equal(t, []string{"c", "a", "b"}, ch.bodies(dlq))
	assert.Empty(t, ch.pending)
}

func TestRequeueAllMovesEverythingToWorkQueue(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b", "c")
	svc := newDLQService(ch)

	n, err := svc.RequeueAll(context.Background(), rabbitmq.QueueOrders)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Empty(t, ch.bodies(rabbitmq.DLQName(rabbitmq.QueueOrders)))
	assert.Equal(t, []string{"a", "b", "c"}, ch.bodies(rabbitmq.QueueOrders))

	// headers travel with the republished message
	assert.Equal(t, "test", ch.queues[rabbitmq.QueueOrders][0].headers["x-origin"])
	assert.Empty(t, ch.pending)
}

func TestRequeueOneMovesOnlyTheTarget(t *testing.T) {
	ch := newFakeChannel()
	dlq := rabbitmq.DLQName(rabbitmq.QueueOrders)
	ch.seed(dlq, "a", "b", "c")
	svc := newDLQService(ch)

	require.NoError(t, svc.RequeueOne(context.Background(), rabbitmq.QueueOrders, 1))

	assert.Equal(t, []string{"b"}, ch.bodies(rabbitmq.QueueOrders))
	assert.Equal(t, []string{"a", "c"}, ch.bodies(dlq))
	assert.Empty(t, ch.pending)
}

func TestDeleteOneDropsOnlyTheTarget(t *testing.T) {
	ch := newFakeChannel()
	dlq := rabbitmq.DLQName(rabbitmq.QueueOrderUpdates)
	ch.seed(dlq, "a", "b", "c")
	svc := newDLQService(ch)

	require.NoError(t, svc.DeleteOne(context.Background(), rabbitmq.QueueOrderUpdates, 0))

	assert.Equal(t, []string{"b", "c"}, ch.bodies(dlq))
	assert.Empty(t, ch.bodies(rabbitmq.QueueOrderUpdates))
	assert.Empty(t, ch.pending)
}

func TestWalkOneIndexOutOfRange(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a")
	svc := newDLQService(ch)

	err := svc.RequeueOne(context.Background(), rabbitmq.QueueOrders, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	// nothing moved
	assert.Equal(t, []string{"a"}, ch.bodies(rabbitmq.DLQName(rabbitmq.QueueOrders)))
}

func TestPurge(t *testing.T) {
	ch := newFakeChannel()
	ch.seed(rabbitmq.DLQName(rabbitmq.QueueOrders), "a", "b")
	svc := newDLQService(ch)

	n, err := svc.Purge(context.Background(), rabbitmq.QueueOrders)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, ch.bodies(rabbitmq.DLQName(rabbitmq.QueueOrders)))
}
