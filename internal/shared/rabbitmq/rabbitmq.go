package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"bookstore-orders/internal/shared/config"
	"bookstore-orders/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Logical queue names. Each work/update queue dead-letters into "<name>-dlq"
// via the default exchange.
const (
	QueueOrders       = "orders"
	QueueOrderUpdates = "order-updates"

	dlqSuffix = "-dlq"
)

// DLQName returns the dead-letter queue name for a base queue.
func DLQName(queue string) string { return queue + dlqSuffix }

var (
	ErrNotConnected = errors.New("rabbitmq: connection is not open")
	ErrPublish      = errors.New("rabbitmq: publish failed")
)

// queueSpec describes one declared queue. The work and update queues are
// non-durable while their DLQs are durable; dead letters must survive a broker
// restart, in-flight work does not.
type queueSpec struct {
	name    string
	durable bool
	dlq     string // when set, rejected messages route to this queue
}

var topology = []queueSpec{
	{name: QueueOrders, durable: false, dlq: DLQName(QueueOrders)},
	{name: QueueOrderUpdates, durable: false, dlq: DLQName(QueueOrderUpdates)},
	{name: DLQName(QueueOrders), durable: true},
	{name: DLQName(QueueOrderUpdates), durable: true},
}

// Client is a resilient RabbitMQ connector with auto-reconnect and topology setup.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // carries context with request_id across reconnects

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closed    chan struct{}
	reconnect chan struct{}
}

// MQPublisher adapts the Client to the ports.Publisher contract.
type MQPublisher struct {
	Client *Client
}

// Publish sends a message to the given queue via the default exchange.
func (p *MQPublisher) Publish(queue string, body []byte, persistent bool) error {
	return p.Client.PublishMessage(queue, body, persistent)
}

// AMQPURL builds the broker URL from config.
func AMQPURL(cfg *config.Config) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
}

// Connect establishes the connection and starts a background watcher that
// reconnects on failures.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	client := &Client{
		url:       AMQPURL(cfg),
		logger:    log,
		logCtx:    context.WithoutCancel(ctx), // avoid ctx cancel on reconnects
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(ctx); err != nil {
		return nil, err
	}

	go client.watch()

	return client, nil
}

// NewConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) NewConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, err
		}
	}

	return ch, nil
}

// PublishMessage publishes a JSON message to a queue through the default exchange.
func (client *Client) PublishMessage(queue string, body []byte, persistent bool) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("%w: publish channel is not open", ErrPublish)
	}

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx,
		"", queue, false, false,
		amqp.Publishing{
			DeliveryMode: mode,
			ContentType:  "application/json",
			Body:         body,
		}); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// AdminChannel is a caller-owned connection + channel pair. DLQ remediation
// opens one per request instead of sharing the client's publisher channel, so
// admin walks never contend with regular publishing.
type AdminChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAdminChannel dials a fresh connection and opens a channel on it.
func (client *Client) NewAdminChannel() (*AdminChannel, error) {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AdminChannel{conn: conn, ch: ch}, nil
}

func (a *AdminChannel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	return a.ch.Get(queue, autoAck)
}

func (a *AdminChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return a.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (a *AdminChannel) Ack(tag uint64, multiple bool) error { return a.ch.Ack(tag, multiple) }

func (a *AdminChannel) Nack(tag uint64, multiple, requeue bool) error {
	return a.ch.Nack(tag, multiple, requeue)
}

func (a *AdminChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return a.ch.QueueDeclarePassive(name, durable, autoDelete, exclusive, noWait, args)
}

func (a *AdminChannel) QueuePurge(name string, noWait bool) (int, error) {
	return a.ch.QueuePurge(name, noWait)
}

func (a *AdminChannel) Close() error {
	_ = a.ch.Close()
	return a.conn.Close()
}

// Ping checks connectivity by dialing TCP to the broker.
func (client *Client) Ping(timeout time.Duration) error {
	client.mu.RLock()
	conn := client.conn
	url := client.url
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	u, err := amqp.ParseURI(url)
	if err != nil {
		return fmt.Errorf("rabbitmq: bad url: %w", err)
	}
	addr := net.JoinHostPort(u.Host, fmt.Sprintf("%d", u.Port))

	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}

	_ = c.Close()
	return nil
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	select {
	case <-client.closed:
		// already closed
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()
}

// --- internals ---

// connectOnce tries to connect and set up topology once.
func (client *Client) connectOnce(ctx context.Context) error {
	start := time.Now().UTC()

	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	// declare/ensure topology idempotently
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	client.mu.Lock()
	client.conn = conn
	if client.pubChan != nil {
		_ = client.pubChan.Close()
	}
	client.pubChan = ch
	client.mu.Unlock()

	// watch for connection/channel closures and trigger reconnect
	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued
		}
	}()

	client.logger.Info(ctx, "rabbitmq_connected",
		"Connected to RabbitMQ; queues declared",
		map[string]any{"duration_ms": time.Since(start).Milliseconds()})

	return nil
}

// watch runs in background and attempts reconnects with exponential backoff.
func (client *Client) watch() {
	backoff := time.Second
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			// attempt reconnect until success or Close()
			for {
				select {
				case <-client.closed:
					return
				default:
				}

				ctx, cancel := context.WithTimeout(client.logCtx, 30*time.Second)
				err := client.connectOnce(ctx)
				cancel()

				if err == nil {
					backoff = time.Second
					client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology", nil)
					break
				}

				client.logger.Error(client.logCtx, "retry_attempted", fmt.Sprintf("RabbitMQ reconnect failed: %v", err), err)

				time.Sleep(backoff)
				if backoff < 30*time.Second {
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
				}
			}
		}
	}
}

// declareTopology declares all queues from the topology table.
func declareTopology(ch *amqp.Channel) error {
	for _, q := range topology {
		var args amqp.Table
		if q.dlq != "" {
			args = amqp.Table{
				// default exchange routes by queue name
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": q.dlq,
			}
		}
		if _, err := ch.QueueDeclare(q.name, q.durable, false, false, false, args); err != nil {
			return err
		}
	}
	return nil
}
