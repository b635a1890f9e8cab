// Package rabbitmq implements queue.Broker on a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
)

// Config controls the broker connection.
type Config struct {
	URL            string
	Queue          string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	ConsumerTag    string
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	Close() error
}

type dialFunc func(url string, timeout time.Duration) (amqpConn, error)

// Broker dials its own connection for every publish batch and consume loop.
type Broker struct {
	cfg    Config
	dial   dialFunc
	logger *zap.Logger
}

// New validates cfg and returns a Broker.
func New(cfg Config, logger *zap.Logger) (*Broker, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = queue.DefaultName
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{cfg: cfg, dial: dialAMQP, logger: logger}, nil
}

func dialAMQP(url string, timeout time.Duration) (amqpConn, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": "rpa-crawler"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return connAdapter{conn}, nil
}

type connAdapter struct {
	*amqp.Connection
}

func (c connAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// Enqueue publishes one delivery.
func (b *Broker) Enqueue(ctx context.Context, d queue.Delivery) error {
	_, err := b.EnqueueBatch(ctx, []queue.Delivery{d})
	return err
}

// EnqueueBatch publishes ds over one connection. Deliveries published before a
// failure stay published.
func (b *Broker) EnqueueBatch(ctx context.Context, ds []queue.Delivery) (int, error) {
	if len(ds) == 0 {
		return 0, nil
	}
	conn, ch, err := b.open()
	if err != nil {
		return 0, err
	}
	defer b.closeAll(conn, ch)

	for i, d := range ds {
		body, err := queue.Encode(d)
		if err != nil {
			return i, crawler.NewError(crawler.KindMalformed, "encode delivery", err)
		}
		if err := b.publish(ctx, ch, d.JobID, body); err != nil {
			return i, crawler.NewError(crawler.KindTransient, fmt.Sprintf("publish job %s", d.JobID), err)
		}
	}
	return len(ds), nil
}

func (b *Broker) publish(ctx context.Context, ch amqpChannel, jobID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()
	err := ch.PublishWithContext(pubCtx, "", b.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Consume subscribes with prefetch 1 and calls h for each delivery. It returns
// nil when ctx ends and an error when the connection drops.
func (b *Broker) Consume(ctx context.Context, h queue.Handler) error {
	conn, ch, err := b.open()
	if err != nil {
		return err
	}
	defer b.closeAll(conn, ch)

	if err := ch.Qos(1, 0, false); err != nil {
		return crawler.NewError(crawler.KindTransient, "set prefetch", err)
	}
	deliveries, err := ch.Consume(b.cfg.Queue, b.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return crawler.NewError(crawler.KindTransient, "start consumer", err)
	}
	b.logger.Info("consuming", zap.String("queue", b.cfg.Queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return crawler.NewError(crawler.KindTransient, "consume", errors.New("delivery channel closed"))
			}
			h(ctx, &message{d: d})
		}
	}
}

// Close is a no-op; connections are scoped to each call.
func (b *Broker) Close() error {
	return nil
}

func (b *Broker) open() (amqpConn, amqpChannel, error) {
	conn, err := b.dial(b.cfg.URL, b.cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, crawler.NewError(crawler.KindTransient, "connect", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		b.closeAll(conn, nil)
		return nil, nil, crawler.NewError(crawler.KindTransient, "open channel", err)
	}
	if _, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, nil); err != nil {
		b.closeAll(conn, ch)
		return nil, nil, crawler.NewError(crawler.KindTransient, "declare queue", err)
	}
	return conn, ch, nil
}

func (b *Broker) closeAll(conn amqpConn, ch amqpChannel) {
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			b.logger.Debug("channel close failed", zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			b.logger.Debug("connection close failed", zap.Error(err))
		}
	}
}

type message struct {
	d amqp.Delivery
}

func (m *message) Body() []byte { return m.d.Body }

func (m *message) Ack() error {
	if err := m.d.Ack(false); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (m *message) Nack(requeue bool) error {
	if err := m.d.Nack(false, requeue); err != nil {
		return fmt.Errorf("nack: %w", err)
	}
	return nil
}
