// Package pubsub implements queue.Broker on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
)

// Config names the topic deliveries are published to and the subscription
// they are consumed from.
type Config struct {
	Topic          string
	Subscription   string
	PublishTimeout time.Duration
}

// Broker publishes to a topic and consumes one message at a time from a
// subscription.
type Broker struct {
	cfg       Config
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    *zap.Logger
}

// New wraps an existing client. The caller owns the client and closes it.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) (*Broker, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.Topic == "" || cfg.Subscription == "" {
		return nil, errors.New("pubsub topic and subscription are required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		cfg:       cfg,
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    logger,
	}, nil
}

// Enqueue publishes one delivery and waits for the server to accept it.
func (b *Broker) Enqueue(ctx context.Context, d queue.Delivery) error {
	_, err := b.EnqueueBatch(ctx, []queue.Delivery{d})
	return err
}

// EnqueueBatch publishes every delivery, then waits for each result in order.
// The count is the number of leading deliveries the server accepted.
func (b *Broker) EnqueueBatch(ctx context.Context, ds []queue.Delivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	results := make([]*pubsub.PublishResult, 0, len(ds))
	for i, d := range ds {
		body, err := queue.Encode(d)
		if err != nil {
			return i, crawler.NewError(crawler.KindMalformed, "encode delivery", err)
		}
		msg := &pubsub.Message{Data: body, Attributes: map[string]string{"job_type": d.JobType}}
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))
		results = append(results, b.publisher.Publish(ctx, msg))
	}
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			return i, crawler.NewError(crawler.KindTransient, fmt.Sprintf("publish job %s", ds[i].JobID), err)
		}
	}
	return len(ds), nil
}

// Consume receives with MaxOutstandingMessages = 1. It returns nil when ctx
// ends and a transient error when the stream fails.
func (b *Broker) Consume(ctx context.Context, h queue.Handler) error {
	sub := b.client.Subscriber(b.cfg.Subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1

	b.logger.Info("consuming", zap.String("subscription", b.cfg.Subscription))
	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if m.Attributes != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(m.Attributes))
		}
		h(ctx, &message{m: m})
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return crawler.NewError(crawler.KindTransient, "receive", err)
	}
	return nil
}

// Close flushes and stops the publisher.
func (b *Broker) Close() error {
	b.publisher.Stop()
	return nil
}

type message struct {
	m *pubsub.Message
}

func (m *message) Body() []byte { return m.m.Data }

func (m *message) Ack() error {
	m.m.Ack()
	return nil
}

// Nack without requeue acks, since Pub/Sub has no dead-drop on nack.
func (m *message) Nack(requeue bool) error {
	if requeue {
		m.m.Nack()
		return nil
	}
	m.m.Ack()
	return nil
}
