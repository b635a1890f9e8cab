// Package pubsub publishes job lifecycle events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// Config selects the events topic.
type Config struct {
	Topic          string
	PublishTimeout time.Duration
}

// Notifier wraps a Pub/Sub publisher client.
type Notifier struct {
	publisher *pubsub.Publisher
	timeout   time.Duration
}

// New creates a Notifier publishing to cfg.Topic.
func New(client *pubsub.Client, cfg Config) (*Notifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events topic is required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Notifier{publisher: client.Publisher(cfg.Topic), timeout: cfg.PublishTimeout}, nil
}

// Notify marshals event to JSON and waits for the server to accept it.
func (n *Notifier) Notify(ctx context.Context, event crawler.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_id":   event.JobID,
			"job_type": string(event.Source),
			"status":   string(event.Status),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if _, err := n.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (n *Notifier) Close() {
	n.publisher.Stop()
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
