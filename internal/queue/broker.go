// Package queue defines the durable work queue between job submission and the
// worker. Backends live in subpackages.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultName is the queue every backend publishes to unless configured otherwise.
const DefaultName = "crawl_jobs"

// ErrClosed is returned by a broker that has been shut down.
var ErrClosed = errors.New("queue closed")

// ErrMalformedDelivery reports a message body that cannot be decoded into a Delivery.
var ErrMalformedDelivery = errors.New("malformed delivery")

// Delivery is the wire payload of one queued job.
type Delivery struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
}

// Encode marshals d to its JSON wire form.
func Encode(d Delivery) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode delivery: %w", err)
	}
	return body, nil
}

// Decode parses a wire body. Bodies that are not JSON objects or that lack
// job_id or job_type wrap ErrMalformedDelivery.
func Decode(body []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
	}
	if d.JobID == "" || d.JobType == "" {
		return Delivery{}, fmt.Errorf("%w: job_id and job_type are required", ErrMalformedDelivery)
	}
	return d, nil
}

// Message is one received delivery. Exactly one of Ack or Nack should be called.
type Message interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Handler processes one message and is responsible for acking or nacking it.
type Handler func(ctx context.Context, msg Message)

// Broker publishes and consumes deliveries.
type Broker interface {
	// Enqueue publishes one persistent delivery.
	Enqueue(ctx context.Context, d Delivery) error
	// EnqueueBatch publishes ds over a single connection and returns how many
	// were published before any error.
	EnqueueBatch(ctx context.Context, ds []Delivery) (int, error)
	// Consume delivers messages to h one at a time until ctx is done (nil) or
	// the connection is lost (error).
	Consume(ctx context.Context, h Handler) error
	Close() error
}
