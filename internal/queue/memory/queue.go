// Package memory provides an in-process broker for tests and single-binary
// development mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/rpa-crawler/internal/queue"
)

// Broker is a bounded in-memory queue with context-aware operations. Consume
// hands out one message at a time and waits for the handler to return before
// fetching the next.
type Broker struct {
	ch      chan []byte
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// New constructs a broker with the provided capacity.
func New(capacity int) *Broker {
	if capacity <= 0 {
		capacity = 1
	}
	return &Broker{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a delivery or returns if the context ends.
func (b *Broker) Enqueue(ctx context.Context, d queue.Delivery) error {
	body, err := queue.Encode(d)
	if err != nil {
		return err
	}
	return b.push(ctx, body)
}

// EnqueueBatch pushes deliveries in order and stops at the first failure.
func (b *Broker) EnqueueBatch(ctx context.Context, ds []queue.Delivery) (int, error) {
	for i, d := range ds {
		if err := b.Enqueue(ctx, d); err != nil {
			return i, err
		}
	}
	return len(ds), nil
}

// Publish pushes a raw body, bypassing encoding.
func (b *Broker) Publish(ctx context.Context, body []byte) error {
	return b.push(ctx, append([]byte(nil), body...))
}

func (b *Broker) push(ctx context.Context, body []byte) error {
	b.closeMu.RLock()
	closed := b.closed
	b.closeMu.RUnlock()
	if closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-b.done:
		return queue.ErrClosed
	case b.ch <- body:
		return nil
	}
}

// Consume pops messages and hands each to h until ctx ends or the broker closes.
func (b *Broker) Consume(ctx context.Context, h queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return queue.ErrClosed
		case body := <-b.ch:
			msg := &message{broker: b, body: body}
			h(ctx, msg)
			if !msg.settled() {
				// An unsettled message stays owned by the broker.
				msg.requeue()
			}
		}
	}
}

// Len reports the number of queued messages.
func (b *Broker) Len() int {
	return len(b.ch)
}

// Close stops consumers and rejects further publishes. Closing twice is safe.
func (b *Broker) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}

type message struct {
	broker *Broker
	body   []byte

	mu   sync.Mutex
	done bool
}

func (m *message) Body() []byte { return m.body }

func (m *message) Ack() error {
	return m.settle(false)
}

func (m *message) Nack(requeue bool) error {
	return m.settle(requeue)
}

func (m *message) settle(requeue bool) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return errors.New("message already settled")
	}
	m.done = true
	m.mu.Unlock()
	if requeue {
		m.requeue()
	}
	return nil
}

func (m *message) settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *message) requeue() {
	// Requeue must not block the consumer; a full buffer drops to a goroutine.
	select {
	case m.broker.ch <- m.body:
	default:
		go func() {
			select {
			case m.broker.ch <- m.body:
			case <-m.broker.done:
			}
		}()
	}
}
