// Package memory records job events in memory for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// Notifier stores published events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []crawler.JobEvent
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records the event.
func (n *Notifier) Notify(_ context.Context, event crawler.JobEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns the recorded events in publish order.
func (n *Notifier) Events() []crawler.JobEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]crawler.JobEvent, len(n.events))
	copy(out, n.events)
	return out
}
