package traversal

import "context"

// StopReason records why a traversal ended.
type StopReason string

// Stop reasons.
const (
	StopExhausted        StopReason = "exhausted"
	StopEmptyPage        StopReason = "empty_page"
	StopTimeout          StopReason = "timeout"
	StopStale            StopReason = "stale_page"
	StopIndexUnavailable StopReason = "index_unavailable"
)

// Outcome is the result of a traversal. Records holds exactly the records that
// were handed to persistence, in collection order.
type Outcome[T any] struct {
	Records []T
	Pages   int
	Stop    StopReason
}

// Count returns the number of collected records.
func (o Outcome[T]) Count() int {
	return len(o.Records)
}

// Flusher persists records for a job and returns how many rows were written.
type Flusher[T any] func(ctx context.Context, jobID string, records []T) (int, error)
