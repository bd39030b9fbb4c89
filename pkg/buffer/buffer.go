// Package buffer provides generic, thread-safe bounded queues with overflow policies.
package buffer

// Queue is a bounded FIFO queue parameterized by item type T. All
// implementations are safe for concurrent use.
type Queue[T any] interface {
	// Write adds an item to the queue. Behavior when the queue is full
	// depends on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item. Returns the zero value and
	// false when the queue is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items.
	ReadBatch(max int) []T

	// Notify returns a channel that receives a token whenever an item is
	// written or the queue is closed. Combined with Read it supports
	// blocking consumers without the queue owning their goroutines.
	Notify() <-chan struct{}

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items the queue can hold.
	Capacity() int

	// Clear removes all items.
	Clear()

	// Stats returns queue statistics. Always available.
	Stats() *Statistics

	// Close shuts the queue down. Subsequent writes fail; pending items
	// remain readable.
	Close() error
}

// OverflowPolicy defines behavior when a queue reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	// This is the policy the dispatcher uses for subscription delivery
	// queues: a slow subscriber loses its oldest undelivered messages
	// rather than stalling the shared read path.
	DropOldest OverflowPolicy = iota

	// DropNewest drops the incoming item when the queue is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item discarded by the overflow policy.
// It runs outside the queue lock.
type DropCallback[T any] func(item T)

// NewRing creates a bounded circular queue with the given capacity.
// Statistics are always collected; Prometheus export is opt-in via
// WithMetrics.
func NewRing[T any](capacity int, options ...Option[T]) (Queue[T], error) {
	opts := applyOptions(options...)
	return newRing(capacity, opts)
}
