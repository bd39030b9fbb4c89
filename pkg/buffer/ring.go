package buffer

import (
	"sync"

	"github.com/c360/natswire/errors"
)

// ring is a thread-safe circular queue with configurable overflow policies.
type ring[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *queueMetrics
	opts     *queueOptions[T]
	notify   chan struct{}
	closed   bool
}

func newRing[T any](capacity int, opts *queueOptions[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.Wrap(err, "buffer", "NewRing", "metrics registration")
		}
	}

	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
		notify:   make(chan struct{}, 1),
	}, nil
}

// signal wakes one waiting reader without blocking the writer.
func (r *ring[T]) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Write adds an item according to the overflow policy.
func (r *ring[T]) Write(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.Wrap(errors.ErrSubscriptionClosed, "buffer", "Write", "queue closed")
	}

	var dropped T
	var didDrop bool

	if r.size == r.capacity {
		r.stats.Overflow()
		r.stats.Drop()
		if r.metrics != nil {
			r.metrics.recordOverflow()
			r.metrics.recordDrop()
		}

		switch r.opts.overflowPolicy {
		case DropOldest:
			dropped = r.items[r.tail]
			r.tail = (r.tail + 1) % r.capacity
			r.size--
			didDrop = true

		case DropNewest:
			cb := r.opts.dropCallback
			r.mu.Unlock()
			if cb != nil {
				cb(item)
			}
			return nil
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++

	r.stats.Write()
	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordWrite(r.size, r.capacity)
	}

	cb := r.opts.dropCallback
	r.mu.Unlock()

	r.signal()
	if didDrop && cb != nil {
		cb(dropped)
	}
	return nil
}

// Read retrieves and removes one item.
func (r *ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero // release for GC
	r.tail = (r.tail + 1) % r.capacity
	r.size--

	r.stats.Read()
	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordRead(r.size, r.capacity)
	}

	return item, true
}

// ReadBatch retrieves and removes up to max items.
func (r *ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	n := min(max, r.size)
	result := make([]T, n)
	var zero T
	for i := range n {
		result[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
		r.size--
		r.stats.Read()
	}

	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.updateSize(r.size, r.capacity)
	}

	return result
}

// Notify returns the wakeup channel shared by all readers.
func (r *ring[T]) Notify() <-chan struct{} {
	return r.notify
}

// Size returns the current number of items.
func (r *ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of items. Immutable.
func (r *ring[T]) Capacity() int {
	return r.capacity
}

// Clear removes all items, invoking the drop callback for each.
func (r *ring[T]) Clear() {
	r.mu.Lock()

	var cleared []T
	if r.opts.dropCallback != nil && r.size > 0 {
		cleared = make([]T, r.size)
		for i := range r.size {
			cleared[i] = r.items[(r.tail+i)%r.capacity]
		}
	}

	var zero T
	for i := range r.capacity {
		r.items[i] = zero
	}
	r.head, r.tail, r.size = 0, 0, 0
	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.capacity)
	}

	cb := r.opts.dropCallback
	r.mu.Unlock()

	for _, item := range cleared {
		cb(item)
	}
}

// Stats returns queue statistics.
func (r *ring[T]) Stats() *Statistics {
	return r.stats
}

// Close marks the queue closed and wakes waiting readers.
func (r *ring[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.signal()
	return nil
}
