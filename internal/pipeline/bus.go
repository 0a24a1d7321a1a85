package pipeline

import (
	"context"
	"sync"
	"time"
)

// EventBus carries notifications from stages to the controller.
//
// Posting never blocks: the queue is unbounded and guarded by a mutex, and a
// single-slot wake channel tells the consumer that something arrived. There
// is one consumer, which pops notifications in post order. Each notification
// is delivered at most once.
type EventBus struct {
	mu       sync.Mutex
	queue    []Notification
	flushing bool
	wake     chan struct{}
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{wake: make(chan struct{}, 1)}
}

// Post enqueues n. Returns false if the bus is flushing and n was dropped.
func (b *EventBus) Post(n Notification) bool {
	if n == nil {
		return false
	}

	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, n)
	b.mu.Unlock()

	b.signal()
	return true
}

// Pop removes and returns the oldest notification, if any.
func (b *EventBus) Pop() (Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	n := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return n, true
}

// TimedPop waits up to d for a notification.
//
// It returns (nil, false) on timeout, on Wake, or when ctx is done.
// A non-positive d waits until one of the other conditions occurs.
func (b *EventBus) TimedPop(ctx context.Context, d time.Duration) (Notification, bool) {
	if n, ok := b.Pop(); ok {
		return n, true
	}

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timeout:
			return b.Pop()
		case <-b.wake:
			if n, ok := b.Pop(); ok {
				// more may be queued; keep the consumer awake
				if b.Len() > 0 {
					b.signal()
				}
				return n, true
			}
			// explicit Wake with an empty queue
			return nil, false
		}
	}
}

// Wake interrupts a consumer blocked in TimedPop
func (b *EventBus) Wake() {
	b.signal()
}

// SetFlushing toggles flushing. While flushing, queued notifications are
// discarded and Post rejects new ones.
func (b *EventBus) SetFlushing(flushing bool) {
	b.mu.Lock()
	b.flushing = flushing
	if flushing {
		for i := range b.queue {
			b.queue[i] = nil
		}
		b.queue = b.queue[:0]
	}
	b.mu.Unlock()
}

// Flushing reports whether the bus currently rejects posts
func (b *EventBus) Flushing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushing
}

// Len returns the number of queued notifications
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *EventBus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
