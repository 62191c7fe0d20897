// Package queue implements the bounded work queue (spec.md §4.3) shared by
// the campaign dispatcher (producer) and the sender worker pool
// (consumers).
package queue

import (
	"errors"
	"time"

	"github.com/ignite/nuntius/internal/domain"
)

// ErrShutdown is returned by Put/Get when the queue's shutdown signal fires
// while the caller was blocked.
var ErrShutdown = errors.New("queue: shutdown")

// ErrTimeout is returned by Put/Get when the poll interval elapses with no
// progress and no shutdown signal either; callers use this to re-check
// their own conditions before blocking again.
var ErrTimeout = errors.New("queue: timeout")

// Item is one unit of dispatched work: a rendered message paired with the
// send record it updates on outcome (spec.md §4.3). CampaignID rides along
// so a worker can report a non-recipient send error against the right
// campaign (spec.md §4.8 point 3) without a round-trip to storage.
type Item struct {
	Message      *domain.EmailMessage
	SendRecordID string
	CampaignID   string
}

// Queue is a bounded multi-producer/multi-consumer FIFO. Capacity is fixed
// at construction to 2*workerCount per spec.md §4.3, so a slow sender pool
// back-pressures the dispatcher rather than the dispatcher growing memory
// without bound.
type Queue struct {
	items    chan Item
	shutdown <-chan struct{}
	poll     time.Duration
}

// New builds a queue bounded to capacity, polling shutdown at the given
// interval while blocked.
func New(capacity int, shutdown <-chan struct{}, poll time.Duration) *Queue {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Queue{
		items:    make(chan Item, capacity),
		shutdown: shutdown,
		poll:     poll,
	}
}

// Put enqueues item, blocking under back-pressure while periodically
// checking the shutdown signal (spec.md §4.3, §4.6 step 3e).
func (q *Queue) Put(item Item) error {
	select {
	case <-q.shutdown:
		return ErrShutdown
	default:
	}
	for {
		select {
		case q.items <- item:
			return nil
		case <-q.shutdown:
			return ErrShutdown
		case <-time.After(q.poll):
			// loop back around: re-check shutdown, keep trying to enqueue
		}
	}
}

// Get dequeues the next item, blocking until one is available, the
// shutdown signal fires, or the poll interval elapses with nothing ready
// (spec.md §4.3, §4.7 "respecting shutdown").
func (q *Queue) Get() (Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-q.shutdown:
		select {
		case item := <-q.items:
			return item, nil
		default:
		}
		return Item{}, ErrShutdown
	case <-time.After(q.poll):
		return Item{}, ErrTimeout
	}
}

// ShuttingDown reports whether the shutdown signal has fired, without
// blocking. Used by the dispatcher loop's step 3a check before each
// subscriber (spec.md §4.6).
func (q *Queue) ShuttingDown() bool {
	select {
	case <-q.shutdown:
		return true
	default:
		return false
	}
}

// Len reports the number of items currently buffered, for diagnostics.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
