package uploader

import (
	"context"
	"errors"
	"sync"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

var (
	// ErrQueueFull is returned by Enqueue when the work queue has no room.
	ErrQueueFull = errors.New("upload queue is full")
	// ErrStopped is returned by Enqueue once shutdown has been requested.
	ErrStopped = errors.New("uploader stopped")
)

// message is one queue entry. A message with stop set is the shutdown
// sentinel and carries no record.
type message struct {
	rec  weather.Record
	stop bool
}

// Queue is the FIFO between the record producer and the upload worker.
// Pushes never block; the sentinel push waits for room.
type Queue struct {
	ch chan message

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue holding at most size entries.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	// One extra slot keeps room for the sentinel.
	return &Queue{ch: make(chan message, size+1)}
}

// Push appends a record without blocking.
func (q *Queue) Push(rec weather.Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrStopped
	}
	if len(q.ch) >= cap(q.ch)-1 {
		return ErrQueueFull
	}
	q.ch <- message{rec: rec}
	return nil
}

// Shutdown appends the sentinel. Later pushes fail with ErrStopped.
// Calling it more than once is a no-op.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	select {
	case q.ch <- message{stop: true}:
		q.closed = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued records. The shutdown sentinel is not
// counted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.ch)
	if q.closed && n > 0 {
		n--
	}
	return n
}

func (q *Queue) pop() message {
	return <-q.ch
}

func (q *Queue) tryPop() (message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return message{}, false
	}
}
