// Package playback owns the ordered hand-off of synthesized audio from the
// turn orchestrator to a single playback worker.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/cl33/RealTimeTTS/internal/audio"
)

// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
var ErrQueueClosed = errors.New("playback queue closed")

// Queue is a FIFO of audio buffers with a count of buffers that have been
// enqueued but not yet marked done. The queue is drained when that count is
// zero, which includes the buffer currently being played.
type Queue struct {
	mu       sync.Mutex
	items    []audio.Buffer
	capacity int
	inFlight int
	closed   bool
	changed  chan struct{}
}

// NewQueue returns a queue holding at most capacity pending buffers.
// Capacity 0 means unbounded.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity, changed: make(chan struct{})}
}

// broadcast wakes every waiter. Callers hold mu.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Enqueue appends buf. With a bounded queue it blocks while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, buf audio.Buffer) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, buf)
			q.inFlight++
			q.broadcast()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Dequeue removes the oldest buffer, blocking until one is available. Every
// successful Dequeue must be followed by exactly one MarkDone.
func (q *Queue) Dequeue(ctx context.Context) (audio.Buffer, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			buf := q.items[0]
			q.items[0] = audio.Buffer{}
			q.items = q.items[1:]
			q.broadcast()
			q.mu.Unlock()
			return buf, nil
		}
		if q.closed {
			q.mu.Unlock()
			return audio.Buffer{}, ErrQueueClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return audio.Buffer{}, ctx.Err()
		case <-wait:
		}
	}
}

// MarkDone records that a dequeued buffer has finished playing or failed.
func (q *Queue) MarkDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	q.broadcast()
}

// AwaitDrained blocks until every enqueued buffer has been marked done.
// It returns immediately for a queue that never received anything.
func (q *Queue) AwaitDrained(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.inFlight == 0 {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Close stops accepting buffers. Buffers already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

// Len is the number of buffers waiting to be played.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight is the number of buffers enqueued and not yet marked done.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}
