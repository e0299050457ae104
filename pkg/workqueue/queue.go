// Package workqueue provides a capacity-limited FIFO with in-progress
// tracking and a fixed-size worker pool that drains it.
package workqueue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotInProgress is returned by MarkDone for an item that was never
// dequeued or was already marked done.
var ErrNotInProgress = errors.New("item is not in progress")

// Stats is a snapshot of queue counters taken under the queue lock.
type Stats struct {
	Pending    int `json:"pending" yaml:"pending"`
	InProgress int `json:"inProgress" yaml:"in_progress"`
	Completed  int `json:"completed" yaml:"completed"`
}

// Queue is a bounded FIFO of work items. One mutex guards the pending list,
// the in-progress set and the completed counter, so callers never need their
// own synchronization.
//
// An item moves pending -> in progress -> removed exactly once. T must be
// comparable; pointer items are tracked by identity.
type Queue[T comparable] struct {
	mu         sync.Mutex
	arrived    *sync.Cond
	capacity   int
	pending    []T
	inProgress map[T]struct{}
	completed  int
}

// New creates a queue holding at most capacity pending items.
func New[T comparable](capacity int) *Queue[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("workqueue: capacity must be at least 1, got %d", capacity))
	}
	q := &Queue[T]{
		capacity:   capacity,
		pending:    make([]T, 0, capacity),
		inProgress: make(map[T]struct{}),
	}
	q.arrived = sync.NewCond(&q.mu)
	return q
}

// Capacity returns the maximum number of pending items.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// TryEnqueue appends item and wakes one waiting consumer. It never blocks:
// when the queue is full it returns false and leaves the queue unchanged.
// On success the queue owns item and the caller must not mutate it.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == q.capacity {
		return false
	}
	q.pending = append(q.pending, item)
	q.arrived.Signal()
	return true
}

// Dequeue blocks until an item is pending, then moves the head of the queue
// into the in-progress set and returns it. Completions do not wake waiters.
func (q *Queue[T]) Dequeue() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 {
		q.arrived.Wait()
	}

	item := q.pending[0]
	var zero T
	q.pending[0] = zero
	q.pending = q.pending[1:]
	q.inProgress[item] = struct{}{}
	return item
}

// MarkDone removes item from the in-progress set and counts it as completed.
func (q *Queue[T]) MarkDone(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inProgress[item]; !ok {
		return fmt.Errorf("%w: %v", ErrNotInProgress, item)
	}
	delete(q.inProgress, item)
	q.completed++
	return nil
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:    len(q.pending),
		InProgress: len(q.inProgress),
		Completed:  q.completed,
	}
}

// ResetCompleted zeroes the completed counter.
func (q *Queue[T]) ResetCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.completed = 0
}
