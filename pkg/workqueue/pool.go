package workqueue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// DefaultSubmitInterval is how long Submit waits between attempts to place
// an item on a full queue.
const DefaultSubmitInterval = 10 * time.Millisecond

var errQueueFull = errors.New("queue full")

// HandlerFunc processes one dequeued item. label identifies the worker
// running it and is meant for diagnostics only.
type HandlerFunc[T comparable] func(label string, item T)

// Pool is a fixed set of long-lived workers draining a Queue.
//
// Workers loop forever: Dequeue, handle, MarkDone. They hold no state beyond
// their label and do not keep the process alive.
type Pool[T comparable] struct {
	queue          *Queue[T]
	workers        int
	handle         HandlerFunc[T]
	logger         hclog.Logger
	submitInterval time.Duration

	startOnce sync.Once
	inFlight  sync.WaitGroup
}

// PoolOption is a functional option for creating a Pool.
type PoolOption[T comparable] func(*Pool[T])

// WithLogger sets the logger.
func WithLogger[T comparable](logger hclog.Logger) PoolOption[T] {
	return func(p *Pool[T]) {
		p.logger = logger
	}
}

// WithSubmitInterval sets the wait between enqueue attempts on a full queue.
func WithSubmitInterval[T comparable](d time.Duration) PoolOption[T] {
	return func(p *Pool[T]) {
		p.submitInterval = d
	}
}

// NewPool creates a pool of workers draining queue with handle.
func NewPool[T comparable](queue *Queue[T], workers int, handle HandlerFunc[T], opts ...PoolOption[T]) *Pool[T] {
	if workers < 1 {
		panic(fmt.Sprintf("workqueue: pool needs at least 1 worker, got %d", workers))
	}
	p := &Pool[T]{
		queue:          queue,
		workers:        workers,
		handle:         handle,
		submitInterval: DefaultSubmitInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}
	p.logger = p.logger.Named("pool")
	return p
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool[T]) Start() {
	p.startOnce.Do(func() {
		p.logger.Debug("starting workers", "workers", p.workers, "capacity", p.queue.Capacity())
		for i := 0; i < p.workers; i++ {
			go p.run(fmt.Sprintf("worker-%d", i+1))
		}
	})
}

func (p *Pool[T]) run(label string) {
	for {
		p.process(label, p.queue.Dequeue())
	}
}

// process handles one dequeued item and marks it done. An item that is no
// longer in progress afterwards is a programming error and panics.
func (p *Pool[T]) process(label string, item T) {
	p.handle(label, item)
	if err := p.queue.MarkDone(item); err != nil {
		panic(fmt.Sprintf("workqueue: %s: %v", label, err))
	}
	p.inFlight.Done()
}

// Submit places item on the queue, waiting while the queue is full.
// The producer is the only party that blocks on a full queue.
func (p *Pool[T]) Submit(item T) {
	p.inFlight.Add(1)
	// A constant backoff never stops, so Retry only returns on success.
	_ = backoff.Retry(func() error {
		if p.queue.TryEnqueue(item) {
			return nil
		}
		return errQueueFull
	}, backoff.NewConstantBackOff(p.submitInterval))
}

// Wait blocks until every submitted item has been handled and marked done.
func (p *Pool[T]) Wait() {
	p.inFlight.Wait()
}

// Stats returns the underlying queue statistics.
func (p *Pool[T]) Stats() Stats {
	return p.queue.Stats()
}
