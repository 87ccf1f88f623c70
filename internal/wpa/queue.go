package wpa

import (
	"context"
	"sync"
)

// Queue is a FIFO of pending commands. Any goroutine may Push; the client's
// poll loop is the only consumer. Every popped command must be finished with
// Done so that Drain can observe completion.
type Queue struct {
	mu         sync.Mutex
	items      []Command
	unfinished int

	// drained is closed whenever unfinished is zero.
	drained chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{drained: make(chan struct{})}
	close(q.drained)
	return q
}

// Push appends cmd. It never blocks.
func (q *Queue) Push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		q.drained = make(chan struct{})
	}
	q.items = append(q.items, cmd)
	q.unfinished++
}

// PushFront inserts cmd ahead of everything already queued.
func (q *Queue) PushFront(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		q.drained = make(chan struct{})
	}
	q.items = append([]Command{cmd}, q.items...)
	q.unfinished++
}

// TryPop removes and returns the oldest command, if any.
func (q *Queue) TryPop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Command{}, false
	}
	cmd := q.items[0]
	q.items[0] = Command{}
	q.items = q.items[1:]
	return cmd, true
}

// Done marks one popped command as finished.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.drained)
	}
}

// Clear discards every queued command, marking each finished, and returns
// how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		q.Done()
	}
	return n
}

// Drain blocks until every pushed command has been finished, or ctx ends.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of commands waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
