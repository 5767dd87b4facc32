package session

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	jobPending int32 = iota
	jobRunning
	jobCancelled
)

type job struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	state atomic.Int32
	err   error
	done  chan struct{}
}

type queue struct {
	pending []*job
}

// Coordinator runs work for the same key strictly one at a time, in submission order. Each live
// key owns one worker goroutine, started on first use and stopped once its backlog drains.
type Coordinator struct {
	mu     sync.Mutex
	queues map[string]*queue
}

func NewCoordinator() *Coordinator {
	return &Coordinator{queues: map[string]*queue{}}
}

// Do queues fn behind earlier work for key and waits for it. If ctx ends before fn starts, fn is
// skipped and ctx's error returned; once started, fn runs to completion.
func (c *Coordinator) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}

	c.mu.Lock()
	q, ok := c.queues[key]
	if !ok {
		q = &queue{}
		c.queues[key] = q
	}
	q.pending = append(q.pending, j)
	c.mu.Unlock()
	if !ok {
		go c.run(key, q)
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobCancelled) {
			return ctx.Err()
		}
		<-j.done
		return j.err
	}
}

func (c *Coordinator) run(key string, q *queue) {
	for {
		c.mu.Lock()
		if len(q.pending) == 0 {
			delete(c.queues, key)
			c.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		c.mu.Unlock()

		if !j.state.CompareAndSwap(jobPending, jobRunning) {
			continue
		}
		j.err = j.fn(j.ctx)
		close(j.done)
	}
}

// Active is the number of keys with queued or running work.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues)
}
