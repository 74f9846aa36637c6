// Package actionq implements the controller's action queue: an unbounded
// FIFO with many producers and a single consumer.
package actionq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/buoylink/buoylink/pkg/buoy1/model"
)

// ErrTimeout is returned by Receive when no action arrived in time.
var ErrTimeout = errors.New("timed out waiting for an action")

// Queue is an unbounded FIFO of model.Action. Send never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []model.Action
	notify chan struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Send appends a to the queue. Ownership of a passes to the consumer.
func (q *Queue) Send(a model.Action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Receive returns the oldest queued action, waiting at most timeout for one
// to arrive. Only one goroutine may call Receive at a time.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (model.Action, error) {
	if a, ok := q.pop(); ok {
		return a, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if a, ok := q.pop(); ok {
				return a, nil
			}
		case <-timer.C:
			// An action may have been queued right before the timer fired.
			if a, ok := q.pop(); ok {
				return a, nil
			}
			return model.Action{}, ErrTimeout
		case <-ctx.Done():
			return model.Action{}, ctx.Err()
		}
	}
}

func (q *Queue) pop() (model.Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Action{}, false
	}
	a := q.items[0]
	q.items[0] = model.Action{}
	q.items = q.items[1:]
	return a, true
}
