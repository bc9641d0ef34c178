// Package lockqueue serializes actions per key.
//
// Each key keeps a handle to the tail of its chain of pending actions. A new
// action waits for the current tail to finish and then becomes the tail
// itself, so actions for one key run one at a time in submission order while
// actions for different keys never wait on each other. The entry for a key
// is dropped once its last outstanding action completes.
package lockqueue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrActionPanicked is returned to the submitter of an action that panicked.
var ErrActionPanicked = errors.New("queued action panicked")

// Queue is a per-key FIFO mutual-exclusion queue. The zero value is not
// usable; create one with New.
type Queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		tails: make(map[string]chan struct{}),
	}
}

// Do runs fn once every earlier action submitted for key has finished, and
// returns its result. A failing or panicking fn only affects its own caller;
// the next action for key starts regardless.
func Do[T any](q *Queue, key string, fn func() (T, error)) (T, error) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}
	defer q.release(key, done)

	return run(fn)
}

// Pending returns the number of keys with at least one outstanding action.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}

func (q *Queue) release(key string, done chan struct{}) {
	q.mu.Lock()
	if q.tails[key] == done {
		delete(q.tails, key)
	}
	q.mu.Unlock()
	close(done)
}

func run[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("%w: %v", ErrActionPanicked, r)
		}
	}()
	return fn()
}
