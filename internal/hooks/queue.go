// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package hooks runs side effects that must not hold up the command that
// triggered them, such as reporting challenge progress after a quiz attempt.
// Every task has an explicit failure policy and every failure is logged.
package hooks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Submit when the buffer is full.
	ErrQueueFull = errors.New("hooks: queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("hooks: queue closed")
)

// Policy decides what happens when a task fails.
type Policy struct {
	// Attempts is the total number of runs; 1 or less means log-and-drop.
	Attempts int
	// Backoff is the wait before the second attempt, doubled after each failure.
	Backoff time.Duration
}

// LogAndDrop runs a task once and only logs a failure.
var LogAndDrop = Policy{Attempts: 1}

// Retry runs a task up to attempts times with exponential backoff.
func Retry(attempts int, backoff time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: backoff}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; the task is dropped at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Task is a named unit of background work.
type Task struct {
	Name   string
	Run    func(ctx context.Context) error
	Policy Policy
}

// Stats counts task outcomes.
type Stats struct {
	Succeeded int
	Failed    int
	Dropped   int
}

// Queue is a bounded task queue served by a fixed set of workers.
type Queue struct {
	tasks  chan Task
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stats  Stats
}

// NewQueue starts workers goroutines serving a buffer of size buffer.
func NewQueue(workers, buffer int, log zerolog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan Task, buffer),
		log:    log.With().Str("component", "hooks").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		q.stats.Dropped++
		q.log.Warn().Str("task", t.Name).Msg("queue full, task dropped")
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish. When ctx
// ends first, running tasks are cancelled and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of task outcomes.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		err := q.run(t)
		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Succeeded++
		}
		q.mu.Unlock()
	}
}

func (q *Queue) run(t Task) error {
	attempts := t.Policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := t.Policy.Backoff
	var err error
	for i := 1; i <= attempts; i++ {
		if q.ctx.Err() != nil {
			q.log.Warn().Str("task", t.Name).Int("attempt", i).Msg("queue cancelled, task abandoned")
			return q.ctx.Err()
		}
		if err = t.Run(q.ctx); err == nil {
			q.log.Debug().Str("task", t.Name).Int("attempt", i).Msg("task done")
			return nil
		}
		var perm *permanentError
		if i == attempts || errors.As(err, &perm) {
			break
		}
		q.log.Debug().Err(err).Str("task", t.Name).Int("attempt", i).Dur("backoff", backoff).Msg("task failed, retrying")
		select {
		case <-time.After(backoff):
		case <-q.ctx.Done():
		}
		backoff *= 2
	}
	q.log.Warn().Err(err).Str("task", t.Name).Int("attempts", attempts).Msg("task failed, dropped")
	return err
}
