// Package workq provides a bounded-concurrency task runner with per-task
// retry. It is the fault-isolation boundary of a scan: a fixed pool of
// workers pulls tasks from a channel, each task is retried in place with
// escalating backoff, and batch execution collects every outcome instead of
// aborting on the first failure.
package workq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of work submitted to the queue.
type Task[T any] func(ctx context.Context) (T, error)

// Settled is the per-task outcome descriptor returned by AddAll. Exactly one
// of Err or Value is meaningful, selected by Fulfilled.
type Settled[T any] struct {
	Index     int
	Fulfilled bool
	Value     T
	Err       error
}

// Options configures a Queue.
type Options struct {
	// Concurrency is the worker count. Defaults to 7.
	Concurrency int
	// Retries is how many times a failing task is re-run before its outcome
	// settles as rejected. Defaults to 3.
	Retries int
	// RetryDelays is the escalating backoff schedule between attempts. When
	// fewer delays than retries are given, the last delay repeats.
	RetryDelays []time.Duration
}

// DefaultOptions mirrors the production scan defaults: 7 workers, 3 retries,
// 2s/4s/8s backoff.
func DefaultOptions() Options {
	return Options{
		Concurrency: 7,
		Retries:     3,
		RetryDelays: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}

// Queue runs tasks under a bounded worker pool.
type Queue[T any] struct {
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Queue with the given options, applying defaults for any
// zero-valued field.
func New[T any](opts Options) *Queue[T] {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = def.Retries
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = def.RetryDelays
	}
	return &Queue[T]{opts: opts, sleep: sleepCtx}
}

// NewImmediate creates a Queue whose retry backoff does not actually sleep.
// Intended for tests that exercise retry exhaustion deterministically.
func NewImmediate[T any](opts Options) *Queue[T] {
	q := New[T](opts)
	q.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return q
}

// Add runs a single task through the retry loop, blocking until it settles.
func (q *Queue[T]) Add(ctx context.Context, task Task[T]) (T, error) {
	return q.runWithRetry(ctx, 0, task)
}

// AddAll runs all tasks under the worker pool and returns one Settled
// descriptor per task, in task order. AddAll itself never fails: a task that
// exhausts its retries settles as rejected without aborting or delaying its
// siblings. Context cancellation stops workers from picking up further tasks;
// unstarted tasks settle rejected with the context error.
func (q *Queue[T]) AddAll(ctx context.Context, tasks []Task[T]) []Settled[T] {
	results := make([]Settled[T], len(tasks))

	type indexed struct {
		idx  int
		task Task[T]
	}
	feed := make(chan indexed)

	var wg sync.WaitGroup
	workers := q.opts.Concurrency
	if workers > len(tasks) && len(tasks) > 0 {
		workers = len(tasks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range feed {
				value, err := q.runWithRetry(ctx, item.idx, item.task)
				results[item.idx] = Settled[T]{
					Index:     item.idx,
					Fulfilled: err == nil,
					Value:     value,
					Err:       err,
				}
			}
		}()
	}

	// FIFO dispatch: tasks beyond the concurrency limit wait here in order.
	for i, task := range tasks {
		select {
		case <-ctx.Done():
			results[i] = Settled[T]{Index: i, Err: ctx.Err()}
		case feed <- indexed{idx: i, task: task}:
		}
	}
	close(feed)
	wg.Wait()

	return results
}

// runWithRetry executes one task up to 1+Retries times with the configured
// backoff between attempts.
func (q *Queue[T]) runWithRetry(ctx context.Context, idx int, task Task[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= q.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		value, err := task(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < q.opts.Retries {
			delay := q.delayFor(attempt)
			slog.Debug("Task failed, retrying",
				"task", idx,
				"attempt", attempt+1,
				"max_attempts", q.opts.Retries+1,
				"backoff", delay,
				"error", err)
			if serr := q.sleep(ctx, delay); serr != nil {
				return zero, lastErr
			}
		}
	}

	return zero, fmt.Errorf("task failed after %d attempts: %w", q.opts.Retries+1, lastErr)
}

// delayFor returns the backoff before retry number attempt+1. Schedules
// shorter than the retry count repeat their final delay.
func (q *Queue[T]) delayFor(attempt int) time.Duration {
	if attempt < len(q.opts.RetryDelays) {
		return q.opts.RetryDelays[attempt]
	}
	return q.opts.RetryDelays[len(q.opts.RetryDelays)-1]
}

// sleepCtx waits for d, returning early with the context error when ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
