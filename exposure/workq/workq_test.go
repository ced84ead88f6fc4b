package workq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAddAllIsolatesFailures(t *testing.T) {
	t.Log("\n🔍 Testing failure isolation across a batch...")

	q := NewImmediate[string](Options{Concurrency: 2, Retries: 1})

	boom := errors.New("boom")
	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { return "ok", nil },
		func(ctx context.Context) (string, error) { return "also ok", nil },
	}

	results := q.AddAll(context.Background(), tasks)

	if len(results) != 3 {
		t.Fatalf("❌ Expected 3 settled outcomes, got %d", len(results))
	}
	if results[0].Fulfilled {
		t.Errorf("❌ Task 0 should have settled rejected")
	}
	if !errors.Is(results[0].Err, boom) {
		t.Errorf("❌ Task 0 should carry its own error, got %v", results[0].Err)
	}
	if !results[1].Fulfilled || results[1].Value != "ok" {
		t.Errorf("❌ Task 1 should have succeeded despite task 0 failing")
	}
	if !results[2].Fulfilled || results[2].Value != "also ok" {
		t.Errorf("❌ Task 2 should have succeeded despite task 0 failing")
	}
	t.Log("✅ A rejected task never aborts or delays its siblings")
}

func TestRetryExhaustion(t *testing.T) {
	t.Log("\n🔍 Testing retry count on persistent failure...")

	q := NewImmediate[int](Options{Concurrency: 1, Retries: 3})

	var attempts int32
	task := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, fmt.Errorf("attempt %d failed", atomic.LoadInt32(&attempts))
	}

	_, err := q.Add(context.Background(), task)
	if err == nil {
		t.Fatalf("❌ Expected the task to settle rejected")
	}
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Errorf("❌ Expected 1 initial + 3 retries = 4 attempts, got %d", got)
	}
	t.Log("✅ Task ran initial attempt plus configured retries")
}

func TestRetrySucceedsMidway(t *testing.T) {
	t.Log("\n🔍 Testing recovery on a later attempt...")

	q := NewImmediate[string](Options{Concurrency: 1, Retries: 3})

	var attempts int32
	task := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return "", errors.New("transient")
		}
		return "recovered", nil
	}

	value, err := q.Add(context.Background(), task)
	if err != nil {
		t.Fatalf("❌ Expected recovery, got %v", err)
	}
	if value != "recovered" {
		t.Errorf("❌ Unexpected value: %s", value)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("❌ Expected exactly 3 attempts, got %d", attempts)
	}
	t.Log("✅ Transient failures recover without exhausting the retry budget")
}

func TestConcurrencyBound(t *testing.T) {
	t.Log("\n🔍 Testing the worker pool bound...")

	const limit = 3
	q := NewImmediate[int](Options{Concurrency: limit, Retries: 1})

	var mu sync.Mutex
	var running, peak int
	gate := make(chan struct{})

	tasks := make([]Task[int], 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			<-gate

			mu.Lock()
			running--
			mu.Unlock()
			return 0, nil
		}
	}

	go func() {
		// Release all tasks once workers are saturated.
		for i := 0; i < len(tasks); i++ {
			gate <- struct{}{}
		}
	}()

	q.AddAll(context.Background(), tasks)

	if peak > limit {
		t.Errorf("❌ Observed %d concurrent tasks, limit is %d", peak, limit)
	}
	if peak == 0 {
		t.Errorf("❌ No tasks observed running")
	}
	t.Log("✅ Concurrency never exceeded the configured worker count")
}

func TestContextCancellationSettlesUnstarted(t *testing.T) {
	t.Log("\n🔍 Testing cancellation of a pending batch...")

	q := NewImmediate[int](Options{Concurrency: 1, Retries: 1})

	ctx, cancel := context.WithCancel(context.Background())

	tasks := []Task[int]{
		func(taskCtx context.Context) (int, error) {
			cancel()
			return 1, nil
		},
		func(taskCtx context.Context) (int, error) { return 2, nil },
		func(taskCtx context.Context) (int, error) { return 3, nil },
	}

	results := q.AddAll(ctx, tasks)

	if !results[0].Fulfilled {
		t.Errorf("❌ In-flight task should have settled with its own result")
	}
	rejected := 0
	for _, r := range results[1:] {
		if !r.Fulfilled && errors.Is(r.Err, context.Canceled) {
			rejected++
		}
	}
	if rejected == 0 {
		t.Errorf("❌ Expected at least one unstarted task to settle with the context error")
	}
	t.Log("✅ Cancellation settles remaining tasks instead of hanging")
}

func TestResultsPreserveTaskOrder(t *testing.T) {
	t.Log("\n🔍 Testing result ordering matches submission order...")

	q := NewImmediate[int](Options{Concurrency: 4, Retries: 1})

	tasks := make([]Task[int], 8)
	for i := range tasks {
		n := i
		tasks[i] = func(ctx context.Context) (int, error) { return n * 10, nil }
	}

	results := q.AddAll(context.Background(), tasks)
	for i, r := range results {
		if r.Index != i {
			t.Errorf("❌ Result %d has index %d", i, r.Index)
		}
		if r.Value != i*10 {
			t.Errorf("❌ Result %d has value %d, want %d", i, r.Value, i*10)
		}
	}
	t.Log("✅ Settled outcomes line up with their tasks regardless of completion order")
}
