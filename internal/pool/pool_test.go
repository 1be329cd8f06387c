package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Process_PreservesOrder(t *testing.T) {
	wp := New[int, int](WithWorkerCount(4))

	tasks := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	results, err := wp.Process(context.Background(), tasks, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n * 2, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != len(tasks) {
		t.Fatalf("expected %d results, got %d", len(tasks), len(results))
	}
	for i, task := range tasks {
		if results[i] != task*2 {
			t.Errorf("task %d: expected %d, got %d", i, task*2, results[i])
		}
	}
}

func TestWorkerPool_Process_EmptyTasks(t *testing.T) {
	wp := New[int, int]()

	results, err := wp.Process(context.Background(), nil, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestWorkerPool_Process_ErrorStopsProcessing(t *testing.T) {
	wp := New[int, int](WithWorkerCount(2))
	boom := errors.New("boom")

	tasks := make([]int, 100)
	for i := range tasks {
		tasks[i] = i
	}

	var processed atomic.Int32
	_, err := wp.Process(context.Background(), tasks, func(ctx context.Context, n int) (int, error) {
		processed.Add(1)
		if n == 3 {
			return 0, boom
		}
		time.Sleep(time.Millisecond)
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if processed.Load() == int32(len(tasks)) {
		t.Error("expected processing to stop early after the error")
	}
}

func TestWorkerPool_Process_PanicRecovery(t *testing.T) {
	wp := New[int, int](WithWorkerCount(3))

	_, err := wp.Process(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			panic("tile exploded")
		}
		return n, nil
	})
	if !errors.Is(err, ErrWorkerPanic) {
		t.Fatalf("expected ErrWorkerPanic, got %v", err)
	}
}

func TestWorkerPool_Process_BoundedConcurrency(t *testing.T) {
	const workers = 3
	wp := New[int, struct{}](WithWorkerCount(workers))

	var live, peak atomic.Int32
	tasks := make([]int, 30)
	_, err := wp.Process(context.Background(), tasks, func(ctx context.Context, _ int) (struct{}, error) {
		n := live.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		live.Add(-1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > workers {
		t.Errorf("observed %d concurrent tasks, limit is %d", peak.Load(), workers)
	}
}

func TestWorkerPool_Process_ContextCancelled(t *testing.T) {
	wp := New[int, int](WithWorkerCount(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wp.Process(ctx, []int{1, 2, 3, 4}, func(ctx context.Context, n int) (int, error) {
		return n, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWorkerPool_OnTaskEnd(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	wp := New[int, int](WithWorkerCount(4), WithOnTaskEnd(func(index int, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = err == nil
	}))

	tasks := []int{10, 20, 30, 40, 50}
	if _, err := wp.Process(context.Background(), tasks, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != len(tasks) {
		t.Fatalf("hook saw %d tasks, want %d", len(seen), len(tasks))
	}
	for i := range tasks {
		if !seen[i] {
			t.Errorf("task %d not reported as successful", i)
		}
	}
}

func TestSafely(t *testing.T) {
	if err := Safely(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	sentinel := errors.New("plain")
	if err := Safely(func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	err := Safely(func() error { panic("nope") })
	if !errors.Is(err, ErrWorkerPanic) {
		t.Fatalf("expected ErrWorkerPanic, got %v", err)
	}
}
