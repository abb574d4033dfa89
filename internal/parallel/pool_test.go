package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPool_Workers(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		pool := NewPool(tt.workers)
		if got := pool.Workers(); got != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.workers, got, tt.want)
		}
		pool.Close()
	}
}

func TestPool_RunVisitsEveryIndex(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	const n = 500
	var mu sync.Mutex
	seen := make(map[int]int)
	err := pool.Run(context.Background(), n, func(i int) error {
		mu.Lock()
		seen[i]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range n {
		if seen[i] != 1 {
			t.Errorf("index %d ran %d times, want 1", i, seen[i])
		}
	}
}

func TestPool_RunEmpty(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()
	if err := pool.Run(context.Background(), 0, func(int) error { return errors.New("called") }); err != nil {
		t.Errorf("Run(0) = %v, want nil", err)
	}
}

func TestPool_RunReturnsFirstError(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	boom := errors.New("boom")
	var ran atomic.Int32
	err := pool.Run(context.Background(), 50, func(i int) error {
		ran.Add(1)
		if i == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want %v", err, boom)
	}
	if got := ran.Load(); got != 1 {
		t.Errorf("%d jobs ran on a single worker after the first failed, want 1", got)
	}
}

func TestPool_RunCanceled(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	err := pool.Run(ctx, 10, func(int) error {
		ran.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want %v", err, context.Canceled)
	}
	if ran.Load() != 0 {
		t.Errorf("%d jobs ran under a canceled context", ran.Load())
	}
}

func TestPool_RunAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	pool.Close()

	var ran atomic.Int32
	if err := pool.Run(context.Background(), 5, func(int) error { ran.Add(1); return nil }); err != nil {
		t.Fatalf("Run after Close: %v", err)
	}
	if ran.Load() != 5 {
		t.Errorf("ran %d jobs after Close, want 5", ran.Load())
	}
}

func TestPool_ConcurrentRuns(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Run(context.Background(), 100, func(int) error {
				total.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()
	if total.Load() != 800 {
		t.Errorf("total = %d, want 800", total.Load())
	}
}
