package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSchedulerSpacesReleases(t *testing.T) {
	const interval = 40 * time.Millisecond
	s := NewScheduler(interval)

	var mu sync.Mutex
	starts := make(map[int]time.Time)
	begin := time.Now()
	s.Run(context.Background(), 3, func(_ context.Context, i int) {
		mu.Lock()
		starts[i] = time.Now()
		mu.Unlock()
	}, func(i int, err error) {
		t.Errorf("item %d skipped: %v", i, err)
	})

	if len(starts) != 3 {
		t.Fatalf("ran %d items, want 3", len(starts))
	}
	if d := starts[0].Sub(begin); d > interval/2 {
		t.Fatalf("first release after %v, want immediate", d)
	}
	if d := starts[2].Sub(starts[0]); d < 3*interval/2 {
		t.Fatalf("third release %v after the first, want about %v", d, 2*interval)
	}
}

func TestSchedulerRunsReleasedWorkConcurrently(t *testing.T) {
	s := NewScheduler(0)
	var waits int
	s.wait = func(context.Context) error {
		waits++
		return nil
	}
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		wg.Wait()
		close(release)
	}()
	s.Run(context.Background(), 3, func(context.Context, int) {
		wg.Done()
		// Blocks until every item is running; a sequential scheduler deadlocks.
		<-release
	}, func(int, error) {})
	if waits != 3 {
		t.Fatalf("waits=%d, want one per item", waits)
	}
}

func TestSchedulerSkipsAfterCancel(t *testing.T) {
	s := NewScheduler(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	var ran []int
	var skipped []int
	s.Run(ctx, 3, func(_ context.Context, i int) {
		ran = append(ran, i)
		cancel()
	}, func(i int, err error) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("skip err=%v, want context.Canceled", err)
		}
		skipped = append(skipped, i)
	})
	if len(ran) != 1 || len(skipped) != 2 || skipped[0] != 1 {
		t.Fatalf("ran=%v skipped=%v", ran, skipped)
	}
}
