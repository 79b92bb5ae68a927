package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler releases one unit of work per interval. Released work runs
// concurrently, so the batch takes about (n-1) intervals plus the slowest
// unit rather than the sum of all units.
type Scheduler struct {
	limiter *rate.Limiter
	// wait blocks until the next release. Replaced in tests.
	wait func(ctx context.Context) error
}

// NewScheduler returns a scheduler spacing releases by interval. A zero or
// negative interval releases everything at once.
func NewScheduler(interval time.Duration) *Scheduler {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	s := &Scheduler{limiter: rate.NewLimiter(limit, 1)}
	s.wait = s.limiter.Wait
	return s
}

// Run calls fn for 0..n-1. When ctx ends before item i is released, skip is
// called for i and every later item instead. Run returns when every fn has
// returned.
func (s *Scheduler) Run(ctx context.Context, n int, fn func(ctx context.Context, i int), skip func(i int, err error)) {
	var wg sync.WaitGroup
	for i := range n {
		if err := s.wait(ctx); err != nil {
			for j := i; j < n; j++ {
				skip(j, err)
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx, i)
		}()
	}
	wg.Wait()
}
