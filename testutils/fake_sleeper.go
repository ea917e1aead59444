package testutils

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper records requested delays instead of sleeping. It still honours
// cancellation so retry loops can be aborted in tests.
type FakeSleeper struct {
	Start time.Time

	mu     sync.Mutex
	delays []time.Duration
}

func (f *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *FakeSleeper) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.delays))
	copy(out, f.delays)
	return out
}

// Total is the sum of every recorded delay.
func (f *FakeSleeper) Total() time.Duration {
	var sum time.Duration
	for _, d := range f.Delays() {
		sum += d
	}
	return sum
}

// Now is a virtual clock: Start advanced by every delay slept so far.
func (f *FakeSleeper) Now() time.Time {
	return f.Start.Add(f.Total())
}
