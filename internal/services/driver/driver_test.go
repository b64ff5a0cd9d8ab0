package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/goshin/internal/common"
)

func testLogger() *common.Logger { return common.NewSilentLogger() }

func TestDriver_FiresJobOnInterval(t *testing.T) {
	var calls int32
	d := New(testLogger(), nil)
	d.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("expected at least 3 ticks in 55ms at 10ms interval, got %d", calls)
	}
}

func TestDriver_SkipsTickWhilePreviousStillRunning(t *testing.T) {
	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)

	d := New(testLogger(), nil)
	d.Register(Job{
		Name:     "slow",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				wg.Wait() // block the first invocation past several ticks
			}
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	go func() {
		time.Sleep(45 * time.Millisecond)
		wg.Done()
	}()
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&calls) > 3 {
		t.Errorf("expected overlapping ticks to be skipped while job 1 was running, got %d calls", calls)
	}
}

func TestDriver_RunsSupervisedLoopAlongsideJobs(t *testing.T) {
	var ran int32
	d := New(testLogger(), func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("expected supervised loop to run exactly once, got %d", ran)
	}
}
