// Package driver runs named periodic jobs and supervises the dispatcher's
// long-lived loop (C6).
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/goshin/internal/common"
)

// Job is one periodically-invoked unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Driver fires each registered Job on its own interval with max_instances=1
// semantics (a tick is skipped if the previous invocation is still running)
// and runs the supervised dispatcher loop alongside them.
type Driver struct {
	jobs       []Job
	supervised func(ctx context.Context)
	logger     *common.Logger
	wg         sync.WaitGroup
}

// New creates a Driver. supervised, if non-nil, is started as its own
// restart-on-crash loop (typically the dispatcher's RunSupervised).
func New(logger *common.Logger, supervised func(ctx context.Context)) *Driver {
	return &Driver{logger: logger, supervised: supervised}
}

// Register adds a periodic job. Call before Run.
func (d *Driver) Register(job Job) {
	d.jobs = append(d.jobs, job)
}

// Run starts every registered job and the supervised loop, and blocks until
// ctx is cancelled, then waits for all of them to unwind.
func (d *Driver) Run(ctx context.Context) {
	for _, job := range d.jobs {
		job := job
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runJob(ctx, job)
		}()
	}

	if d.supervised != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.supervised(ctx)
		}()
	}

	<-ctx.Done()
	d.wg.Wait()
}

// runJob fires job.Run every job.Interval, skipping a tick if the previous
// invocation has not yet returned (max_instances=1). The misfire grace
// window equals the interval itself: a tick that arrives while the
// previous run is still in flight is simply dropped, not queued.
func (d *Driver) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	var running sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !running.TryLock() {
				d.logger.Debug().Str("job", job.Name).Msg("driver: skipping tick, previous invocation still running")
				continue
			}
			func() {
				defer running.Unlock()
				if err := job.Run(ctx); err != nil {
					d.logger.Warn().Str("job", job.Name).Err(err).Msg("driver: job invocation failed")
				}
			}()
		}
	}
}
