/*
Package scheduler runs the engine's dated background jobs.

PURPOSE:
  Two jobs keep the ledger current without human action:

    accrual          Monthly credits, anniversary bonuses, year-end
                     carry-forward (accrual.go)
    auto_transition  Approves requests whose window elapsed without a
                     decision (autotransition.go)

EXECUTION MODEL:
  The Runner ticks on an interval and offers each due job its current
  calendar date. A (job, date) pair runs at most once: TryBeginRun
  claims the dated run record before the job body executes, so restarts
  and overlapping ticks cannot double-run a day. The balance entries a
  job writes carry their own idempotency keys as a second line of
  defense.

DESIGN NOTES:
  - Jobs take the run date as an argument, never read the wall clock.
  - A failed run is recorded and retried on the next tick of the same
    day (TryBeginRun lets a failed run be taken over).
  - Stop() drains the in-flight tick before returning.
*/
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/attendly/leave-engine/leave"
)

// Job is one dated background task.
type Job interface {
	Name() string
	// Due reports whether the job has work scheduled for this date.
	Due(runDate leave.Date) bool
	Run(ctx context.Context, runDate leave.Date) error
}

// Runner ticks on an interval and executes every due job once per date.
type Runner struct {
	store    leave.TxStore
	clock    leave.Clock
	log      *zap.Logger
	interval time.Duration
	jobs     []Job

	// jobLocks serializes executions of the same job in this process:
	// an admin-triggered run issued mid-tick waits instead of racing the
	// ticker's instance.
	jobLocks map[string]*sync.Mutex

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(store leave.TxStore, clock leave.Clock, log *zap.Logger, interval time.Duration, jobs ...Job) *Runner {
	if clock == nil {
		clock = leave.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	jobLocks := make(map[string]*sync.Mutex, len(jobs))
	for _, j := range jobs {
		jobLocks[j.Name()] = &sync.Mutex{}
	}
	return &Runner{
		store:    store,
		clock:    clock,
		log:      log,
		interval: interval,
		jobs:     jobs,
		jobLocks: jobLocks,
	}
}

// Start launches the tick loop. Idempotent: a running Runner stays running.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		// Immediate first pass so a freshly started server catches up on
		// the current date without waiting a full interval.
		r.Tick(context.Background())

		for {
			select {
			case <-ticker.C:
				r.Tick(context.Background())
			case <-r.stop:
				return
			}
		}
	}()

	r.log.Info("scheduler started", zap.Duration("interval", r.interval))
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("scheduler stopped")
}

// Tick runs every due job for the current date. Safe to call directly;
// the admin surface uses it for on-demand runs.
func (r *Runner) Tick(ctx context.Context) {
	today := r.clock.Today()
	for _, job := range r.jobs {
		if !job.Due(today) {
			continue
		}
		r.runJob(ctx, job, today)
	}
}

// RunJob executes one named job for the current date regardless of its
// Due schedule. Returns false when no job carries that name.
func (r *Runner) RunJob(ctx context.Context, name string) bool {
	today := r.clock.Today()
	for _, job := range r.jobs {
		if job.Name() == name {
			r.runJob(ctx, job, today)
			return true
		}
	}
	return false
}

// Jobs lists the registered job names.
func (r *Runner) Jobs() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name()
	}
	return names
}

func (r *Runner) runJob(ctx context.Context, job Job, runDate leave.Date) {
	// One execution per job at a time; a concurrent trigger waits here
	// and then finds the completed run record.
	mu := r.jobLocks[job.Name()]
	mu.Lock()
	defer mu.Unlock()

	ok, err := r.store.TryBeginRun(ctx, job.Name(), runDate)
	if err != nil {
		r.log.Error("failed to claim scheduler run",
			zap.String("job", job.Name()),
			zap.Error(err))
		return
	}
	if !ok {
		return // already completed for this date
	}

	runErr := job.Run(ctx, runDate)
	if err := r.store.CompleteRun(ctx, job.Name(), runDate, runErr); err != nil {
		r.log.Error("failed to record scheduler run",
			zap.String("job", job.Name()),
			zap.Error(err))
	}

	if runErr != nil {
		r.log.Error("scheduler job failed",
			zap.String("job", job.Name()),
			zap.String("run_date", runDate.String()),
			zap.Error(runErr))
		return
	}
	r.log.Info("scheduler job completed",
		zap.String("job", job.Name()),
		zap.String("run_date", runDate.String()))
}
