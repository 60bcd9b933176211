package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-engine/leave"
	"github.com/attendly/leave-engine/scheduler"
	"github.com/attendly/leave-engine/store/sqlite"
)

type countingJob struct {
	name string
	due  bool
	runs int
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Due(leave.Date) bool { return j.due }
func (j *countingJob) Run(context.Context, leave.Date) error {
	j.runs++
	return j.err
}

func newRunnerFixture(t *testing.T, jobs ...scheduler.Job) (*scheduler.Runner, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := leave.FixedClock{Date: leave.NewDate(2025, time.June, 2)}
	return scheduler.NewRunner(store, clock, nil, time.Hour, jobs...), store
}

func TestRunner_TickRunsEachDueJobOncePerDate(t *testing.T) {
	job := &countingJob{name: "counting", due: true}
	runner, store := newRunnerFixture(t, job)
	ctx := context.Background()

	runner.Tick(ctx)
	runner.Tick(ctx)

	assert.Equal(t, 1, job.runs, "same date never runs twice")

	runs, err := store.ListRuns(ctx, "counting", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestRunner_NotDueJobSkipped(t *testing.T) {
	job := &countingJob{name: "idle", due: false}
	runner, store := newRunnerFixture(t, job)

	runner.Tick(context.Background())

	assert.Zero(t, job.runs)
	runs, err := store.ListRuns(context.Background(), "idle", 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "skipped jobs leave no run record")
}

func TestRunner_FailedJobRecordedAndRetried(t *testing.T) {
	job := &countingJob{name: "flaky", due: true, err: errors.New("boom")}
	runner, store := newRunnerFixture(t, job)
	ctx := context.Background()

	runner.Tick(ctx)
	runs, err := store.ListRuns(ctx, "flaky", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Error, "boom")

	// The failure clears; the next tick of the same date retries.
	job.err = nil
	runner.Tick(ctx)
	assert.Equal(t, 2, job.runs)

	runs, err = store.ListRuns(ctx, "flaky", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
}

// blockingJob parks in Run until released, so a test can overlap a
// second trigger with an execution in flight.
type blockingJob struct {
	name    string
	started chan struct{}
	release chan struct{}
	runs    int32
}

func (j *blockingJob) Name() string        { return j.name }
func (j *blockingJob) Due(leave.Date) bool { return true }
func (j *blockingJob) Run(context.Context, leave.Date) error {
	atomic.AddInt32(&j.runs, 1)
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestRunner_OverlappingTriggersRunJobOnce(t *testing.T) {
	// GIVEN: a job parked mid-execution
	// WHEN: a manual trigger for the same job arrives before it finishes
	// THEN: the trigger waits its turn, finds the run completed, and the
	//       job body executes exactly once
	job := &blockingJob{
		name:    "slow",
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	runner, store := newRunnerFixture(t, job)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.RunJob(ctx, "slow")
	}()
	<-job.started // first execution is in flight

	go func() {
		defer wg.Done()
		runner.RunJob(ctx, "slow")
	}()
	close(job.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))

	runs, err := store.ListRuns(ctx, "slow", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestRunner_RunJobByName(t *testing.T) {
	job := &countingJob{name: "manual", due: false}
	runner, _ := newRunnerFixture(t, job)

	assert.True(t, runner.RunJob(context.Background(), "manual"), "manual trigger ignores the Due schedule")
	assert.Equal(t, 1, job.runs)

	assert.False(t, runner.RunJob(context.Background(), "missing"))
}
