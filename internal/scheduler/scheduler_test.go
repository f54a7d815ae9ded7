package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simm/internal/events"
	testhelpers "github.com/aristath/simm/internal/testing"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
}

func (j *countingJob) Name() string { return j.name }

// blockingJob runs until release is closed.
type blockingJob struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func newBlockingJob(name string) *blockingJob {
	return &blockingJob{name: name, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (j *blockingJob) Name() string { return j.name }

func (j *blockingJob) Run() error {
	j.started <- struct{}{}
	<-j.release
	return nil
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "a"}))
	assert.Error(t, s.AddJob("@every 1h", &countingJob{name: "a"}), "duplicate name")
	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "b"}))
	assert.ElementsMatch(t, []string{"a"}, s.Jobs())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "fast"}
	failing := &countingJob{name: "failing", err: errors.New("nope")}
	panicking := &countingJob{name: "panicking", panic: true}

	require.NoError(t, s.AddJob("@every 1s", job))
	require.NoError(t, s.AddJob("@every 1s", failing))
	require.NoError(t, s.AddJob("@every 1s", panicking))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0 && failing.runs.Load() > 0 && panicking.runs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now", err: errors.New("failed")}

	assert.EqualError(t, s.RunNow(job), "failed")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_Trigger(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "purge"}
	require.NoError(t, s.AddJob("@daily", job))

	require.NoError(t, s.Trigger("purge"))
	assert.Equal(t, int32(1), job.runs.Load())
	assert.ErrorIs(t, s.Trigger("missing"), ErrUnknownJob)
}

func TestScheduler_PublishesJobStatus(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var got []*events.Event
	bus.Subscribe(events.JobCompleted, func(e *events.Event) { got = append(got, e) })
	bus.Subscribe(events.JobFailed, func(e *events.Event) { got = append(got, e) })

	s := New(zerolog.Nop())
	s.SetPublisher(bus)
	require.NoError(t, s.RunNow(&countingJob{name: "ok"}))
	require.Error(t, s.RunNow(&countingJob{name: "bad", err: errors.New("disk full")}))

	require.Len(t, got, 2)
	assert.Equal(t, events.JobCompleted, got[0].Type)
	assert.Equal(t, "scheduler", got[0].Module)
	assert.Equal(t, "ok", got[0].Data.(*events.JobStatusData).Job)

	failed := got[1].Data.(*events.JobStatusData)
	assert.Equal(t, events.JobFailed, got[1].Type)
	assert.Equal(t, "bad", failed.Job)
	assert.Equal(t, "disk full", failed.Error)
}

func TestScheduler_ManualRunDoesNotOverlap(t *testing.T) {
	s := New(zerolog.Nop())
	job := newBlockingJob("runs_backup")
	require.NoError(t, s.AddJob("@daily", job))

	done := make(chan error, 1)
	go func() { done <- s.Trigger("runs_backup") }()
	<-job.started

	assert.ErrorIs(t, s.Trigger("runs_backup"), ErrJobRunning)
	assert.ErrorIs(t, s.RunNow(job), ErrJobRunning)

	close(job.release)
	require.NoError(t, <-done)

	// the guard is released once the run finishes
	go func() { done <- s.Trigger("runs_backup") }()
	<-job.started
	require.NoError(t, <-done)
}

func TestScheduler_PanickingJobReleasesGuard(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "panicking", panic: true}
	require.NoError(t, s.AddJob("@daily", job))

	s.mu.Lock()
	entry := s.jobs["panicking"]
	s.mu.Unlock()
	s.execute(entry)
	assert.True(t, entry.running.TryLock())
}

func TestWALCheckpointJob(t *testing.T) {
	assert.Equal(t, "wal_checkpoint", NewWALCheckpointJob(nil, zerolog.Nop()).Name())
	assert.NoError(t, NewWALCheckpointJob(nil, zerolog.Nop()).Run())

	db, cleanup := testhelpers.NewTestDB(t, "runs")
	defer cleanup()
	assert.NoError(t, NewWALCheckpointJob(db, zerolog.Nop()).Run())
}
