// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/events"
)

var (
	// ErrUnknownJob is returned by Trigger for names that were never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is started while a previous run of
	// the same job has not finished.
	ErrJobRunning = errors.New("job already running")
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Publisher receives job completion events.
type Publisher interface {
	Publish(module string, data events.EventData)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron      *cron.Cron
	log       zerolog.Logger
	publisher Publisher

	mu   sync.Mutex
	jobs map[string]*registeredJob
}

// registeredJob guards a job so that scheduled and manual runs never overlap.
type registeredJob struct {
	job     Job
	running sync.Mutex
}

// New creates a new scheduler. Schedules use the six-field form with seconds.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*registeredJob),
	}
}

// SetPublisher makes the scheduler publish an event after every job run.
// Must be called before Start.
func (s *Scheduler) SetPublisher(p Publisher) {
	s.publisher = p
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job under a cron schedule. Schedule examples:
//   - "0 0 3 * * *"  - 03:00 every day
//   - "@hourly"      - every hour
//   - "@every 30s"   - every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	entry := &registeredJob{job: job}
	if _, err := s.cron.AddFunc(schedule, func() { s.execute(entry) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	s.jobs[job.Name()] = entry

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Jobs returns the sorted names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger runs a registered job by name, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.guarded(entry)
}

// RunNow executes a job immediately (outside schedule). A job registered
// under the same name shares its guard with the scheduled runs.
func (s *Scheduler) RunNow(job Job) error {
	s.mu.Lock()
	entry, ok := s.jobs[job.Name()]
	s.mu.Unlock()
	if !ok {
		entry = &registeredJob{job: job}
	}
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.guarded(entry)
}

// guarded runs the job unless a previous run is still in progress.
func (s *Scheduler) guarded(entry *registeredJob) error {
	if !entry.running.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, entry.job.Name())
	}
	defer entry.running.Unlock()
	return s.run(entry.job)
}

func (s *Scheduler) run(job Job) error {
	start := time.Now()
	err := job.Run()
	if s.publisher != nil {
		status := &events.JobStatusData{
			Job:      job.Name(),
			Status:   "completed",
			Duration: time.Since(start).Seconds(),
		}
		if err != nil {
			status.Status = "failed"
			status.Error = err.Error()
		}
		s.publisher.Publish("scheduler", status)
	}
	return err
}

func (s *Scheduler) execute(entry *registeredJob) {
	job := entry.job
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", job.Name()).Msg("Job panicked")
		}
	}()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	if err := s.guarded(entry); err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.log.Warn().Str("job", job.Name()).Msg("Skipping run, previous run still in progress")
			return
		}
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
}
