// Package scheduler runs periodic jobs for the Tutoring Hub, such as a
// merge refresh over the configured batch sources.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Recorder receives the outcome of every job run.
type Recorder interface {
	JobCompleted(job string, d time.Duration, err error)
}

// JobResult is the outcome of one run.
type JobResult struct {
	Job       string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name      string
	Schedule  string
	NextRun   time.Time
	Running   bool
	RunCount  int64
	FailCount int64
	Last      *JobResult
}

type entry struct {
	job       Job
	schedule  Schedule
	next      time.Time
	running   bool
	runCount  int64
	failCount int64
	last      *JobResult
}

// Config contains configuration for the Scheduler.
type Config struct {
	Logger   *logger.Logger
	Recorder Recorder

	// Location schedules are evaluated in (default UTC).
	Location *time.Location
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a tick that finds the previous run still going is skipped.
type Scheduler struct {
	mu   sync.Mutex
	log  *logger.Logger
	rec  Recorder
	loc  *time.Location
	now  func() time.Time
	jobs map[string]*entry

	running bool
	cancel  context.CancelFunc
	wake    chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Scheduler{
		log:  config.Logger.With(logger.Component("scheduler")),
		rec:  config.Recorder,
		loc:  config.Location,
		now:  time.Now,
		jobs: make(map[string]*entry),
		wake: make(chan struct{}, 1),
	}
}

// Register adds a job. It may be called while the scheduler runs.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, next: schedule.Next(s.now().In(s.loc))}
	s.jobs[name] = e
	s.mu.Unlock()

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.String("next_run", e.next.Format(time.RFC3339)),
	)
	s.poke()
	return nil
}

// Start runs the scheduling loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// RunNow executes a job immediately and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.running:
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.running = true
	s.mu.Unlock()

	res := s.execute(ctx, e)
	return res, res.Err
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobInfo{
			Name:      name,
			Schedule:  e.schedule.String(),
			NextRun:   e.next,
			Running:   e.running,
			RunCount:  e.runCount,
			FailCount: e.failCount,
			Last:      e.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Loop
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop sleeps until the earliest due job, starts every due job and repeats.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		timer.Reset(s.dispatch(ctx))

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// dispatch starts due jobs and returns the wait until the next one.
func (s *Scheduler) dispatch(ctx context.Context) time.Duration {
	now := s.now().In(s.loc)
	wait := time.Hour

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.jobs {
		if !e.next.IsZero() && !now.Before(e.next) {
			e.next = e.schedule.Next(now)
			if e.running {
				s.log.Warn("previous run still going, tick skipped", logger.String("job", name))
			} else {
				e.running = true
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.execute(ctx, e)
				}()
			}
		}
		if e.next.IsZero() {
			continue
		}
		if d := e.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// execute runs a job already marked running and records the result.
func (s *Scheduler) execute(ctx context.Context, e *entry) JobResult {
	name := e.job.Name()
	log := s.log.With(logger.String("job", name))
	started := s.now()

	log.Debug("job started")
	err := e.job.Run(ctx)
	res := JobResult{Job: name, StartedAt: started, Duration: time.Since(started), Err: err}

	s.mu.Lock()
	e.running = false
	e.runCount++
	if err != nil {
		e.failCount++
	}
	e.last = &res
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.JobCompleted(name, res.Duration, err)
	}
	if err != nil {
		log.Error("job failed", logger.Latency(res.Duration), logger.Err(err))
	} else {
		log.Info("job completed", logger.Latency(res.Duration))
	}
	return res
}
