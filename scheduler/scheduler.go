// Package scheduler runs the periodic maintenance jobs of the library.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusScheduled JobStatus = "scheduled"
)

// JobInfo contains information about a scheduled job.
type JobInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     JobStatus `json:"status"`
	LastRun    time.Time `json:"lastRun"`
	NextRun    time.Time `json:"nextRun"`
	Schedule   string    `json:"schedule"`
	RunCount   int       `json:"runCount"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`

	gocronJob gocron.Job
}

// JobFunc is a schedulable function.
type JobFunc func(ctx context.Context) error

// Scheduler manages the registered jobs.
type Scheduler struct {
	gocron gocron.Scheduler
	jobs   map[string]*JobInfo
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty scheduler.
func New() (*Scheduler, error) {
	gs, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{log.Default().WithPrefix("scheduler")}))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron: gs,
		jobs:   make(map[string]*JobInfo),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start starts running the registered jobs.
func (s *Scheduler) Start() {
	s.gocron.Start()
	for id, info := range s.jobs {
		if next, err := info.gocronJob.NextRun(); err == nil {
			info.NextRun = next
		}
		log.Debug("scheduled job", "id", id, "next", info.NextRun)
	}
	log.Info("job scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.gocron.Shutdown()
}

// AddJob registers a singleton job: a run that is still going when the next
// tick arrives is not started twice.
func (s *Scheduler) AddJob(id, name, schedule string, def gocron.JobDefinition, fn JobFunc) error {
	info := &JobInfo{
		ID:       id,
		Name:     name,
		Status:   JobStatusScheduled,
		Schedule: schedule,
	}

	job, err := s.gocron.NewJob(
		def,
		gocron.NewTask(s.wrap(info, fn)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}
	info.gocronJob = job
	s.jobs[id] = info
	return nil
}

// RunJobNow triggers a job outside its schedule.
func (s *Scheduler) RunJobNow(id string) error {
	info, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	return info.gocronJob.RunNow()
}

// Jobs returns all registered jobs.
func (s *Scheduler) Jobs() map[string]*JobInfo { return s.jobs }

func (s *Scheduler) wrap(info *JobInfo, fn JobFunc) func() {
	return func() {
		log.Info("starting job", "id", info.ID)
		info.Status = JobStatusRunning
		info.LastRun = time.Now()
		info.RunCount++

		if err := fn(s.ctx); err != nil {
			log.Error("job failed", "id", info.ID, "error", err)
			info.Status = JobStatusFailed
			info.ErrorCount++
			info.LastError = err.Error()
		} else {
			info.Status = JobStatusCompleted
			info.LastError = ""
		}
		if next, err := info.gocronJob.NextRun(); err == nil {
			info.NextRun = next
		}
	}
}

// gocronLogger adapts charmbracelet/log to the gocron logger interface.
type gocronLogger struct {
	log *log.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
