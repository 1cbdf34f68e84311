package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/events"
	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/storage"
	"github.com/cuongbtq/sensei-scan/internal/scan/synth"
	"github.com/google/uuid"
)

// Defaults used when Config leaves a field zero
const (
	DefaultTickInterval = 800 * time.Millisecond
	DefaultScanDuration = 1200 * time.Millisecond
)

// Config holds scheduler dependencies and timing.
// Publisher is called with the scheduler lock held so events leave in commit
// order. It must not block; wrap a broker publisher in an events.Outbox.
type Config struct {
	Logger       *slog.Logger
	Queue        *storage.Queue
	Results      *storage.ResultStore
	Synthesizer  synth.Synthesizer
	Publisher    events.Publisher
	Clock        Clock
	NewID        func() string
	TickInterval time.Duration
	ScanDuration time.Duration
}

// Task is the deferred completion of one admitted job
type Task struct {
	JobID  string
	URL    string
	FireAt time.Time

	// result survives a failed queue write so a retry does not synthesize twice
	result *domain.ScanResult
	cause  error
}

// Scheduler owns the scan queue. Submission, admission and completion all
// go through its lock, and each persists before the lock is released.
type Scheduler struct {
	mu sync.RWMutex

	logger       *slog.Logger
	queue        *storage.Queue
	results      *storage.ResultStore
	synthesizer  synth.Synthesizer
	publisher    events.Publisher
	clock        Clock
	newID        func() string
	tickInterval time.Duration
	scanDuration time.Duration

	pending *Task
	wg      sync.WaitGroup
}

// New creates a scheduler. A job left running by a previous process gets a
// fresh completion task.
func New(cfg *Config) *Scheduler {
	s := &Scheduler{
		logger:       cfg.Logger,
		queue:        cfg.Queue,
		results:      cfg.Results,
		synthesizer:  cfg.Synthesizer,
		publisher:    cfg.Publisher,
		clock:        cfg.Clock,
		newID:        cfg.NewID,
		tickInterval: cfg.TickInterval,
		scanDuration: cfg.ScanDuration,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	if s.scanDuration <= 0 {
		s.scanDuration = DefaultScanDuration
	}

	if job, ok := s.queue.Running(); ok {
		s.pending = &Task{JobID: job.ID, URL: job.URL, FireAt: s.clock.Now().Add(s.scanDuration)}
		s.logger.Warn("Resuming job left running by previous process",
			slog.String("job_id", job.ID),
		)
	}
	return s
}

// Submit validates req and appends a queued job
func (s *Scheduler) Submit(ctx context.Context, req domain.SubmitRequest) (domain.ScanJob, error) {
	if err := req.Validate(); err != nil {
		return domain.ScanJob{}, err
	}

	s.mu.Lock()
	job := domain.ScanJob{
		ID:        s.newID(),
		URL:       req.URL,
		CreatedAt: s.clock.Now().UTC(),
		Status:    domain.JobStatusQueued,
	}
	if err := s.queue.Append(ctx, job); err != nil {
		s.mu.Unlock()
		return domain.ScanJob{}, err
	}
	s.publish(ctx, job)
	s.mu.Unlock()

	s.logger.Info("Scan job queued",
		slog.String("job_id", job.ID),
		slog.String("url", job.URL),
	)
	return job, nil
}

// List returns every job in insertion order
func (s *Scheduler) List() []domain.ScanJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Jobs()
}

// Get returns one job by id
func (s *Scheduler) Get(id string) (domain.ScanJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.queue.Find(id)
	if !ok {
		return domain.ScanJob{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}

// Counts returns the number of jobs per status
func (s *Scheduler) Counts() map[domain.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[domain.JobStatus]int{
		domain.JobStatusQueued:    0,
		domain.JobStatusRunning:   0,
		domain.JobStatusCompleted: 0,
		domain.JobStatusFailed:    0,
	}
	for _, job := range s.queue.Jobs() {
		counts[job.Status]++
	}
	return counts
}

// Pending returns the completion task in flight, if any
func (s *Scheduler) Pending() (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pending == nil {
		return Task{}, false
	}
	return *s.pending, true
}

// Tick admits the oldest queued job when nothing is running.
// It returns the scheduled completion task, or nil when nothing was admitted.
func (s *Scheduler) Tick(ctx context.Context) (*Task, error) {
	s.mu.Lock()

	if _, ok := s.queue.Running(); ok {
		s.mu.Unlock()
		return nil, nil
	}
	job, ok := s.queue.OldestQueued()
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}

	running, err := job.Transition(domain.JobStatusRunning, "")
	if err == nil {
		err = s.queue.Replace(ctx, running)
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to admit scan job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	task := Task{JobID: running.ID, URL: running.URL, FireAt: s.clock.Now().Add(s.scanDuration)}
	s.pending = &task
	s.publish(ctx, running)
	s.mu.Unlock()

	s.logger.Info("Scan job admitted",
		slog.String("job_id", running.ID),
		slog.Time("fire_at", task.FireAt),
	)
	return &task, nil
}

// FireDue runs the pending completion task if its firing time has passed.
// Synthesis errors end the job as failed; only a queue write failure is
// returned, in which case the task stays pending and is retried. A canceled
// ctx leaves the task pending for the next process to resume.
func (s *Scheduler) FireDue(ctx context.Context) (bool, error) {
	s.mu.Lock()

	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("completion interrupted: %w", err)
	}

	task := s.pending
	if task == nil || s.clock.Now().Before(task.FireAt) {
		s.mu.Unlock()
		return false, nil
	}

	job, ok := s.queue.Find(task.JobID)
	if !ok || job.Status != domain.JobStatusRunning {
		s.pending = nil
		s.mu.Unlock()
		s.logger.Warn("Dropping completion task for job that is not running",
			slog.String("job_id", task.JobID),
		)
		return false, nil
	}

	if task.result == nil && task.cause == nil {
		result, err := s.synthesize(ctx, task.URL)
		if err == nil {
			err = s.results.Put(ctx, result)
		}
		if err != nil {
			task.cause = err
		} else {
			task.result = &result
		}
	}

	var next domain.ScanJob
	if task.result != nil {
		next, _ = job.Transition(domain.JobStatusCompleted, task.result.ID)
	} else {
		next, _ = job.Transition(domain.JobStatusFailed, "")
	}

	if err := s.queue.Replace(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to record scan completion, will retry",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	s.pending = nil
	s.publish(ctx, next)
	s.mu.Unlock()

	if next.Status == domain.JobStatusFailed {
		s.logger.Error("Scan job failed",
			slog.String("job_id", next.ID),
			slog.String("error", task.cause.Error()),
		)
	} else {
		s.logger.Info("Scan job completed",
			slog.String("job_id", next.ID),
			slog.String("result_id", next.ResultID),
		)
	}
	return true, nil
}

// synthesize converts panics into synthesis failures
func (s *Scheduler) synthesize(ctx context.Context, target string) (result domain.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrSynthesisFailure, r)
		}
	}()
	return s.synthesizer.Synthesize(ctx, target)
}

// publish must be called with s.mu held
func (s *Scheduler) publish(ctx context.Context, job domain.ScanJob) {
	if err := s.publisher.Publish(ctx, events.ForJob(job, s.clock.Now())); err != nil {
		s.logger.Warn("Failed to publish scan event",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.String("error", err.Error()),
		)
	}
}
