package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/shared/kvstore"
)

// Queue is the ordered, append-only collection of scan jobs.
// It is not safe for concurrent use; the scheduler serializes access.
// Every mutation writes the whole collection and only then updates memory.
type Queue struct {
	store  kvstore.Store
	logger *slog.Logger
	jobs   []domain.ScanJob
}

// LoadQueue rehydrates the queue from the store
func LoadQueue(ctx context.Context, store kvstore.Store, logger *slog.Logger) (*Queue, error) {
	q := &Queue{store: store, logger: logger}

	raw, found, err := store.Get(ctx, domain.QueueKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load queue: %v", domain.ErrPersistence, err)
	}
	if !found {
		logger.Info("No persisted scan queue, starting empty")
		return q, nil
	}

	if err := json.Unmarshal(raw, &q.jobs); err != nil {
		return nil, fmt.Errorf("failed to decode scan queue: %w", err)
	}
	running := 0
	for _, job := range q.jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("persisted scan queue is inconsistent: %w", err)
		}
		if job.Status == domain.JobStatusRunning {
			running++
		}
	}
	if running > 1 {
		return nil, fmt.Errorf("persisted scan queue is inconsistent: %d jobs running", running)
	}

	logger.Info("Scan queue rehydrated",
		slog.Int("jobs", len(q.jobs)),
	)
	return q, nil
}

// Len returns the number of jobs ever submitted
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Jobs returns a copy of the queue in insertion order
func (q *Queue) Jobs() []domain.ScanJob {
	out := make([]domain.ScanJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Find returns the job with the given id
func (q *Queue) Find(id string) (domain.ScanJob, bool) {
	for _, job := range q.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return domain.ScanJob{}, false
}

// Running returns the job currently in flight, if any
func (q *Queue) Running() (domain.ScanJob, bool) {
	for _, job := range q.jobs {
		if job.Status == domain.JobStatusRunning {
			return job, true
		}
	}
	return domain.ScanJob{}, false
}

// OldestQueued returns the queued job with the earliest creation time.
// Ties keep insertion order.
func (q *Queue) OldestQueued() (domain.ScanJob, bool) {
	var (
		oldest domain.ScanJob
		found  bool
	)
	for _, job := range q.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if !found || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
			found = true
		}
	}
	return oldest, found
}

// Append adds job to the tail of the queue and persists it
func (q *Queue) Append(ctx context.Context, job domain.ScanJob) error {
	next := make([]domain.ScanJob, len(q.jobs), len(q.jobs)+1)
	copy(next, q.jobs)
	next = append(next, job)
	return q.commit(ctx, next)
}

// Replace swaps the stored record with the same id and persists the queue
func (q *Queue) Replace(ctx context.Context, job domain.ScanJob) error {
	next := q.Jobs()
	for i := range next {
		if next[i].ID == job.ID {
			next[i] = job
			return q.commit(ctx, next)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrJobNotFound, job.ID)
}

func (q *Queue) commit(ctx context.Context, next []domain.ScanJob) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode scan queue: %w", err)
	}
	if err := q.store.Set(ctx, domain.QueueKey, raw); err != nil {
		q.logger.Error("Failed to persist scan queue",
			slog.Int("jobs", len(next)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: save queue: %v", domain.ErrPersistence, err)
	}
	q.jobs = next
	return nil
}
