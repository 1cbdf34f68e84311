package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Run drives admission on a fixed tick until ctx is canceled. Each admitted
// job gets its own completion timer so the tick keeps running while a scan
// is in flight. Run waits for outstanding completion goroutines before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting scan scheduler",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Duration("scan_duration", s.scanDuration),
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	defer s.wg.Wait()

	if task, ok := s.Pending(); ok {
		s.arm(ctx, task)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scan scheduler stopping - context canceled")
			return nil

		case <-ticker.C:
			task, err := s.Tick(ctx)
			if err != nil {
				// Admission is retried on the next tick.
				continue
			}
			if task != nil {
				s.arm(ctx, *task)
			}
		}
	}
}

// arm schedules FireDue for task's firing time, retrying every tick
// interval while the completion cannot be recorded.
func (s *Scheduler) arm(ctx context.Context, task Task) {
	delay := task.FireAt.Sub(s.clock.Now())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Completion timer canceled",
					slog.String("job_id", task.JobID),
				)
				return
			case <-timer.C:
			}

			fired, err := s.FireDue(ctx)
			if err == nil && (fired || !s.isPending(task.JobID)) {
				return
			}
			timer.Reset(s.tickInterval)
		}
	}()
}

func (s *Scheduler) isPending(jobID string) bool {
	task, ok := s.Pending()
	return ok && task.JobID == jobID
}
