package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	workerdomain "github.com/cuongbtq/sensei-scan/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop processes events until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for msg := range w.jobsChan {
		err := w.processEvent(ctx, msg)

		if err != nil {
			requeue := w.shouldRequeue(err, msg.Delivery.Redelivered)

			w.logger.Error("Archiving failed",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.Event.JobID),
				slog.String("error", err.Error()),
				slog.Bool("requeue", requeue),
			)

			if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
				w.logger.Error("Failed to NACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Event.JobID),
					slog.String("error", nackErr.Error()),
				)
			}
			continue
		}

		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.Event.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
	}

	w.logger.Info("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// shouldRequeue requeues transient failures once; a second failure is dropped
func (w *Worker) shouldRequeue(err error, redelivered bool) bool {
	if errors.Is(err, workerdomain.ErrInvalidEvent) || errors.Is(err, workerdomain.ErrResultGone) {
		return false
	}

	var retryableErr *workerdomain.RetryableError
	if errors.As(err, &retryableErr) {
		return !redelivered
	}

	return false
}
