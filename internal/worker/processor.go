package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/sensei-scan/internal/events"
	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/report"
	workerdomain "github.com/cuongbtq/sensei-scan/internal/worker/domain"
)

// processEvent archives the report for a completed scan; other events are skipped
func (w *Worker) processEvent(ctx context.Context, msg *workerdomain.EventMessage) error {
	event := msg.Event
	if event.Type != events.TypeCompleted {
		w.logger.Debug("Skipping event",
			slog.String("type", string(event.Type)),
			slog.String("job_id", event.JobID),
		)
		return nil
	}
	if event.ResultID == "" {
		return fmt.Errorf("%w: completed job %s has no result id", workerdomain.ErrInvalidEvent, event.JobID)
	}

	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.results.Get(ctx, event.ResultID)
	if errors.Is(err, domain.ErrResultNotFound) {
		return fmt.Errorf("%w: %s", workerdomain.ErrResultGone, event.ResultID)
	}
	if err != nil {
		return workerdomain.NewRetryableError(fmt.Errorf("load result %s: %w", event.ResultID, err))
	}

	body, err := json.Marshal(report.Project(result))
	if err != nil {
		return fmt.Errorf("encode report %s: %w", result.ID, err)
	}

	key := w.keyPrefix + result.ID + ".json"
	if err := w.archive.PutObject(ctx, key, body, workerdomain.ReportContentType); err != nil {
		return workerdomain.NewRetryableError(err)
	}

	w.logger.Info("Report archived",
		slog.String("job_id", event.JobID),
		slog.String("result_id", result.ID),
		slog.String("key", key),
	)
	return nil
}
