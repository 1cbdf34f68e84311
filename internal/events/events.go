// Package events carries scan lifecycle notifications out of the scheduler.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
)

// Type names a lifecycle transition
type Type string

const (
	TypeQueued    Type = "scan.queued"
	TypeRunning   Type = "scan.running"
	TypeCompleted Type = "scan.completed"
	TypeFailed    Type = "scan.failed"
)

// ContentType of encoded events
const ContentType = "application/json"

// Event is emitted after a job transition has been persisted
type Event struct {
	Type       Type             `json:"type"`
	JobID      string           `json:"job_id"`
	URL        string           `json:"url"`
	Status     domain.JobStatus `json:"status"`
	ResultID   string           `json:"result_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ForJob builds the event describing job's current status
func ForJob(job domain.ScanJob, at time.Time) Event {
	var t Type
	switch job.Status {
	case domain.JobStatusQueued:
		t = TypeQueued
	case domain.JobStatusRunning:
		t = TypeRunning
	case domain.JobStatusCompleted:
		t = TypeCompleted
	case domain.JobStatusFailed:
		t = TypeFailed
	}
	return Event{
		Type:       t,
		JobID:      job.ID,
		URL:        job.URL,
		Status:     job.Status,
		ResultID:   job.ResultID,
		OccurredAt: at.UTC(),
	}
}

// Encode serializes an event for the wire
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return body, nil
}

// Decode parses a wire event
func Decode(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Type == "" || e.JobID == "" {
		return Event{}, fmt.Errorf("failed to decode event: missing type or job_id")
	}
	return e, nil
}

// Publisher delivers events to interested parties
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to a logger; used when no broker is configured
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.Debug("Scan event",
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
		slog.String("result_id", e.ResultID),
	)
	return nil
}
