package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/report"
)

// JobScheduler is the part of the scheduler the HTTP layer drives
type JobScheduler interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (domain.ScanJob, error)
	List() []domain.ScanJob
	Get(id string) (domain.ScanJob, error)
	Counts() map[domain.JobStatus]int
}

// ReportProjector builds reports from stored results
type ReportProjector interface {
	Report(ctx context.Context, resultID string) (report.Report, error)
}

// Pinger reports persistent store reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Broker reports whether the event broker connection is up
type Broker interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers.
// Broker is nil when event publishing is disabled.
type Dependencies struct {
	Logger    *slog.Logger
	Scheduler JobScheduler
	Reports   ReportProjector
	Store     Pinger
	Broker    Broker
	Service   string
}

// ScanHandler handles scan submission, queue and report requests
type ScanHandler struct {
	logger    *slog.Logger
	scheduler JobScheduler
	reports   ReportProjector
}

// NewScanHandler creates a new ScanHandler instance
func NewScanHandler(deps *Dependencies) *ScanHandler {
	return &ScanHandler{
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		reports:   deps.Reports,
	}
}
