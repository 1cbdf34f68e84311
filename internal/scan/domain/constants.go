package domain

// JobStatus is the lifecycle state of a ScanJob
type JobStatus string

// Job status constants
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Risk bounds for findings
const (
	MinRisk = 0
	MaxRisk = 4
)

// Persisted collection keys
const (
	QueueKey   = "sensei.scanQueue"
	ResultsKey = "sensei.scans"
)

// IsTerminal reports whether no further transition is allowed from s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward step
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}
