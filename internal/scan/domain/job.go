package domain

import (
	"fmt"
	"net/url"
	"time"
)

// ScanJob is one queued request to run a simulated scan against a URL
type ScanJob struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	Status    JobStatus `json:"status"`
	ResultID  string    `json:"resultId,omitempty"`
}

// Finding is one reported weakness with a risk level and remediation guidance
type Finding struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	OWASP string `json:"owasp"`
	Risk  int    `json:"risk"`
	Fix   string `json:"fix"`
}

// ScanResult is the immutable output of a synthesized scan
type ScanResult struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	CompletedAt time.Time `json:"completedAt"`
	Findings    []Finding `json:"findings"`
}

// SubmitRequest carries the target and the three attestations a caller must give
type SubmitRequest struct {
	URL           string
	Consent       bool
	TermsAccepted bool
	SimulationAck bool
}

// Validate checks the target URL first, then the attestations.
// It never mutates anything.
func (r SubmitRequest) Validate() error {
	if err := ValidateTargetURL(r.URL); err != nil {
		return err
	}
	if !r.Consent || !r.TermsAccepted || !r.SimulationAck {
		return ErrConsentRequired
	}
	return nil
}

// ValidateTargetURL accepts only absolute URLs with an http or https scheme and a host
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute url", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

// Validate checks the job record invariants: known status and
// result reference present exactly when completed.
func (j ScanJob) Validate() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if (j.Status == JobStatusCompleted) != (j.ResultID != "") {
		return fmt.Errorf("job %s: result reference inconsistent with status %q", j.ID, j.Status)
	}
	return nil
}

// Transition returns a copy of j moved to next, or ErrInvalidTransition
func (j ScanJob) Transition(next JobStatus, resultID string) (ScanJob, error) {
	if !j.Status.CanTransition(next) {
		return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	if next == JobStatusCompleted && resultID == "" {
		return j, fmt.Errorf("%w: completed job %s needs a result id", ErrInvalidTransition, j.ID)
	}
	j.Status = next
	if next == JobStatusCompleted {
		j.ResultID = resultID
	} else {
		j.ResultID = ""
	}
	return j, nil
}
