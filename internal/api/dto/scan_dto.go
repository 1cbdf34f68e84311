package dto

import (
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/report"
)

type SubmitScanRequest struct {
	URL           string `json:"url"`
	Consent       bool   `json:"consent"`
	TermsAccepted bool   `json:"terms_accepted"`
	SimulationAck bool   `json:"simulation_ack"`
}

type SubmitScanResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type ListScansRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ScanJobDTO struct {
	JobID     string           `json:"job_id"`
	URL       string           `json:"url"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt string           `json:"created_at"`
	ResultID  string           `json:"result_id,omitempty"`
}

type ListScansResponse struct {
	Jobs       []ScanJobDTO `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type BucketDTO struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

type FindingDTO struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	OWASP string `json:"owasp"`
	Risk  int    `json:"risk"`
	Fix   string `json:"fix"`
}

type ReportResponse struct {
	ResultID        string       `json:"result_id"`
	URL             string       `json:"url"`
	CompletedAt     string       `json:"completed_at"`
	Heatmap         []BucketDTO  `json:"heatmap"`
	Findings        []FindingDTO `json:"findings"`
	Recommendations []string     `json:"recommendations"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToScanJobDTO maps a queue entry onto its wire shape
func ToScanJobDTO(job domain.ScanJob) ScanJobDTO {
	return ScanJobDTO{
		JobID:     job.ID,
		URL:       job.URL,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		ResultID:  job.ResultID,
	}
}

// ToReportResponse maps a projected report onto its wire shape
func ToReportResponse(r report.Report) ReportResponse {
	heatmap := make([]BucketDTO, len(r.Heatmap))
	for i, b := range r.Heatmap {
		heatmap[i] = BucketDTO{Level: b.Level, Count: b.Count}
	}

	findings := make([]FindingDTO, len(r.Findings))
	for i, f := range r.Findings {
		findings[i] = FindingDTO{ID: f.ID, Title: f.Title, OWASP: f.OWASP, Risk: f.Risk, Fix: f.Fix}
	}

	return ReportResponse{
		ResultID:        r.ResultID,
		URL:             r.URL,
		CompletedAt:     r.CompletedAt.Format(time.RFC3339),
		Heatmap:         heatmap,
		Findings:        findings,
		Recommendations: append([]string(nil), r.Recommendations...),
	}
}
