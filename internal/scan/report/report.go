package report

import (
	"context"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
)

// Bucket is the number of findings at one risk level
type Bucket struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

// Report is the read-only projection of a stored scan result
type Report struct {
	ResultID        string           `json:"result_id"`
	URL             string           `json:"url"`
	CompletedAt     time.Time        `json:"completed_at"`
	Heatmap         []Bucket         `json:"heatmap"`
	Findings        []domain.Finding `json:"findings"`
	Recommendations []string         `json:"recommendations"`
}

// Recommendations accompany every report
var Recommendations = []string{
	"Prioritize high-risk items first; verify fixes in a replayable simulation before production.",
	"Add unit tests for each remediation: header presence, encoder usage, and CORS policy checks.",
	"Enable Content Security Policy with nonce-based scripts and strict-dynamic for modern frameworks.",
}

// ResultGetter looks up stored results
type ResultGetter interface {
	Get(ctx context.Context, id string) (domain.ScanResult, error)
}

// Projector renders reports for stored results
type Projector struct {
	results ResultGetter
}

// NewProjector creates a projector over the given results source
func NewProjector(results ResultGetter) *Projector {
	return &Projector{results: results}
}

// Report returns the projection for resultID.
// An unknown or deleted id yields domain.ErrResultNotFound.
func (p *Projector) Report(ctx context.Context, resultID string) (Report, error) {
	result, err := p.results.Get(ctx, resultID)
	if err != nil {
		return Report{}, err
	}
	return Project(result), nil
}

// Project derives the report from a result without touching any store
func Project(result domain.ScanResult) Report {
	findings := make([]domain.Finding, len(result.Findings))
	copy(findings, result.Findings)

	recs := make([]string, len(Recommendations))
	copy(recs, Recommendations)

	return Report{
		ResultID:        result.ID,
		URL:             result.URL,
		CompletedAt:     result.CompletedAt,
		Heatmap:         Heatmap(result.Findings),
		Findings:        findings,
		Recommendations: recs,
	}
}

// Heatmap counts findings per risk level, always returning all five levels.
// Findings outside the risk range are not counted.
func Heatmap(findings []domain.Finding) []Bucket {
	buckets := make([]Bucket, domain.MaxRisk-domain.MinRisk+1)
	for i := range buckets {
		buckets[i].Level = domain.MinRisk + i
	}
	for _, f := range findings {
		if f.Risk < domain.MinRisk || f.Risk > domain.MaxRisk {
			continue
		}
		buckets[f.Risk-domain.MinRisk].Count++
	}
	return buckets
}
