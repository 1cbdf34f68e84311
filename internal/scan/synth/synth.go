// Package synth produces simulated scan results. It never contacts the
// target: the findings come from a fixed catalogue of weakness classes.
package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/google/uuid"
)

// Synthesizer turns an admitted job's target into a scan result
type Synthesizer interface {
	Synthesize(ctx context.Context, target string) (domain.ScanResult, error)
}

// Template describes one catalogue entry
type Template struct {
	Title string
	OWASP string
	Risk  int
	Fix   string
}

// DefaultCatalogue lists the simulated findings in display order
var DefaultCatalogue = []Template{
	{
		Title: "XSS: Unescaped user input",
		OWASP: "A03:2021-Injection",
		Risk:  4,
		Fix:   "Encode output, adopt CSP 'strict-dynamic', use trusted templating.",
	},
	{
		Title: "Missing Security Headers",
		OWASP: "A05:2021-Security Misconfiguration",
		Risk:  3,
		Fix:   "Add HSTS, X-Content-Type-Options, Frame-Options/COOP/COEP, CSP.",
	},
	{
		Title: "Permissive CORS",
		OWASP: "A05:2021-Security Misconfiguration",
		Risk:  3,
		Fix:   "Restrict origins, drop credentials for '*', validate preflight.",
	},
}

// Catalogue synthesizes results from a fixed list of templates
type Catalogue struct {
	templates []Template
	now       func() time.Time
	newID     func() string
}

// Option configures a Catalogue
type Option func(*Catalogue)

// WithClock overrides the completion timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Catalogue) { c.now = now }
}

// WithIDGenerator overrides result and finding id generation
func WithIDGenerator(newID func() string) Option {
	return func(c *Catalogue) { c.newID = newID }
}

// WithTemplates replaces the default catalogue
func WithTemplates(templates []Template) Option {
	return func(c *Catalogue) { c.templates = templates }
}

// NewCatalogue creates a synthesizer over DefaultCatalogue unless overridden
func NewCatalogue(opts ...Option) *Catalogue {
	c := &Catalogue{
		templates: DefaultCatalogue,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize builds a fresh result for target. Only the id and timestamp vary.
func (c *Catalogue) Synthesize(ctx context.Context, target string) (domain.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ScanResult{}, fmt.Errorf("%w: %v", domain.ErrSynthesisFailure, err)
	}
	if err := domain.ValidateTargetURL(target); err != nil {
		return domain.ScanResult{}, fmt.Errorf("%w: %v", domain.ErrSynthesisFailure, err)
	}
	if len(c.templates) == 0 {
		return domain.ScanResult{}, fmt.Errorf("%w: empty finding catalogue", domain.ErrSynthesisFailure)
	}

	id := c.newID()
	findings := make([]domain.Finding, 0, len(c.templates))
	for _, t := range c.templates {
		if t.Risk < domain.MinRisk || t.Risk > domain.MaxRisk {
			return domain.ScanResult{}, fmt.Errorf("%w: template %q has risk %d outside [%d,%d]",
				domain.ErrSynthesisFailure, t.Title, t.Risk, domain.MinRisk, domain.MaxRisk)
		}
		findings = append(findings, domain.Finding{
			ID:    c.newID(),
			Title: t.Title,
			OWASP: t.OWASP,
			Risk:  t.Risk,
			Fix:   t.Fix,
		})
	}

	return domain.ScanResult{
		ID:          id,
		URL:         target,
		CompletedAt: c.now().UTC(),
		Findings:    findings,
	}, nil
}
