package report

import (
	"time"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

// Document is the serialized form of a finished run. It mirrors the aggregate
// field for field so report.json can be read back without the domain layer.
// Credentials never appear here; LoginConfig excludes them from every
// serialization.
type Document struct {
	RunID       string                  `json:"run_id"`
	Target      audit.Target            `json:"target"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	Status      audit.RunStatus         `json:"status"`
	Crawl       *audit.CrawlResult      `json:"crawl,omitempty"`
	Scans       []audit.ScanResult      `json:"scans"`
	AuthChecks  []audit.AuthCheckResult `json:"auth_checks,omitempty"`
	Summary     Summary                 `json:"summary"`
}

// Summary carries the aggregate counts shown in report headers and the CLI
// run preview.
type Summary struct {
	PagesDiscovered    int                    `json:"pages_discovered"`
	PagesSkipped       int                    `json:"pages_skipped"`
	ScansOK            int                    `json:"scans_ok"`
	ScansSkipped       int                    `json:"scans_skipped"`
	ScansErrored       int                    `json:"scans_errored"`
	TotalFindings      int                    `json:"total_findings"`
	FindingsBySeverity map[audit.Severity]int `json:"findings_by_severity,omitempty"`
}

// FromRun converts a finalized run into its persisted document form.
func FromRun(run *audit.Run) *Document {
	doc := &Document{
		RunID:       run.ID(),
		Target:      run.Target(),
		StartedAt:   run.StartedAt(),
		CompletedAt: run.CompletedAt(),
		Status:      run.Status(),
		Crawl:       run.Crawl(),
		Scans:       run.Scans(),
		AuthChecks:  run.AuthChecks(),
	}
	doc.Summary = summarize(doc)
	return doc
}

func summarize(doc *Document) Summary {
	s := Summary{FindingsBySeverity: make(map[audit.Severity]int)}
	if doc.Crawl != nil {
		s.PagesDiscovered = len(doc.Crawl.URLs)
		s.PagesSkipped = len(doc.Crawl.Skipped)
	}
	for _, scan := range doc.Scans {
		switch {
		case scan.Status.IsOK():
			s.ScansOK++
		case scan.Status.IsSkipped():
			s.ScansSkipped++
		case scan.Status.IsError():
			s.ScansErrored++
		}
		for _, finding := range scan.Findings {
			s.TotalFindings++
			s.FindingsBySeverity[finding.Severity]++
		}
	}
	if len(s.FindingsBySeverity) == 0 {
		s.FindingsBySeverity = nil
	}
	return s
}

// ToRun rebuilds a frozen domain aggregate from a loaded document, for
// callers that want the aggregate API over raw DTO fields.
func (d *Document) ToRun() *audit.Run {
	return audit.Reconstruct(d.RunID, d.Target, d.StartedAt, d.CompletedAt,
		d.Status, d.Crawl, d.Scans, d.AuthChecks, "")
}
