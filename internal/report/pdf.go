package report

import (
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// ExportPDF renders a loaded report document to a PDF file.
func ExportPDF(doc *Document, path string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Website Audit Report "+doc.RunID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Website Audit Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	metaRow(pdf, "Run", doc.RunID)
	metaRow(pdf, "Target", doc.Target.Origin)
	metaRow(pdf, "Started", doc.StartedAt.Format("2006-01-02 15:04:05 MST"))
	metaRow(pdf, "Completed", doc.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	metaRow(pdf, "Status", string(doc.Status))
	pdf.Ln(6)

	sectionTitle(pdf, "Summary")
	metaRow(pdf, "Pages discovered", fmt.Sprintf("%d", doc.Summary.PagesDiscovered))
	metaRow(pdf, "Pages skipped", fmt.Sprintf("%d", doc.Summary.PagesSkipped))
	metaRow(pdf, "Scans ok/skipped/errored", fmt.Sprintf("%d / %d / %d",
		doc.Summary.ScansOK, doc.Summary.ScansSkipped, doc.Summary.ScansErrored))
	metaRow(pdf, "Total findings", fmt.Sprintf("%d", doc.Summary.TotalFindings))
	for _, severity := range severityOrder {
		if count, ok := doc.Summary.FindingsBySeverity[severity]; ok {
			metaRow(pdf, "  "+string(severity), fmt.Sprintf("%d", count))
		}
	}
	pdf.Ln(6)

	if doc.Crawl != nil {
		sectionTitle(pdf, fmt.Sprintf("Discovered Surface (%d pages)", len(doc.Crawl.URLs)))
		pdf.SetFont("Courier", "", 9)
		for _, u := range doc.Crawl.URLs {
			pdf.MultiCell(0, 5, u, "", "L", false)
		}
		pdf.Ln(4)
	}

	sectionTitle(pdf, "Scan Results")
	for _, scan := range doc.Scans {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, fmt.Sprintf("%s - %s", scan.Scanner, scan.Target), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, "Status: "+string(scan.Status), "", "L", false)
		for _, key := range sortedFindingKeys(scan.Findings) {
			f := scan.Findings[key]
			pdf.MultiCell(0, 5, fmt.Sprintf("  [%s] %s: %s", f.Severity, key, f.Detail), "", "L", false)
		}
		pdf.Ln(3)
	}

	if len(doc.AuthChecks) > 0 {
		sectionTitle(pdf, "Authenticated Flow Checks (advisory)")
		pdf.SetFont("Helvetica", "", 10)
		for _, check := range doc.AuthChecks {
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s: %s", check.Outcome, check.Name, check.Evidence), "", "L", false)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrReportWrite, err)
	}
	return nil
}

var severityOrder = []audit.Severity{
	audit.SeverityCritical,
	audit.SeverityHigh,
	audit.SeverityMedium,
	audit.SeverityLow,
	audit.SeverityInfo,
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
}

func metaRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(55, 6, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, value, "", "L", false)
}

func sortedFindingKeys(findings map[string]audit.Finding) []string {
	keys := make([]string, 0, len(findings))
	for key := range findings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
