package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

const lighthouseBinary = "lighthouse"

// lighthouseCategories maps report category keys to finding keys, in report
// order.
var lighthouseCategories = []struct{ key, name string }{
	{"performance", "category:performance"},
	{"accessibility", "category:accessibility"},
	{"best-practices", "category:best-practices"},
	{"seo", "category:seo"},
}

// lighthouseMetrics maps audit keys to the metric names used in findings.
var lighthouseMetrics = []struct{ key, name string }{
	{"first-contentful-paint", "metric:FCP"},
	{"largest-contentful-paint", "metric:LCP"},
	{"interactive", "metric:TTI"},
	{"total-blocking-time", "metric:TBT"},
	{"cumulative-layout-shift", "metric:CLS"},
}

type lighthouseReport struct {
	Categories map[string]struct {
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits map[string]struct {
		NumericValue *float64 `json:"numericValue"`
		DisplayValue string   `json:"displayValue"`
	} `json:"audits"`
}

// LighthouseScanner shells out to the lighthouse CLI for performance and
// quality scoring. Malformed output is treated as a full error, never
// partially parsed.
type LighthouseScanner struct {
	Timeout time.Duration
}

func NewLighthouseScanner(timeout time.Duration) *LighthouseScanner {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LighthouseScanner{Timeout: timeout}
}

func (s *LighthouseScanner) Name() string    { return "lighthouse" }
func (s *LighthouseScanner) Scope() Scope    { return ScopeOrigin }
func (s *LighthouseScanner) Available() bool { return toolAvailable(lighthouseBinary) }

func (s *LighthouseScanner) Scan(ctx context.Context, target string) audit.ScanResult {
	result := audit.ScanResult{
		Scanner: s.Name(),
		Target:  target,
	}

	output, err := runTool(ctx, s.Timeout, lighthouseBinary, target,
		"--quiet",
		"--chrome-flags=--headless",
		"--output=json",
		"--output-path=stdout",
	)
	if err != nil {
		result.Status = audit.Errored(toolErrorReason(err))
		return result
	}

	var report lighthouseReport
	if err := json.Unmarshal(output, &report); err != nil {
		result.Status = audit.Errored("unparsable-output")
		return result
	}
	if len(report.Categories) == 0 {
		result.Status = audit.Errored("unparsable-output")
		return result
	}

	findings := make(map[string]audit.Finding)
	for _, cat := range lighthouseCategories {
		entry, ok := report.Categories[cat.key]
		if !ok || entry.Score == nil {
			continue
		}
		findings[cat.name] = audit.Finding{
			Severity: scoreSeverity(*entry.Score),
			Detail:   fmt.Sprintf("score %.2f", *entry.Score),
		}
	}
	for _, metric := range lighthouseMetrics {
		entry, ok := report.Audits[metric.key]
		if !ok || entry.NumericValue == nil {
			continue
		}
		detail := entry.DisplayValue
		if detail == "" {
			detail = fmt.Sprintf("%.0f ms", *entry.NumericValue)
		}
		findings[metric.name] = audit.Finding{
			Severity: audit.SeverityInfo,
			Detail:   detail,
		}
	}

	result.Status = audit.StatusOK
	result.Findings = findings
	return result
}

// scoreSeverity grades a 0..1 category score: below 0.5 is a high-severity
// finding, below 0.9 medium, otherwise informational.
func scoreSeverity(score float64) audit.Severity {
	switch {
	case score < 0.5:
		return audit.SeverityHigh
	case score < 0.9:
		return audit.SeverityMedium
	default:
		return audit.SeverityInfo
	}
}
