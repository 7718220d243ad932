package scanner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

const nucleiBinary = "nuclei"

type nucleiEvent struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	} `json:"info"`
	MatchedAt string `json:"matched-at"`
}

// NucleiScanner runs nuclei's template engine against the target and maps
// each reported match to a finding with the tool-reported severity.
type NucleiScanner struct {
	Timeout time.Duration
	// Templates optionally narrows the run to a template path or directory;
	// empty means the tool's default set.
	Templates string
}

func NewNucleiScanner(timeout time.Duration, templates string) *NucleiScanner {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &NucleiScanner{Timeout: timeout, Templates: templates}
}

func (s *NucleiScanner) Name() string    { return "nuclei" }
func (s *NucleiScanner) Scope() Scope    { return ScopeOrigin }
func (s *NucleiScanner) Available() bool { return toolAvailable(nucleiBinary) }

func (s *NucleiScanner) Scan(ctx context.Context, target string) audit.ScanResult {
	result := audit.ScanResult{
		Scanner: s.Name(),
		Target:  target,
	}

	args := []string{"-u", target, "-silent", "-jsonl"}
	if s.Templates != "" {
		args = append(args, "-t", s.Templates)
	}

	output, err := runTool(ctx, s.Timeout, nucleiBinary, args...)
	if err != nil {
		result.Status = audit.Errored(toolErrorReason(err))
		return result
	}

	findings, err := parseNucleiOutput(output)
	if err != nil {
		result.Status = audit.Errored("unparsable-output")
		return result
	}

	result.Status = audit.StatusOK
	result.Findings = findings
	return result
}

// parseNucleiOutput decodes JSONL events. One unparsable line fails the whole
// scan; partial results are never reported.
func parseNucleiOutput(output []byte) (map[string]audit.Finding, error) {
	findings := make(map[string]audit.Finding)

	lineScanner := bufio.NewScanner(bytes.NewReader(output))
	lineScanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineScanner.Scan() {
		line := strings.TrimSpace(lineScanner.Text())
		if line == "" {
			continue
		}

		var ev nucleiEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		if ev.TemplateID == "" {
			continue
		}

		key := ev.TemplateID
		for n := 2; ; n++ {
			if _, exists := findings[key]; !exists {
				break
			}
			// Same template matching multiple locations.
			key = fmt.Sprintf("%s#%d", ev.TemplateID, n)
		}

		detail := ev.Info.Name
		if ev.MatchedAt != "" {
			detail = fmt.Sprintf("%s (matched at %s)", detail, ev.MatchedAt)
		}
		findings[key] = audit.Finding{
			Severity: normalizeSeverity(ev.Info.Severity),
			Detail:   detail,
		}
	}
	if err := lineScanner.Err(); err != nil {
		return nil, err
	}

	return findings, nil
}

func normalizeSeverity(s string) audit.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return audit.SeverityCritical
	case "high":
		return audit.SeverityHigh
	case "medium":
		return audit.SeverityMedium
	case "low":
		return audit.SeverityLow
	default:
		return audit.SeverityInfo
	}
}
