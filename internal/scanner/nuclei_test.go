package scanner

import (
	"testing"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

func TestParseNucleiOutput(t *testing.T) {
	raw := []byte(`{"template-id":"tech-detect","info":{"name":"Technology Detection","severity":"info"},"matched-at":"https://example.test"}
{"template-id":"exposed-panel","info":{"name":"Admin Panel Exposed","severity":"high"},"matched-at":"https://example.test/admin"}

{"template-id":"exposed-panel","info":{"name":"Admin Panel Exposed","severity":"high"},"matched-at":"https://example.test/manage"}
`)

	findings, err := parseNucleiOutput(raw)
	if err != nil {
		t.Fatalf("parseNucleiOutput: %v", err)
	}
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3: %v", len(findings), findings)
	}

	tech, ok := findings["tech-detect"]
	if !ok {
		t.Fatal("missing tech-detect finding")
	}
	if tech.Severity != audit.SeverityInfo {
		t.Errorf("tech-detect severity = %s, want info", tech.Severity)
	}

	if _, ok := findings["exposed-panel"]; !ok {
		t.Error("missing exposed-panel finding")
	}
	dup, ok := findings["exposed-panel#2"]
	if !ok {
		t.Fatal("second match of the same template should get a #2 suffix")
	}
	if dup.Severity != audit.SeverityHigh {
		t.Errorf("duplicate severity = %s, want high", dup.Severity)
	}
}

func TestParseNucleiOutputEmpty(t *testing.T) {
	findings, err := parseNucleiOutput(nil)
	if err != nil {
		t.Fatalf("parseNucleiOutput: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("findings = %v, want none", findings)
	}
}

func TestParseNucleiOutputMalformedLineFailsWhole(t *testing.T) {
	raw := []byte(`{"template-id":"ok-one","info":{"name":"x","severity":"low"}}
this is not json
`)
	if _, err := parseNucleiOutput(raw); err == nil {
		t.Fatal("expected an error for a malformed line; partial results must not be reported")
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want audit.Severity
	}{
		{"critical", audit.SeverityCritical},
		{"HIGH", audit.SeverityHigh},
		{"Medium", audit.SeverityMedium},
		{"low", audit.SeverityLow},
		{"info", audit.SeverityInfo},
		{"unknown", audit.SeverityInfo},
		{"", audit.SeverityInfo},
	}
	for _, tt := range tests {
		if got := normalizeSeverity(tt.in); got != tt.want {
			t.Errorf("normalizeSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
