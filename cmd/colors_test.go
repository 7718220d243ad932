package cmd

import (
	"strings"
	"testing"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

func TestFormatRunStatusKeepsText(t *testing.T) {
	for _, status := range []string{"complete", "partial", "failed", "pending"} {
		if got := formatRunStatus(status); !strings.Contains(got, status) {
			t.Errorf("formatRunStatus(%q) = %q, status text lost", status, got)
		}
	}
}

func TestFormatScanStatusKeepsText(t *testing.T) {
	statuses := []audit.ScanStatus{
		audit.StatusOK,
		audit.Skipped(audit.ReasonToolNotInstalled),
		audit.Errored("timeout"),
	}
	for _, status := range statuses {
		if got := formatScanStatus(status); !strings.Contains(got, string(status)) {
			t.Errorf("formatScanStatus(%q) = %q, status text lost", status, got)
		}
	}
}

func TestFormatAuthOutcomeKeepsText(t *testing.T) {
	for _, outcome := range []audit.AuthOutcome{audit.AuthPass, audit.AuthFail, audit.AuthInconclusive} {
		if got := formatAuthOutcome(outcome); !strings.Contains(got, string(outcome)) {
			t.Errorf("formatAuthOutcome(%q) = %q, outcome text lost", outcome, got)
		}
	}
}
