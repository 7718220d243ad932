package cmd

import (
	"strings"

	"github.com/fatih/color"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatRunStatus(status string) string {
	switch strings.ToLower(status) {
	case "complete":
		return colorSuccess(status)
	case "partial":
		return colorWarn(status)
	case "failed":
		return colorError(status)
	default:
		return status
	}
}

func formatSeverity(severity audit.Severity) string {
	switch severity {
	case audit.SeverityCritical, audit.SeverityHigh:
		return colorError(string(severity))
	case audit.SeverityMedium:
		return colorWarn(string(severity))
	case audit.SeverityLow:
		return colorInfo(string(severity))
	default:
		return string(severity)
	}
}

func formatAuthOutcome(outcome audit.AuthOutcome) string {
	switch outcome {
	case audit.AuthPass:
		return colorSuccess(string(outcome))
	case audit.AuthFail:
		return colorError(string(outcome))
	default:
		return colorWarn(string(outcome))
	}
}

func formatScanStatus(status audit.ScanStatus) string {
	switch {
	case status.IsOK():
		return colorSuccess(string(status))
	case status.IsSkipped():
		return colorWarn(string(status))
	default:
		return colorError(string(status))
	}
}
