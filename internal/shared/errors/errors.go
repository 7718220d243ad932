package errors

import "errors"

// Audit engine errors
var (
	// Crawl errors
	ErrSeedUnreachable = errors.New("seed URL unreachable")
	ErrInvalidTarget   = errors.New("invalid target URL")

	// External tool errors
	ErrToolUnavailable = errors.New("backing tool not installed")
	ErrToolExecution   = errors.New("tool execution failed")
	ErrToolTimeout     = errors.New("tool execution timed out")
	ErrToolOutput      = errors.New("tool produced unparsable output")

	// Run lifecycle errors
	ErrRunFrozen       = errors.New("audit run is frozen")
	ErrInvalidRunPhase = errors.New("invalid audit run phase transition")
	ErrRunNotFinalized = errors.New("audit run not finalized")

	// Report errors
	ErrReportWrite    = errors.New("failed to write report")
	ErrReportNotFound = errors.New("report not found")

	// Auth flow errors
	ErrLoginConfigIncomplete = errors.New("login configuration incomplete")
)
