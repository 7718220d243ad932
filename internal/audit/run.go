package audit

import (
	"fmt"
	"time"

	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// Phase tracks the orchestration state machine of a run.
type Phase string

const (
	PhaseCreated      Phase = "created"
	PhaseCrawling     Phase = "crawling"
	PhaseScanning     Phase = "scanning"
	PhaseAuthChecking Phase = "auth_checking"
	PhaseAggregating  Phase = "aggregating"
	PhasePersisted    Phase = "persisted"
	PhaseFailed       Phase = "failed"
)

// RunStatus is the overall outcome surfaced to callers.
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// runIDFormat yields sortable identifiers that double as report directory names.
const runIDFormat = "20060102_150405"

// Run is the aggregate root for one audit execution. The orchestrator is its
// only writer; every other component receives it read-only. Once frozen,
// mutation attempts return ErrRunFrozen.
type Run struct {
	id          string
	target      Target
	startedAt   time.Time
	completedAt time.Time
	phase       Phase
	status      RunStatus
	crawl       *CrawlResult
	scans       []ScanResult
	authChecks  []AuthCheckResult
	failure     string
	frozen      bool
}

// NewRun creates a pending run for the target, keyed by its start timestamp.
func NewRun(target Target) *Run {
	now := time.Now().UTC()
	return &Run{
		id:        now.Format(runIDFormat),
		target:    target,
		startedAt: now,
		phase:     PhaseCreated,
		status:    RunStatusPending,
		scans:     make([]ScanResult, 0),
	}
}

// Reconstruct rebuilds a run from persisted data. Reconstructed runs are frozen.
func Reconstruct(id string, target Target, startedAt, completedAt time.Time,
	status RunStatus, crawl *CrawlResult, scans []ScanResult, authChecks []AuthCheckResult, failure string) *Run {
	phase := PhasePersisted
	if status == RunStatusFailed {
		phase = PhaseFailed
	}
	return &Run{
		id:          id,
		target:      target,
		startedAt:   startedAt,
		completedAt: completedAt,
		phase:       phase,
		status:      status,
		crawl:       crawl,
		scans:       scans,
		authChecks:  authChecks,
		failure:     failure,
		frozen:      true,
	}
}

// Business methods

// BeginCrawl transitions the run into the crawling phase.
func (r *Run) BeginCrawl() error {
	return r.transition(PhaseCreated, PhaseCrawling)
}

// SetCrawlResult records the discovered surface and enters the scanning phase.
func (r *Run) SetCrawlResult(cr *CrawlResult) error {
	if err := r.transition(PhaseCrawling, PhaseScanning); err != nil {
		return err
	}
	r.crawl = cr
	return nil
}

// AddScanResult appends one scanner outcome. Only valid while scanning.
func (r *Run) AddScanResult(res ScanResult) error {
	if r.frozen {
		return sharedErrors.ErrRunFrozen
	}
	if r.phase != PhaseScanning {
		return fmt.Errorf("%w: cannot add scan result in phase %s", sharedErrors.ErrInvalidRunPhase, r.phase)
	}
	r.scans = append(r.scans, res)
	return nil
}

// BeginAuthChecks transitions into the optional authenticated-flow phase.
func (r *Run) BeginAuthChecks() error {
	return r.transition(PhaseScanning, PhaseAuthChecking)
}

// SetAuthResults records the authenticated-flow battery outcomes.
func (r *Run) SetAuthResults(results []AuthCheckResult) error {
	if r.frozen {
		return sharedErrors.ErrRunFrozen
	}
	if r.phase != PhaseAuthChecking {
		return fmt.Errorf("%w: cannot set auth results in phase %s", sharedErrors.ErrInvalidRunPhase, r.phase)
	}
	r.authChecks = results
	return nil
}

// Finalize computes the overall status: complete when every scan reached
// ok/skipped, partial when any scan errored. Auth check outcomes never affect
// the overall status.
func (r *Run) Finalize() error {
	if r.frozen {
		return sharedErrors.ErrRunFrozen
	}
	if r.phase != PhaseScanning && r.phase != PhaseAuthChecking {
		return fmt.Errorf("%w: cannot finalize in phase %s", sharedErrors.ErrInvalidRunPhase, r.phase)
	}
	r.phase = PhaseAggregating
	r.status = RunStatusComplete
	for _, s := range r.scans {
		if s.Status.IsError() {
			r.status = RunStatusPartial
			break
		}
	}
	r.completedAt = time.Now().UTC()
	return nil
}

// Fail marks the run as failed with a reason. Valid from any non-terminal phase.
func (r *Run) Fail(reason string) error {
	if r.frozen {
		return sharedErrors.ErrRunFrozen
	}
	if r.phase == PhasePersisted {
		return fmt.Errorf("%w: cannot fail a persisted run", sharedErrors.ErrInvalidRunPhase)
	}
	r.phase = PhaseFailed
	r.status = RunStatusFailed
	r.failure = reason
	r.completedAt = time.Now().UTC()
	return nil
}

// Freeze seals the run before persistence. Idempotent.
func (r *Run) Freeze() error {
	if r.phase != PhaseAggregating && r.phase != PhaseFailed {
		return sharedErrors.ErrRunNotFinalized
	}
	r.frozen = true
	return nil
}

// MarkPersisted records the terminal persisted phase. The run must be frozen.
func (r *Run) MarkPersisted() error {
	if !r.frozen {
		return sharedErrors.ErrRunNotFinalized
	}
	if r.phase != PhaseAggregating {
		return fmt.Errorf("%w: cannot persist from phase %s", sharedErrors.ErrInvalidRunPhase, r.phase)
	}
	r.phase = PhasePersisted
	return nil
}

func (r *Run) transition(from, to Phase) error {
	if r.frozen {
		return sharedErrors.ErrRunFrozen
	}
	if r.phase != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", sharedErrors.ErrInvalidRunPhase, from, to, r.phase)
	}
	r.phase = to
	return nil
}

// Getters

func (r *Run) ID() string             { return r.id }
func (r *Run) Target() Target         { return r.target }
func (r *Run) StartedAt() time.Time   { return r.startedAt }
func (r *Run) CompletedAt() time.Time { return r.completedAt }
func (r *Run) Phase() Phase           { return r.phase }
func (r *Run) Status() RunStatus      { return r.status }
func (r *Run) Crawl() *CrawlResult    { return r.crawl }
func (r *Run) Failure() string        { return r.failure }
func (r *Run) Frozen() bool           { return r.frozen }

// Scans returns a copy to keep the aggregate single-writer.
func (r *Run) Scans() []ScanResult {
	out := make([]ScanResult, len(r.scans))
	copy(out, r.scans)
	return out
}

// AuthChecks returns a copy of the auth battery outcomes, nil when the
// authenticated flow did not run.
func (r *Run) AuthChecks() []AuthCheckResult {
	if r.authChecks == nil {
		return nil
	}
	out := make([]AuthCheckResult, len(r.authChecks))
	copy(out, r.authChecks)
	return out
}
