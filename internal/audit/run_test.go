package audit

import (
	"errors"
	"testing"
	"time"

	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

func testTarget(t *testing.T) Target {
	t.Helper()
	target, err := NewTarget("https://example.test")
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return target
}

func advanceToScanning(t *testing.T, run *Run) {
	t.Helper()
	if err := run.BeginCrawl(); err != nil {
		t.Fatalf("BeginCrawl: %v", err)
	}
	crawl := &CrawlResult{Seed: "https://example.test/", URLs: []string{"https://example.test/"}}
	if err := run.SetCrawlResult(crawl); err != nil {
		t.Fatalf("SetCrawlResult: %v", err)
	}
}

func TestNewRunStartsPending(t *testing.T) {
	run := NewRun(testTarget(t))

	if run.Phase() != PhaseCreated {
		t.Errorf("phase = %s, want %s", run.Phase(), PhaseCreated)
	}
	if run.Status() != RunStatusPending {
		t.Errorf("status = %s, want %s", run.Status(), RunStatusPending)
	}
	if run.ID() == "" {
		t.Error("expected a non-empty run id")
	}
	if _, err := time.Parse("20060102_150405", run.ID()); err != nil {
		t.Errorf("run id %q is not a timestamp: %v", run.ID(), err)
	}
}

func TestRunLifecycleComplete(t *testing.T) {
	run := NewRun(testTarget(t))
	advanceToScanning(t, run)

	results := []ScanResult{
		{Scanner: "security-headers", Target: "https://example.test/", Status: StatusOK},
		{Scanner: "nuclei", Target: "https://example.test", Status: Skipped(ReasonToolNotInstalled)},
	}
	for _, res := range results {
		if err := run.AddScanResult(res); err != nil {
			t.Fatalf("AddScanResult: %v", err)
		}
	}

	if err := run.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if run.Status() != RunStatusComplete {
		t.Errorf("status = %s, want %s (skipped scans do not degrade)", run.Status(), RunStatusComplete)
	}
	if run.CompletedAt().IsZero() {
		t.Error("expected completedAt to be set")
	}

	if err := run.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := run.MarkPersisted(); err != nil {
		t.Fatalf("MarkPersisted: %v", err)
	}
	if run.Phase() != PhasePersisted {
		t.Errorf("phase = %s, want %s", run.Phase(), PhasePersisted)
	}
}

func TestFinalizePartialOnScanError(t *testing.T) {
	run := NewRun(testTarget(t))
	advanceToScanning(t, run)

	_ = run.AddScanResult(ScanResult{Scanner: "security-headers", Status: StatusOK})
	_ = run.AddScanResult(ScanResult{Scanner: "lighthouse", Status: Errored("timeout")})

	if err := run.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if run.Status() != RunStatusPartial {
		t.Errorf("status = %s, want %s", run.Status(), RunStatusPartial)
	}
}

func TestAuthOutcomesDoNotAffectStatus(t *testing.T) {
	run := NewRun(testTarget(t))
	advanceToScanning(t, run)
	_ = run.AddScanResult(ScanResult{Scanner: "security-headers", Status: StatusOK})

	if err := run.BeginAuthChecks(); err != nil {
		t.Fatalf("BeginAuthChecks: %v", err)
	}
	if err := run.SetAuthResults([]AuthCheckResult{
		{Name: "rate-limiting", Outcome: AuthFail},
		{Name: "csrf-token", Outcome: AuthInconclusive},
	}); err != nil {
		t.Fatalf("SetAuthResults: %v", err)
	}

	if err := run.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if run.Status() != RunStatusComplete {
		t.Errorf("status = %s, want %s (auth results are advisory)", run.Status(), RunStatusComplete)
	}
}

func TestInvalidTransitions(t *testing.T) {
	t.Run("scan result before scanning", func(t *testing.T) {
		run := NewRun(testTarget(t))
		err := run.AddScanResult(ScanResult{Scanner: "security-headers"})
		if !errors.Is(err, sharedErrors.ErrInvalidRunPhase) {
			t.Errorf("err = %v, want ErrInvalidRunPhase", err)
		}
	})

	t.Run("finalize before scanning", func(t *testing.T) {
		run := NewRun(testTarget(t))
		if err := run.Finalize(); !errors.Is(err, sharedErrors.ErrInvalidRunPhase) {
			t.Errorf("err = %v, want ErrInvalidRunPhase", err)
		}
	})

	t.Run("freeze before finalize", func(t *testing.T) {
		run := NewRun(testTarget(t))
		if err := run.Freeze(); !errors.Is(err, sharedErrors.ErrRunNotFinalized) {
			t.Errorf("err = %v, want ErrRunNotFinalized", err)
		}
	})

	t.Run("persist before freeze", func(t *testing.T) {
		run := NewRun(testTarget(t))
		advanceToScanning(t, run)
		_ = run.Finalize()
		if err := run.MarkPersisted(); !errors.Is(err, sharedErrors.ErrRunNotFinalized) {
			t.Errorf("err = %v, want ErrRunNotFinalized", err)
		}
	})
}

func TestFrozenRunRejectsMutation(t *testing.T) {
	run := NewRun(testTarget(t))
	advanceToScanning(t, run)
	_ = run.Finalize()
	if err := run.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	if err := run.AddScanResult(ScanResult{Scanner: "security-headers"}); !errors.Is(err, sharedErrors.ErrRunFrozen) {
		t.Errorf("AddScanResult err = %v, want ErrRunFrozen", err)
	}
	if err := run.Fail("late failure"); !errors.Is(err, sharedErrors.ErrRunFrozen) {
		t.Errorf("Fail err = %v, want ErrRunFrozen", err)
	}
}

func TestFailFromAnyActivePhase(t *testing.T) {
	run := NewRun(testTarget(t))
	if err := run.BeginCrawl(); err != nil {
		t.Fatalf("BeginCrawl: %v", err)
	}

	if err := run.Fail("seed unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if run.Status() != RunStatusFailed {
		t.Errorf("status = %s, want %s", run.Status(), RunStatusFailed)
	}
	if run.Failure() != "seed unreachable" {
		t.Errorf("failure = %q", run.Failure())
	}
	if err := run.Freeze(); err != nil {
		t.Errorf("Freeze after Fail: %v", err)
	}
}

func TestReconstructIsFrozen(t *testing.T) {
	target := testTarget(t)
	now := time.Now().UTC()
	run := Reconstruct("20250102_030405", target, now, now.Add(time.Minute),
		RunStatusPartial, nil, []ScanResult{{Scanner: "nuclei", Status: Errored("timeout")}}, nil, "")

	if !run.Frozen() {
		t.Error("reconstructed run should be frozen")
	}
	if run.Phase() != PhasePersisted {
		t.Errorf("phase = %s, want %s", run.Phase(), PhasePersisted)
	}
	if err := run.AddScanResult(ScanResult{}); !errors.Is(err, sharedErrors.ErrRunFrozen) {
		t.Errorf("err = %v, want ErrRunFrozen", err)
	}
}

func TestScansReturnsCopy(t *testing.T) {
	run := NewRun(testTarget(t))
	advanceToScanning(t, run)
	_ = run.AddScanResult(ScanResult{Scanner: "security-headers", Status: StatusOK})

	scans := run.Scans()
	scans[0].Scanner = "mutated"

	if run.Scans()[0].Scanner != "security-headers" {
		t.Error("mutating the returned slice changed the aggregate")
	}
}
