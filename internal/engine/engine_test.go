package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/about">about</a>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `about us`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, origin string, mode Mode) *Engine {
	t.Helper()
	target, err := audit.NewTarget(origin)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	eng, err := New(Config{
		Target:      target,
		Mode:        mode,
		MaxPages:    5,
		Concurrency: 4,
		RateLimit:   50,
		ReportsDir:  t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestEngineRunPersistsReport(t *testing.T) {
	srv := testSite(t)
	eng := newTestEngine(t, srv.URL, ModeSecurity)

	outcome, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run := outcome.Run
	if run.Phase() != audit.PhasePersisted {
		t.Errorf("phase = %s, want persisted", run.Phase())
	}
	if run.Status() != audit.RunStatusComplete && run.Status() != audit.RunStatusPartial {
		t.Errorf("status = %s, want complete or partial", run.Status())
	}

	// security mode: 2 page scanners x 2 pages + 2 origin scanners.
	if got := len(run.Scans()); got != 6 {
		t.Errorf("got %d scan results, want 6", got)
	}

	// Always-available page scanners must have run against both pages.
	headerResults := 0
	for _, scan := range run.Scans() {
		if scan.Scanner == "security-headers" {
			headerResults++
			if !scan.Status.IsOK() {
				t.Errorf("security-headers on %s = %s, want ok", scan.Target, scan.Status)
			}
		}
	}
	if headerResults != 2 {
		t.Errorf("security-headers ran %d times, want 2", headerResults)
	}

	for _, name := range []string{"report.json", "report.html"} {
		if _, err := os.Stat(filepath.Join(outcome.ReportDir, name)); err != nil {
			t.Errorf("missing %s in report dir: %v", name, err)
		}
	}
}

func TestEngineResultOrdering(t *testing.T) {
	srv := testSite(t)
	eng := newTestEngine(t, srv.URL, ModeSecurity)

	outcome, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	scans := outcome.Run.Scans()
	want := []struct{ scanner, target string }{
		{"security-headers", srv.URL + "/"},
		{"js-libraries", srv.URL + "/"},
		{"security-headers", srv.URL + "/about"},
		{"js-libraries", srv.URL + "/about"},
		{"ssl-scan", srv.URL},
		{"nuclei", srv.URL},
	}
	if len(scans) != len(want) {
		t.Fatalf("got %d scans, want %d", len(scans), len(want))
	}
	for i, w := range want {
		if scans[i].Scanner != w.scanner || scans[i].Target != w.target {
			t.Errorf("scans[%d] = %s/%s, want %s/%s", i, scans[i].Scanner, scans[i].Target, w.scanner, w.target)
		}
	}
}

func TestEngineSeedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	reportsDir := t.TempDir()
	target, err := audit.NewTarget(srv.URL)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	eng, err := New(Config{Target: target, MaxPages: 5, ReportsDir: reportsDir}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	outcome, err := eng.Run(context.Background())
	if !errors.Is(err, sharedErrors.ErrSeedUnreachable) {
		t.Fatalf("err = %v, want ErrSeedUnreachable", err)
	}
	if outcome == nil || outcome.Run.Status() != audit.RunStatusFailed {
		t.Error("run should be marked failed")
	}
	if outcome.ReportDir != "" {
		t.Error("failed run must not produce a report directory")
	}

	entries, readErr := os.ReadDir(reportsDir)
	if readErr != nil {
		t.Fatalf("read reports dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("reports dir not empty after failed run: %v", entries)
	}
}

func TestEngineCancelledRunNotPersisted(t *testing.T) {
	srv := testSite(t)
	reportsDir := t.TempDir()
	target, _ := audit.NewTarget(srv.URL)
	eng, err := New(Config{Target: target, MaxPages: 5, ReportsDir: reportsDir}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := eng.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	entries, readErr := os.ReadDir(reportsDir)
	if readErr != nil {
		t.Fatalf("read reports dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("reports dir not empty after cancelled run: %v", entries)
	}
}

func TestScannersForMode(t *testing.T) {
	names := func(cfg Config) []string {
		var out []string
		for _, s := range scannersForMode(cfg) {
			out = append(out, s.Name())
		}
		return out
	}

	tests := []struct {
		mode Mode
		want []string
	}{
		{ModePerformance, []string{"security-headers", "js-libraries", "lighthouse"}},
		{ModeSecurity, []string{"security-headers", "js-libraries", "ssl-scan", "nuclei"}},
		{ModeFull, []string{"security-headers", "js-libraries", "lighthouse", "ssl-scan", "nuclei"}},
	}
	for _, tt := range tests {
		got := names(Config{Mode: tt.mode})
		if len(got) != len(tt.want) {
			t.Errorf("mode %s: scanners = %v, want %v", tt.mode, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("mode %s: scanners[%d] = %s, want %s", tt.mode, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"security", "performance", "full", ""} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q): %v", valid, err)
		}
	}
	if _, err := ParseMode("everything"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
}
