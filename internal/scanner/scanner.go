package scanner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

// Scope declares the granularity a scanner operates at. Page-scoped scanners
// run once per discovered URL; origin-scoped scanners run once per audit.
type Scope string

const (
	ScopePage   Scope = "page"
	ScopeOrigin Scope = "origin"
)

// Scanner is the uniform capability every variant implements. Available must
// be cheap and side-effect free: it reports whether the backing tool is
// present without performing a scan.
type Scanner interface {
	// Name returns the scanner identifier used in results and reports.
	Name() string

	// Scope returns the granularity this scanner operates at.
	Scope() Scope

	// Available reports whether the scanner can run on this host.
	Available() bool

	// Scan performs the analysis for a single target.
	Scan(ctx context.Context, target string) audit.ScanResult
}

// Runner executes scanners over the discovered surface with bounded
// concurrency and a global rate limit. Results are returned in canonical
// order (URL discovery order, then scanner registration order, with
// origin-scoped scanners last) regardless of completion order.
type Runner struct {
	Concurrency int           // Maximum number of concurrent scans
	RateLimit   int           // Scan starts per second (global)
	Timeout     time.Duration // Timeout for each scan
}

type scanJob struct {
	index   int
	scanner Scanner
	target  string
}

// Run fans scans out over a worker pool and waits for all of them. A scanner
// whose backing tool is absent contributes skipped results without its Scan
// ever being invoked.
func (r *Runner) Run(ctx context.Context, origin string, urls []string, scanners []Scanner) []audit.ScanResult {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	rateLimit := r.RateLimit
	if rateLimit <= 0 {
		rateLimit = 1
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	available := make(map[string]bool, len(scanners))
	for _, s := range scanners {
		available[s.Name()] = s.Available()
	}

	var pageScanners, originScanners []Scanner
	for _, s := range scanners {
		if s.Scope() == ScopeOrigin {
			originScanners = append(originScanners, s)
		} else {
			pageScanners = append(pageScanners, s)
		}
	}

	results := make([]audit.ScanResult, len(urls)*len(pageScanners)+len(originScanners))
	var jobs []scanJob

	next := 0
	for _, u := range urls {
		for _, s := range pageScanners {
			jobs = r.appendJob(jobs, results, next, s, u, available)
			next++
		}
	}
	for _, s := range originScanners {
		jobs = r.appendJob(jobs, results, next, s, origin, available)
		next++
	}

	limiter := rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(j scanJob) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := limiter.Wait(ctx); err != nil {
				results[j.index] = audit.ScanResult{
					Scanner: j.scanner.Name(),
					Target:  j.target,
					Status:  audit.Errored("cancelled"),
				}
				return
			}

			scanCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results[j.index] = j.scanner.Scan(scanCtx, j.target)
		}(job)
	}

	wg.Wait()
	return results
}

// appendJob either queues a scan or records the skipped result immediately
// when the scanner's backing tool is missing.
func (r *Runner) appendJob(jobs []scanJob, results []audit.ScanResult, index int, s Scanner, target string, available map[string]bool) []scanJob {
	if !available[s.Name()] {
		results[index] = audit.ScanResult{
			Scanner: s.Name(),
			Target:  target,
			Status:  audit.Skipped(audit.ReasonToolNotInstalled),
		}
		return jobs
	}
	return append(jobs, scanJob{index: index, scanner: s, target: target})
}
