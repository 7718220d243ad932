package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	"github.com/khanhnv2901/webaudit-cli/internal/authtest"
	"github.com/khanhnv2901/webaudit-cli/internal/crawler"
	"github.com/khanhnv2901/webaudit-cli/internal/report"
	"github.com/khanhnv2901/webaudit-cli/internal/scanner"
)

// Mode selects which scanner variants are registered for a run.
type Mode string

const (
	ModeSecurity    Mode = "security"
	ModePerformance Mode = "performance"
	ModeFull        Mode = "full"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSecurity, ModePerformance, ModeFull:
		return Mode(s), nil
	case "":
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown audit mode %q (want security, performance or full)", s)
	}
}

// Config collects everything one audit run needs.
type Config struct {
	Target   audit.Target
	Mode     Mode
	MaxPages int

	Crawl crawler.Config

	Concurrency int
	RateLimit   int
	ScanTimeout time.Duration

	LighthouseTimeout time.Duration
	SslscanTimeout    time.Duration
	NucleiTimeout     time.Duration
	NucleiTemplates   string

	AuthTimeout time.Duration

	ReportsDir string
}

// Outcome is what a finished run hands back to the CLI.
type Outcome struct {
	Run       *audit.Run
	ReportDir string
}

// Engine orchestrates one audit end to end: crawl, scan, optional
// authenticated-flow checks, aggregation and persistence. It is the single
// writer of the Run aggregate.
type Engine struct {
	cfg      Config
	logger   *zap.SugaredLogger
	crawler  *crawler.Crawler
	runner   *scanner.Runner
	scanners []scanner.Scanner
	writer   *report.Writer
}

// New wires an engine from configuration. The scanner registration list is
// fixed at construction and determines result ordering for the whole run.
func New(cfg Config, logger *zap.SugaredLogger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}

	writer, err := report.NewWriter(cfg.ReportsDir, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		crawler: crawler.New(cfg.Crawl, logger),
		runner: &scanner.Runner{
			Concurrency: cfg.Concurrency,
			RateLimit:   cfg.RateLimit,
			Timeout:     cfg.ScanTimeout,
		},
		scanners: scannersForMode(cfg),
		writer:   writer,
	}, nil
}

// scannersForMode builds the registration list. Order here is the order scan
// results appear in, per page.
func scannersForMode(cfg Config) []scanner.Scanner {
	headers := scanner.NewSecurityHeadersScanner(cfg.ScanTimeout)
	jsLibs := scanner.NewJsVulnerabilityScanner(cfg.ScanTimeout)
	lighthouse := scanner.NewLighthouseScanner(cfg.LighthouseTimeout)
	sslScan := scanner.NewSslScanner(cfg.SslscanTimeout)
	nuclei := scanner.NewNucleiScanner(cfg.NucleiTimeout, cfg.NucleiTemplates)

	switch cfg.Mode {
	case ModePerformance:
		return []scanner.Scanner{headers, jsLibs, lighthouse}
	case ModeSecurity:
		return []scanner.Scanner{headers, jsLibs, sslScan, nuclei}
	default:
		return []scanner.Scanner{headers, jsLibs, lighthouse, sslScan, nuclei}
	}
}

// Scanners exposes the registration list, mainly for the CLI preamble.
func (e *Engine) Scanners() []scanner.Scanner {
	out := make([]scanner.Scanner, len(e.scanners))
	copy(out, e.scanners)
	return out
}

// Run executes the full audit. Only an unreachable seed, a report-write
// failure or cancellation aborts the run; individual scan failures degrade the
// status to partial instead. A cancelled or failed run leaves nothing on disk.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	run := audit.NewRun(e.cfg.Target)
	e.logger.Infow("audit started",
		"run", run.ID(),
		"target", e.cfg.Target.Origin,
		"mode", e.cfg.Mode,
		"max_pages", e.cfg.MaxPages)

	if err := run.BeginCrawl(); err != nil {
		return nil, err
	}
	crawlResult, err := e.crawler.Crawl(ctx, e.cfg.Target.Origin, e.cfg.MaxPages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.failRun(run, fmt.Sprintf("crawl failed: %v", err))
		return &Outcome{Run: run}, err
	}

	e.appendProtectedURL(crawlResult)

	if err := run.SetCrawlResult(crawlResult); err != nil {
		return nil, err
	}

	e.logger.Infow("scanning surface",
		"pages", len(crawlResult.URLs),
		"scanners", len(e.scanners))
	for _, res := range e.runner.Run(ctx, e.cfg.Target.Origin, crawlResult.URLs, e.scanners) {
		if err := run.AddScanResult(res); err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if e.shouldRunAuthChecks() {
		if err := run.BeginAuthChecks(); err != nil {
			return nil, err
		}
		tester, err := authtest.New(e.cfg.Target.Login, e.cfg.AuthTimeout, e.logger)
		if err != nil {
			return nil, err
		}
		if err := run.SetAuthResults(tester.Run(ctx)); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if err := run.Finalize(); err != nil {
		return nil, err
	}
	if err := run.Freeze(); err != nil {
		return nil, err
	}

	dir, err := e.writer.Write(run)
	if err != nil {
		return &Outcome{Run: run}, err
	}
	if err := run.MarkPersisted(); err != nil {
		return nil, err
	}

	e.logger.Infow("audit finished",
		"run", run.ID(),
		"status", run.Status(),
		"report", dir)
	return &Outcome{Run: run, ReportDir: dir}, nil
}

// appendProtectedURL adds the login-protected page to the scan surface when
// configured, still bounded by maxPages.
func (e *Engine) appendProtectedURL(crawlResult *audit.CrawlResult) {
	login := e.cfg.Target.Login
	if login == nil || login.ProtectedURL == "" {
		return
	}
	if len(crawlResult.URLs) >= e.cfg.MaxPages {
		return
	}
	for _, u := range crawlResult.URLs {
		if u == login.ProtectedURL {
			return
		}
	}
	crawlResult.URLs = append(crawlResult.URLs, login.ProtectedURL)
}

// shouldRunAuthChecks: login config must be complete and the mode must include
// the security battery.
func (e *Engine) shouldRunAuthChecks() bool {
	if e.cfg.Mode == ModePerformance {
		return false
	}
	return e.cfg.Target.Login.Complete()
}

// failRun records a fatal failure. Failed runs are frozen but never persisted.
func (e *Engine) failRun(run *audit.Run, reason string) {
	if err := run.Fail(reason); err != nil {
		e.logger.Errorw("failed to mark run as failed", "run", run.ID(), "error", err)
		return
	}
	if err := run.Freeze(); err != nil {
		e.logger.Errorw("failed to freeze failed run", "run", run.ID(), "error", err)
	}
	e.logger.Errorw("audit failed", "run", run.ID(), "reason", reason)
}
