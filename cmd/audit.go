package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	"github.com/khanhnv2901/webaudit-cli/internal/crawler"
	"github.com/khanhnv2901/webaudit-cli/internal/engine"
	"github.com/khanhnv2901/webaudit-cli/internal/report"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

var auditCmd = &cobra.Command{
	Use:   "audit <target>",
	Short: "Crawl a website and run the configured scanners against every discovered page",
	Long: `Crawl the target breadth-first (same origin only), run the registered
scanners over the discovered pages, optionally exercise the login flow, and
write a timestamped report directory.

Scanners backed by external tools (lighthouse, sslscan, nuclei) are skipped
when the tool is not installed; the audit still completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := &cliConfig.Audit

	target, err := audit.NewTarget(args[0])
	if err != nil {
		return err
	}
	target.Login = loginConfigFromFlags(&cfg.Login)

	mode, err := engine.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Target:   target,
		Mode:     mode,
		MaxPages: cfg.MaxPages,
		Crawl: crawler.Config{
			MaxPages:  cfg.MaxPages,
			Timeout:   time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
			UserAgent: cfg.Crawl.UserAgent,
			EnableJS:  cfg.Crawl.EnableJS,
			JSWait:    time.Duration(cfg.Crawl.JSWaitTime) * time.Second,
		},
		Concurrency:       cfg.Concurrency,
		RateLimit:         cfg.RateLimit,
		ScanTimeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
		LighthouseTimeout: time.Duration(cfg.Tools.LighthouseTimeoutSecs) * time.Second,
		SslscanTimeout:    time.Duration(cfg.Tools.SslscanTimeoutSecs) * time.Second,
		NucleiTimeout:     time.Duration(cfg.Tools.NucleiTimeoutSecs) * time.Second,
		NucleiTemplates:   cfg.Tools.NucleiTemplates,
		AuthTimeout:       time.Duration(cfg.Tools.AuthTimeoutSecs) * time.Second,
		ReportsDir:        reportsDir,
	}, logger)
	if err != nil {
		return err
	}

	printAuditPreamble(target, mode, eng)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := eng.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(colorWarn("audit cancelled; no report was written"))
			return err
		}
		if errors.Is(err, sharedErrors.ErrSeedUnreachable) {
			fmt.Println(colorError("seed URL unreachable; nothing to audit"))
		}
		return err
	}

	printRunSummary(outcome)
	return nil
}

// loginConfigFromFlags returns nil when no login flow was requested.
func loginConfigFromFlags(flags *LoginFlags) *audit.LoginConfig {
	if flags.LoginURL == "" {
		return nil
	}
	lc := &audit.LoginConfig{
		LoginURL:         flags.LoginURL,
		UsernameField:    flags.UsernameField,
		PasswordField:    flags.PasswordField,
		Username:         flags.Username,
		Password:         flags.Password,
		ProtectedURL:     flags.ProtectedURL,
		SuccessIndicator: flags.SuccessIndicator,
	}
	return lc
}

func printAuditPreamble(target audit.Target, mode engine.Mode, eng *engine.Engine) {
	fmt.Printf("Auditing %s (mode: %s)\n", colorInfo(target.Origin), mode)
	for _, s := range eng.Scanners() {
		availability := colorSuccess("available")
		if !s.Available() {
			availability = colorWarn("skipped: tool not installed")
		}
		fmt.Printf("  %-18s %s\n", s.Name(), availability)
	}
	fmt.Println()
}

func printRunSummary(outcome *engine.Outcome) {
	run := outcome.Run
	doc := report.FromRun(run)

	fmt.Printf("\nAudit %s finished: %s\n", run.ID(), formatRunStatus(string(run.Status())))
	fmt.Printf("  Pages discovered:  %d (skipped %d)\n", doc.Summary.PagesDiscovered, doc.Summary.PagesSkipped)
	fmt.Printf("  Scans:             %s ok, %s skipped, %s errored\n",
		colorSuccess(fmt.Sprintf("%d", doc.Summary.ScansOK)),
		colorWarn(fmt.Sprintf("%d", doc.Summary.ScansSkipped)),
		colorError(fmt.Sprintf("%d", doc.Summary.ScansErrored)))
	fmt.Printf("  Findings:          %d\n", doc.Summary.TotalFindings)
	for _, severity := range []audit.Severity{audit.SeverityCritical, audit.SeverityHigh, audit.SeverityMedium, audit.SeverityLow, audit.SeverityInfo} {
		if count, ok := doc.Summary.FindingsBySeverity[severity]; ok {
			fmt.Printf("    %-16s %d\n", formatSeverity(severity)+":", count)
		}
	}
	if len(doc.AuthChecks) > 0 {
		fmt.Println("  Auth checks (advisory):")
		for _, check := range doc.AuthChecks {
			fmt.Printf("    %-24s %s\n", check.Name, formatAuthOutcome(check.Outcome))
		}
	}
	fmt.Printf("  Report:            %s\n", outcome.ReportDir)
}

func init() {
	flags := auditCmd.Flags()
	cfg := &cliConfig.Audit

	flags.StringVar(&cfg.Mode, "mode", cfg.Mode, "audit mode: security, performance or full")
	flags.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "maximum number of pages to crawl and scan")
	flags.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "maximum concurrent scans")
	flags.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "scan starts per second")
	flags.IntVar(&cfg.TimeoutSecs, "timeout", cfg.TimeoutSecs, "per-scan timeout in seconds")

	flags.IntVar(&cfg.Crawl.TimeoutSecs, "crawl-timeout", cfg.Crawl.TimeoutSecs, "per-page crawl timeout in seconds")
	flags.BoolVar(&cfg.Crawl.EnableJS, "enable-js", cfg.Crawl.EnableJS, "render pages in a headless browser before extracting links")
	flags.IntVar(&cfg.Crawl.JSWaitTime, "js-wait", cfg.Crawl.JSWaitTime, "seconds to wait for JavaScript rendering (with --enable-js)")
	flags.StringVar(&cfg.Crawl.UserAgent, "user-agent", "", "override the crawler User-Agent")

	flags.IntVar(&cfg.Tools.LighthouseTimeoutSecs, "lighthouse-timeout", cfg.Tools.LighthouseTimeoutSecs, "lighthouse timeout in seconds")
	flags.IntVar(&cfg.Tools.SslscanTimeoutSecs, "sslscan-timeout", cfg.Tools.SslscanTimeoutSecs, "sslscan timeout in seconds")
	flags.IntVar(&cfg.Tools.NucleiTimeoutSecs, "nuclei-timeout", cfg.Tools.NucleiTimeoutSecs, "nuclei timeout in seconds")
	flags.StringVar(&cfg.Tools.NucleiTemplates, "nuclei-templates", "", "nuclei template path or directory")

	flags.StringVar(&cfg.Login.LoginURL, "login-url", "", "login form URL (enables the authenticated-flow checks)")
	flags.StringVar(&cfg.Login.UsernameField, "username-field", "username", "login form username field name")
	flags.StringVar(&cfg.Login.PasswordField, "password-field", "password", "login form password field name")
	flags.StringVar(&cfg.Login.Username, "username", "", "login username (never persisted)")
	flags.StringVar(&cfg.Login.Password, "password", "", "login password (never persisted)")
	flags.StringVar(&cfg.Login.ProtectedURL, "protected-url", "", "URL that should require authentication")
	flags.StringVar(&cfg.Login.SuccessIndicator, "success-indicator", "", "string present in the page after a successful login")
}
