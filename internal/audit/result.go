package audit

import (
	"fmt"
	"net/url"
	"strings"
)

// Severity grades a single finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is one structured observation produced by a scanner, keyed by issue
// identifier in the owning ScanResult.
type Finding struct {
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// ScanStatus is the outcome of one scanner invocation: "ok", "skipped:<reason>"
// or "error:<reason>". Skipped and error statuses always carry a reason.
type ScanStatus string

const StatusOK ScanStatus = "ok"

const (
	skippedPrefix = "skipped:"
	erroredPrefix = "error:"
)

// ReasonToolNotInstalled is the canonical skip reason for an absent backing tool.
const ReasonToolNotInstalled = "tool-not-installed"

// Skipped builds a skipped status with the given reason.
func Skipped(reason string) ScanStatus {
	if reason == "" {
		reason = "unspecified"
	}
	return ScanStatus(skippedPrefix + reason)
}

// Errored builds an error status with the given reason.
func Errored(reason string) ScanStatus {
	if reason == "" {
		reason = "unspecified"
	}
	return ScanStatus(erroredPrefix + reason)
}

func (s ScanStatus) IsOK() bool      { return s == StatusOK }
func (s ScanStatus) IsSkipped() bool { return strings.HasPrefix(string(s), skippedPrefix) }
func (s ScanStatus) IsError() bool   { return strings.HasPrefix(string(s), erroredPrefix) }

// Reason returns the reason portion of a skipped or error status, or "" for ok.
func (s ScanStatus) Reason() string {
	str := string(s)
	if i := strings.Index(str, ":"); i >= 0 {
		return str[i+1:]
	}
	return ""
}

// ScanResult is the outcome of one scanner variant against one URL, or against
// the origin for origin-granularity scanners.
type ScanResult struct {
	Scanner  string             `json:"scanner"`
	Target   string             `json:"target"`
	Status   ScanStatus         `json:"status"`
	Findings map[string]Finding `json:"findings,omitempty"`
	// Raw keeps the tool's textual output for the human-readable report.
	Raw string `json:"raw,omitempty"`
}

// AuthOutcome is the verdict of a single authenticated-flow check.
type AuthOutcome string

const (
	AuthPass         AuthOutcome = "pass"
	AuthFail         AuthOutcome = "fail"
	AuthInconclusive AuthOutcome = "inconclusive"
)

// AuthCheckResult records one step of the authenticated-flow battery. Evidence
// must never contain raw credentials; callers sanitize before constructing it.
type AuthCheckResult struct {
	Name     string      `json:"name"`
	Outcome  AuthOutcome `json:"outcome"`
	Evidence string      `json:"evidence,omitempty"`
}

// SkippedPage records a page the crawler could not fetch. Soft failures only;
// the crawl continues past them.
type SkippedPage struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// CrawlResult is the ordered, deduplicated set of same-origin URLs discovered
// from the seed. The seed is always first.
type CrawlResult struct {
	Seed    string        `json:"seed"`
	URLs    []string      `json:"urls"`
	Skipped []SkippedPage `json:"skipped,omitempty"`
}

// LoginConfig describes the optional authenticated flow. Credentials are kept
// out of every serialized form.
type LoginConfig struct {
	LoginURL         string `json:"login_url"`
	UsernameField    string `json:"username_field"`
	PasswordField    string `json:"password_field"`
	Username         string `json:"-"`
	Password         string `json:"-"`
	ProtectedURL     string `json:"protected_url,omitempty"`
	SuccessIndicator string `json:"success_indicator,omitempty"`
}

// Complete reports whether enough fields are set to drive the login flow.
func (lc *LoginConfig) Complete() bool {
	return lc != nil &&
		lc.LoginURL != "" &&
		lc.UsernameField != "" &&
		lc.PasswordField != "" &&
		lc.Username != "" &&
		lc.Password != ""
}

// Target is the audited origin plus optional login configuration. Immutable
// for the duration of a run.
type Target struct {
	Origin string       `json:"origin"`
	Login  *LoginConfig `json:"login,omitempty"`
}

// NewTarget normalizes raw input into an origin-form target (scheme://host[:port]).
// A bare hostname defaults to https.
func NewTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("target cannot be empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("target %q has no host", raw)
	}
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return Target{Origin: origin.String()}, nil
}

// Host returns the host[:port] portion of the origin.
func (t Target) Host() string {
	u, err := url.Parse(t.Origin)
	if err != nil {
		return ""
	}
	return u.Host
}
