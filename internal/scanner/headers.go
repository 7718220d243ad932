package scanner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

// headerCheck defines one entry of the security header checklist.
type headerCheck struct {
	Header   string
	Severity audit.Severity
	Missing  string
	// Validate inspects a present header value and returns an issue detail,
	// or "" when the value is acceptable.
	Validate func(value string) string
}

// securityHeaderChecks is the fixed checklist inspected on every page. Order
// matters only for report readability.
var securityHeaderChecks = []headerCheck{
	{
		Header:   "Strict-Transport-Security",
		Severity: audit.SeverityHigh,
		Missing:  "header missing; add 'Strict-Transport-Security: max-age=31536000; includeSubDomains'",
		Validate: validateHSTS,
	},
	{
		Header:   "Content-Security-Policy",
		Severity: audit.SeverityHigh,
		Missing:  "header missing; implement a strict Content-Security-Policy",
		Validate: validateCSP,
	},
	{
		Header:   "X-Content-Type-Options",
		Severity: audit.SeverityMedium,
		Missing:  "header missing; add 'X-Content-Type-Options: nosniff'",
		Validate: func(value string) string {
			if strings.ToLower(strings.TrimSpace(value)) != "nosniff" {
				return fmt.Sprintf("invalid value %q; should be 'nosniff'", value)
			}
			return ""
		},
	},
	{
		Header:   "X-Frame-Options",
		Severity: audit.SeverityMedium,
		Missing:  "header missing; add 'X-Frame-Options: DENY' or 'SAMEORIGIN'",
		Validate: func(value string) string {
			v := strings.ToUpper(strings.TrimSpace(value))
			if v == "DENY" || v == "SAMEORIGIN" {
				return ""
			}
			if strings.HasPrefix(v, "ALLOW-FROM") {
				return "ALLOW-FROM is deprecated; use CSP frame-ancestors instead"
			}
			return fmt.Sprintf("invalid value %q; set to 'DENY' or 'SAMEORIGIN'", value)
		},
	},
	{
		Header:   "Referrer-Policy",
		Severity: audit.SeverityLow,
		Missing:  "header missing; add 'Referrer-Policy: strict-origin-when-cross-origin'",
		Validate: func(value string) string {
			v := strings.ToLower(value)
			for _, good := range []string{"no-referrer", "strict-origin", "strict-origin-when-cross-origin", "same-origin"} {
				if strings.Contains(v, good) {
					return ""
				}
			}
			if strings.Contains(v, "unsafe-url") {
				return "policy may leak full URLs in the Referer header"
			}
			return ""
		},
	},
	{
		Header:   "Permissions-Policy",
		Severity: audit.SeverityLow,
		Missing:  "header missing; add 'Permissions-Policy' to restrict browser features",
	},
}

func validateHSTS(value string) string {
	v := strings.ToLower(value)
	if !strings.Contains(v, "max-age=") {
		return "missing 'max-age' directive"
	}
	if strings.Contains(v, "max-age=0") {
		return "max-age is 0, HSTS is effectively disabled"
	}
	if !strings.Contains(v, "includesubdomains") {
		return "missing 'includeSubDomains' directive"
	}
	return ""
}

func validateCSP(value string) string {
	v := strings.ToLower(value)
	var issues []string
	if strings.Contains(v, "'unsafe-inline'") {
		issues = append(issues, "contains 'unsafe-inline'")
	}
	if strings.Contains(v, "'unsafe-eval'") {
		issues = append(issues, "contains 'unsafe-eval'")
	}
	if !strings.Contains(v, "default-src") {
		issues = append(issues, "missing 'default-src' fallback")
	}
	return strings.Join(issues, "; ")
}

// SecurityHeadersScanner inspects response headers and cookie attributes
// against a fixed checklist. Pure HTTP, always available, deterministic for a
// given response. A response with zero findings is a valid ok outcome.
type SecurityHeadersScanner struct {
	Timeout time.Duration

	client *http.Client
}

func NewSecurityHeadersScanner(timeout time.Duration) *SecurityHeadersScanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SecurityHeadersScanner{
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

func (s *SecurityHeadersScanner) Name() string    { return "security-headers" }
func (s *SecurityHeadersScanner) Scope() Scope    { return ScopePage }
func (s *SecurityHeadersScanner) Available() bool { return true }

func (s *SecurityHeadersScanner) Scan(ctx context.Context, target string) audit.ScanResult {
	result := audit.ScanResult{
		Scanner:  s.Name(),
		Target:   target,
		Status:   audit.StatusOK,
		Findings: make(map[string]audit.Finding),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Status = audit.Errored(err.Error())
		return result
	}

	resp, err := s.client.Do(req)
	if err != nil {
		result.Status = audit.Errored(err.Error())
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	for _, check := range securityHeaderChecks {
		value := resp.Header.Get(check.Header)
		if value == "" {
			result.Findings[check.Header] = audit.Finding{
				Severity: check.Severity,
				Detail:   check.Missing,
			}
			continue
		}
		if check.Validate == nil {
			continue
		}
		if issue := check.Validate(value); issue != "" {
			result.Findings[check.Header] = audit.Finding{
				Severity: check.Severity,
				Detail:   issue,
			}
		}
	}

	for key, finding := range cookieFindings(resp) {
		result.Findings[key] = finding
	}

	return result
}

// cookieFindings flags Set-Cookie entries missing Secure, HttpOnly or an
// explicit SameSite attribute.
func cookieFindings(resp *http.Response) map[string]audit.Finding {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil
	}

	findings := make(map[string]audit.Finding)
	for _, cookie := range cookies {
		if !cookie.Secure {
			findings["cookie:"+cookie.Name+":secure"] = audit.Finding{
				Severity: audit.SeverityMedium,
				Detail:   fmt.Sprintf("cookie %q is set without the Secure attribute", cookie.Name),
			}
		}
		if !cookie.HttpOnly {
			findings["cookie:"+cookie.Name+":httponly"] = audit.Finding{
				Severity: audit.SeverityMedium,
				Detail:   fmt.Sprintf("cookie %q is set without the HttpOnly attribute", cookie.Name),
			}
		}
		if cookie.SameSite == http.SameSiteDefaultMode || cookie.SameSite == http.SameSiteNoneMode {
			findings["cookie:"+cookie.Name+":samesite"] = audit.Finding{
				Severity: audit.SeverityLow,
				Detail:   fmt.Sprintf("cookie %q has no restrictive SameSite attribute", cookie.Name),
			}
		}
	}
	return findings
}
