package scanner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

// libPattern maps a script filename convention to a library name.
type libPattern struct {
	name string
	re   *regexp.Regexp
}

var libPatterns = []libPattern{
	{"jquery", regexp.MustCompile(`(?i)/jquery[-.]([0-9][0-9.]*[0-9])(?:\.slim)?(?:\.min)?\.js`)},
	{"bootstrap", regexp.MustCompile(`(?i)/bootstrap(?:\.bundle)?[-.]([0-9][0-9.]*[0-9])(?:\.min)?\.js`)},
	{"angular", regexp.MustCompile(`(?i)/angular[-.]([0-9][0-9.]*[0-9])(?:\.min)?\.js`)},
	{"react", regexp.MustCompile(`(?i)/react(?:-dom)?[-.@]([0-9][0-9.]*[0-9])(?:[/.].*)?\.js`)},
	{"vue", regexp.MustCompile(`(?i)/vue[-.@]([0-9][0-9.]*[0-9])(?:[/.].*)?\.js`)},
}

// vulnRange marks every version strictly below FixedIn as affected. The table
// is deliberately small and best-effort: it trades completeness for zero
// external dependencies, so false negatives are expected.
type vulnRange struct {
	Lib      string
	FixedIn  string
	Advisory string
	Severity audit.Severity
}

var knownVulnerable = []vulnRange{
	{"jquery", "3.5.0", "CVE-2020-11022/CVE-2020-11023: XSS via htmlPrefilter on untrusted HTML", audit.SeverityMedium},
	{"jquery", "3.0.0", "CVE-2015-9251: cross-domain ajax requests may execute untrusted scripts", audit.SeverityMedium},
	{"bootstrap", "3.4.1", "CVE-2018-14041/CVE-2018-14042: XSS in data-target and tooltip", audit.SeverityMedium},
	{"bootstrap", "4.3.1", "CVE-2019-8331: XSS in tooltip/popover data-template", audit.SeverityMedium},
	{"angular", "1.8.0", "AngularJS expression sandbox bypasses; 1.x is end-of-life", audit.SeverityHigh},
	{"react", "16.4.2", "CVE-2018-6341: XSS in ReactDOMServer with attacker-controlled attribute names", audit.SeverityMedium},
	{"vue", "2.6.11", "multiple v-html/template injection hardening fixes before 2.6.11", audit.SeverityLow},
}

// JsVulnerabilityScanner extracts library name/version pairs from script tags
// and cross-references a bundled vulnerability table. Unmatched or unversioned
// scripts produce no finding.
type JsVulnerabilityScanner struct {
	Timeout time.Duration

	client *http.Client
}

func NewJsVulnerabilityScanner(timeout time.Duration) *JsVulnerabilityScanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JsVulnerabilityScanner{
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

func (s *JsVulnerabilityScanner) Name() string    { return "js-libraries" }
func (s *JsVulnerabilityScanner) Scope() Scope    { return ScopePage }
func (s *JsVulnerabilityScanner) Available() bool { return true }

func (s *JsVulnerabilityScanner) Scan(ctx context.Context, target string) audit.ScanResult {
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScanBodyBytes))
	if err != nil {
		result.Status = audit.Errored(err.Error())
		return result
	}

	for _, src := range scriptSources(string(body)) {
		lib, version := matchLibrary(src)
		if lib == "" {
			continue
		}
		for key, finding := range vulnerabilityFindings(lib, version, src) {
			result.Findings[key] = finding
		}
	}

	return result
}

const maxScanBodyBytes = 512 * 1024

// scriptSources returns script[src] values in document order.
func scriptSources(body string) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var sources []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "src" && strings.TrimSpace(attr.Val) != "" {
					sources = append(sources, strings.TrimSpace(attr.Val))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return sources
}

// matchLibrary identifies a library and version from a script URL, or returns
// empty strings when no filename convention matches.
func matchLibrary(src string) (lib, version string) {
	for _, pattern := range libPatterns {
		if m := pattern.re.FindStringSubmatch(src); m != nil {
			return pattern.name, m[1]
		}
	}
	return "", ""
}

func vulnerabilityFindings(lib, version, src string) map[string]audit.Finding {
	findings := make(map[string]audit.Finding)
	for _, vr := range knownVulnerable {
		if vr.Lib != lib {
			continue
		}
		if compareVersions(version, vr.FixedIn) >= 0 {
			continue
		}
		key := fmt.Sprintf("%s@%s", lib, version)
		detail := fmt.Sprintf("%s (loaded from %s)", vr.Advisory, src)
		// Keep the highest-severity advisory when several ranges match.
		if existing, ok := findings[key]; ok && severityRank(existing.Severity) >= severityRank(vr.Severity) {
			continue
		}
		findings[key] = audit.Finding{Severity: vr.Severity, Detail: detail}
	}
	return findings
}

// compareVersions compares dotted numeric versions; missing segments count as
// zero, non-numeric segments as equal.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func severityRank(s audit.Severity) int {
	switch s {
	case audit.SeverityCritical:
		return 4
	case audit.SeverityHigh:
		return 3
	case audit.SeverityMedium:
		return 2
	case audit.SeverityLow:
		return 1
	default:
		return 0
	}
}
