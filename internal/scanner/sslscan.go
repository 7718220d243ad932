package scanner

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
)

const sslscanBinary = "sslscan"

var (
	protocolEnabledRe = regexp.MustCompile(`(?m)^(SSLv2|SSLv3|TLSv1\.0|TLSv1\.1)\s+enabled`)
	acceptedCipherRe  = regexp.MustCompile(`(?m)^(?:Accepted|Preferred)\s+\S+\s+(\d+)\s+bits\s+(\S+)`)
)

// weakCipherMarkers flag cipher names that should not be offered at all.
var weakCipherMarkers = []string{"RC4", "DES", "NULL", "EXP", "ADH", "AECDH"}

// SslScanner runs sslscan against the origin's host:port and extracts
// protocol and cipher findings from its textual output. The raw output is
// kept for the human-readable report.
type SslScanner struct {
	Timeout time.Duration
}

func NewSslScanner(timeout time.Duration) *SslScanner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SslScanner{Timeout: timeout}
}

func (s *SslScanner) Name() string    { return "ssl-scan" }
func (s *SslScanner) Scope() Scope    { return ScopeOrigin }
func (s *SslScanner) Available() bool { return toolAvailable(sslscanBinary) }

func (s *SslScanner) Scan(ctx context.Context, target string) audit.ScanResult {
	result := audit.ScanResult{
		Scanner: s.Name(),
		Target:  target,
	}

	hostPort, err := tlsHostPort(target)
	if err != nil {
		result.Status = audit.Errored(err.Error())
		return result
	}

	output, err := runTool(ctx, s.Timeout, sslscanBinary, "--no-colour", hostPort)
	if err != nil {
		result.Status = audit.Errored(toolErrorReason(err))
		return result
	}

	result.Status = audit.StatusOK
	result.Findings = parseSslscanOutput(string(output))
	result.Raw = strings.TrimSpace(string(output))
	return result
}

func parseSslscanOutput(output string) map[string]audit.Finding {
	findings := make(map[string]audit.Finding)

	for _, m := range protocolEnabledRe.FindAllStringSubmatch(output, -1) {
		protocol := m[1]
		severity := audit.SeverityMedium
		if protocol == "SSLv2" || protocol == "SSLv3" {
			severity = audit.SeverityHigh
		}
		key := "protocol:" + strings.ToLower(strings.ReplaceAll(protocol, ".", ""))
		findings[key] = audit.Finding{
			Severity: severity,
			Detail:   fmt.Sprintf("legacy protocol %s is enabled", protocol),
		}
	}

	for _, m := range acceptedCipherRe.FindAllStringSubmatch(output, -1) {
		bits, _ := strconv.Atoi(m[1])
		cipher := m[2]
		upper := strings.ToUpper(cipher)

		weak := bits > 0 && bits < 112
		for _, marker := range weakCipherMarkers {
			if strings.Contains(upper, marker) {
				weak = true
				break
			}
		}
		if !weak {
			continue
		}
		findings["cipher:"+cipher] = audit.Finding{
			Severity: audit.SeverityMedium,
			Detail:   fmt.Sprintf("weak cipher %s (%d bits) is accepted", cipher, bits),
		}
	}

	return findings
}

// tlsHostPort derives host:port from an origin URL, defaulting to 443.
func tlsHostPort(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %v", err)
	}
	host := u.Hostname()
	if host == "" {
		// Tolerate bare host[:port] input.
		host = strings.Split(target, "/")[0]
	}
	if host == "" {
		return "", fmt.Errorf("no host in target %q", target)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return host + ":" + port, nil
}
