package crawler

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// Config controls discovery of in-scope pages.
type Config struct {
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
	// EnableJS routes page fetches through a headless browser so that
	// client-rendered applications expose their links.
	EnableJS bool
	JSWait   time.Duration
}

const (
	maxCrawlBodyBytes = 512 * 1024
	defaultTimeout    = 10 * time.Second
	defaultUserAgent  = "webaudit-cli/1.0"
)

var assetExtensions = map[string]struct{}{
	".css":         {},
	".js":          {},
	".json":        {},
	".map":         {},
	".txt":         {},
	".png":         {},
	".jpg":         {},
	".jpeg":        {},
	".gif":         {},
	".svg":         {},
	".ico":         {},
	".webp":        {},
	".webmanifest": {},
	".mp4":         {},
	".mp3":         {},
	".woff":        {},
	".woff2":       {},
	".ttf":         {},
	".eot":         {},
	".pdf":         {},
	".zip":         {},
	".tar":         {},
}

// Crawler discovers same-origin URLs breadth-first from a seed. It performs
// outbound reads only and never writes anything.
type Crawler struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
	render renderFunc
}

// New builds a crawler with sane defaults filled in.
func New(cfg Config, logger *zap.SugaredLogger) *Crawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.JSWait <= 0 {
		cfg.JSWait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Crawler{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: false,
					MinVersion:         tls.VersionTLS12,
				},
			},
		},
		logger: logger,
	}
	c.render = c.renderWithBrowser
	return c
}

// Crawl walks the target breadth-first, bounded by maxPages, and returns the
// discovered same-origin URLs in discovery order with the seed always first.
// Only a transport-level failure to reach the seed is fatal; every later page
// failure is recorded as a soft skip.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxPages int) (*audit.CrawlResult, error) {
	root, err := parsePageURL(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidTarget, err)
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	seedURL := canonicalURL(root)
	result := &audit.CrawlResult{
		Seed: seedURL,
		URLs: []string{seedURL},
	}

	seen := map[string]struct{}{seedURL: {}}
	// result.URLs doubles as the BFS queue; pages are fetched in discovery order.
	for i := 0; i < len(result.URLs); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := result.URLs[i]
		body, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrSeedUnreachable, pageURL, err)
			}
			c.logger.Warnw("page fetch failed, skipping", "url", pageURL, "error", err)
			result.Skipped = append(result.Skipped, audit.SkippedPage{URL: pageURL, Reason: err.Error()})
			continue
		}
		if body == "" {
			continue // non-HTML content, nothing to extract
		}

		base, err := url.Parse(pageURL)
		if err != nil {
			continue
		}
		for _, link := range extractLinks(base, body) {
			if len(result.URLs) >= maxPages {
				break
			}
			if !sameOrigin(root, link) {
				continue
			}
			if looksLikeAsset(link.Path) {
				continue
			}
			key := canonicalURL(link)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result.URLs = append(result.URLs, key)
		}
	}

	c.logger.Infow("crawl finished",
		"seed", seedURL,
		"discovered", len(result.URLs),
		"skipped", len(result.Skipped))
	return result, nil
}

// fetchPage returns the page body, or "" for reachable non-HTML content.
// A transport error or HTTP error status is a fetch failure.
func (c *Crawler) fetchPage(ctx context.Context, target string) (string, error) {
	if c.cfg.EnableJS {
		body, err := c.render(ctx, target)
		if err == nil {
			return body, nil
		}
		c.logger.Warnw("rendered fetch failed, falling back to plain HTTP", "url", target, "error", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxCrawlBodyBytes))
		return "", nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCrawlBodyBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractLinks collects resolved a[href] targets in document order.
func extractLinks(base *url.URL, body string) []*url.URL {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var links []*url.URL
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if resolved := resolveLink(base, attr.Val); resolved != nil {
					links = append(links, resolved)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "data:"):
		return nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	resolved.Fragment = ""
	if resolved.Path == "" {
		resolved.Path = "/"
	}
	return resolved
}

func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

func canonicalURL(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	if clone.Path == "" {
		clone.Path = "/"
	}
	return clone.String()
}

// sameOrigin applies scheme+host+port equality, normalizing default ports so
// that https://example.test and https://example.test:443 compare equal.
func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		normalizedPort(a) == normalizedPort(b)
}

func normalizedPort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch u.Scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func looksLikeAsset(path string) bool {
	if path == "" || path == "/" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, blocked := assetExtensions[ext]
	return blocked
}
