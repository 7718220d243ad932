package authtest

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// Check names, in battery order.
const (
	CheckCSRFToken            = "csrf-token"
	CheckRateLimiting         = "rate-limiting"
	CheckProtectedBeforeLogin = "protected-before-login"
	CheckLogin                = "login"
	CheckCookieSecure         = "cookie-secure"
	CheckCookieHTTPOnly       = "cookie-httponly"
	CheckCookieSameSite       = "cookie-samesite"
	CheckProtectedAfterLogin  = "protected-after-login"
	CheckReflectedInput       = "reflected-input"
)

const (
	invalidLoginAttempts = 5
	maxBodyBytes         = 256 * 1024
	// reflectionMarker is what gets submitted into login fields to detect
	// unescaped echoing. The angle bracket and quote must survive verbatim
	// for the signal to fire.
	reflectionMarker = `waudit-probe-9f3"<x>'`
)

var csrfFieldRe = regexp.MustCompile(`(?i)csrf|xsrf|_token|authenticity`)

// Tester drives the optional authenticated login flow and performs the fixed
// battery of checks. Every step is independent and non-fatal; a network
// failure in one step makes only that step inconclusive. Credentials are held
// for the duration of Run only and are never copied into evidence or logs.
type Tester struct {
	login    audit.LoginConfig
	timeout  time.Duration
	attempts int
	logger   *zap.SugaredLogger
}

// New validates the login configuration and builds a tester.
func New(login *audit.LoginConfig, timeout time.Duration, logger *zap.SugaredLogger) (*Tester, error) {
	if !login.Complete() {
		return nil, sharedErrors.ErrLoginConfigIncomplete
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tester{
		login:    *login,
		timeout:  timeout,
		attempts: invalidLoginAttempts,
		logger:   logger,
	}, nil
}

// Run executes the battery and returns one result per check, in battery order.
func (t *Tester) Run(ctx context.Context) []audit.AuthCheckResult {
	var results []audit.AuthCheckResult

	csrfName, csrfValue, csrfResult := t.checkCSRFToken(ctx)
	results = append(results, csrfResult)

	results = append(results, t.checkRateLimiting(ctx))

	if t.login.ProtectedURL != "" {
		results = append(results, t.checkProtectedBeforeLogin(ctx))
	}

	sessionCookies, loginResults := t.checkLogin(ctx, csrfName, csrfValue)
	results = append(results, loginResults...)

	if t.login.ProtectedURL != "" {
		results = append(results, t.checkProtectedAfterLogin(ctx, sessionCookies))
	}

	results = append(results, t.checkReflectedInput(ctx))

	return results
}

// checkCSRFToken fetches the login page and looks for a CSRF-token-shaped
// hidden field or response header. The token, when found, is reused by the
// valid-login step.
func (t *Tester) checkCSRFToken(ctx context.Context) (name, value string, result audit.AuthCheckResult) {
	result = audit.AuthCheckResult{Name: CheckCSRFToken}

	resp, body, err := t.get(ctx, t.newClient(true), t.login.LoginURL)
	if err != nil {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = t.sanitize("login page fetch failed: " + err.Error())
		return "", "", result
	}

	name, value = findCSRFField(body)
	if name != "" {
		result.Outcome = audit.AuthPass
		result.Evidence = fmt.Sprintf("hidden field %q present on login page", name)
		return name, value, result
	}

	for _, header := range []string{"X-CSRF-Token", "X-XSRF-Token"} {
		if resp.Header.Get(header) != "" {
			result.Outcome = audit.AuthPass
			result.Evidence = fmt.Sprintf("%s response header present", header)
			return "", "", result
		}
	}

	result.Outcome = audit.AuthFail
	result.Evidence = "no CSRF-token-shaped hidden field or header on login page"
	return "", "", result
}

// checkRateLimiting submits a burst of invalid logins and looks for a
// throttling signal. Absence of a signal is advisory, not proof.
func (t *Tester) checkRateLimiting(ctx context.Context) audit.AuthCheckResult {
	result := audit.AuthCheckResult{Name: CheckRateLimiting}
	client := t.newClient(true)

	form := url.Values{}
	form.Set(t.login.UsernameField, t.login.Username)
	form.Set(t.login.PasswordField, "invalid-"+time.Now().Format("150405"))

	var statuses []int
	for i := 0; i < t.attempts; i++ {
		resp, _, err := t.postForm(ctx, client, t.login.LoginURL, form)
		if err != nil {
			result.Outcome = audit.AuthInconclusive
			result.Evidence = t.sanitize(fmt.Sprintf("attempt %d failed: %v", i+1, err))
			return result
		}
		statuses = append(statuses, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "" {
			result.Outcome = audit.AuthPass
			result.Evidence = fmt.Sprintf("throttling signal after %d invalid attempts (status %d)", i+1, resp.StatusCode)
			return result
		}
	}

	result.Outcome = audit.AuthFail
	result.Evidence = fmt.Sprintf("no 429 or Retry-After across %d invalid attempts (statuses %v)", t.attempts, statuses)
	return result
}

// checkProtectedBeforeLogin expects the protected page to be denied to an
// unauthenticated client.
func (t *Tester) checkProtectedBeforeLogin(ctx context.Context) audit.AuthCheckResult {
	result := audit.AuthCheckResult{Name: CheckProtectedBeforeLogin}

	resp, _, err := t.get(ctx, t.newClient(false), t.login.ProtectedURL)
	if err != nil {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = t.sanitize("protected page fetch failed: " + err.Error())
		return result
	}

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		result.Outcome = audit.AuthPass
		result.Evidence = fmt.Sprintf("denied before login (status %d)", resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = audit.AuthFail
		result.Evidence = fmt.Sprintf("protected page served without authentication (status %d)", resp.StatusCode)
	default:
		result.Outcome = audit.AuthInconclusive
		result.Evidence = fmt.Sprintf("unexpected status %d before login", resp.StatusCode)
	}
	return result
}

// checkLogin submits valid credentials, verifies the post-login indicator and
// inspects the attributes of every cookie issued by the login response. The
// issued cookies are returned for the post-login protected-page check.
func (t *Tester) checkLogin(ctx context.Context, csrfName, csrfValue string) ([]*http.Cookie, []audit.AuthCheckResult) {
	loginResult := audit.AuthCheckResult{Name: CheckLogin}

	form := url.Values{}
	form.Set(t.login.UsernameField, t.login.Username)
	form.Set(t.login.PasswordField, t.login.Password)
	if csrfName != "" && csrfValue != "" {
		form.Set(csrfName, csrfValue)
	}

	// Redirects are not followed here: cookie attributes are only visible on
	// the response that sets them.
	resp, body, err := t.postForm(ctx, t.newClient(false), t.login.LoginURL, form)
	if err != nil {
		loginResult.Outcome = audit.AuthInconclusive
		loginResult.Evidence = t.sanitize("login submission failed: " + err.Error())
		return nil, append([]audit.AuthCheckResult{loginResult}, inconclusiveCookieResults("login request failed")...)
	}

	loggedIn := false
	switch {
	case t.login.SuccessIndicator != "":
		loggedIn = strings.Contains(body, t.login.SuccessIndicator)
	default:
		loggedIn = resp.StatusCode >= 200 && resp.StatusCode < 400
	}

	if loggedIn {
		loginResult.Outcome = audit.AuthPass
		loginResult.Evidence = fmt.Sprintf("login accepted (status %d)", resp.StatusCode)
	} else {
		loginResult.Outcome = audit.AuthFail
		loginResult.Evidence = fmt.Sprintf("post-login indicator not observed (status %d)", resp.StatusCode)
	}

	cookies := resp.Cookies()
	results := append([]audit.AuthCheckResult{loginResult}, cookieAttributeResults(cookies)...)
	return cookies, results
}

// cookieAttributeResults produces one pass/fail per session-cookie attribute.
func cookieAttributeResults(cookies []*http.Cookie) []audit.AuthCheckResult {
	if len(cookies) == 0 {
		return inconclusiveCookieResults("no cookies issued by login response")
	}

	var names, missingSecure, missingHTTPOnly, laxSameSite []string
	for _, c := range cookies {
		names = append(names, c.Name)
		if !c.Secure {
			missingSecure = append(missingSecure, c.Name)
		}
		if !c.HttpOnly {
			missingHTTPOnly = append(missingHTTPOnly, c.Name)
		}
		if c.SameSite == http.SameSiteDefaultMode || c.SameSite == http.SameSiteNoneMode {
			laxSameSite = append(laxSameSite, c.Name)
		}
	}

	attribute := func(name string, missing []string, detail string) audit.AuthCheckResult {
		if len(missing) == 0 {
			return audit.AuthCheckResult{
				Name:     name,
				Outcome:  audit.AuthPass,
				Evidence: fmt.Sprintf("all session cookies set it (%s)", strings.Join(names, ", ")),
			}
		}
		return audit.AuthCheckResult{
			Name:     name,
			Outcome:  audit.AuthFail,
			Evidence: fmt.Sprintf("%s: %s", detail, strings.Join(missing, ", ")),
		}
	}

	return []audit.AuthCheckResult{
		attribute(CheckCookieSecure, missingSecure, "cookies missing Secure"),
		attribute(CheckCookieHTTPOnly, missingHTTPOnly, "cookies missing HttpOnly"),
		attribute(CheckCookieSameSite, laxSameSite, "cookies without a restrictive SameSite"),
	}
}

func inconclusiveCookieResults(reason string) []audit.AuthCheckResult {
	names := []string{CheckCookieSecure, CheckCookieHTTPOnly, CheckCookieSameSite}
	results := make([]audit.AuthCheckResult, 0, len(names))
	for _, name := range names {
		results = append(results, audit.AuthCheckResult{
			Name:     name,
			Outcome:  audit.AuthInconclusive,
			Evidence: reason,
		})
	}
	return results
}

// checkProtectedAfterLogin re-fetches the protected page replaying the session
// cookies and expects success. Cookies are attached to the request directly so
// the replay works regardless of their Secure attribute.
func (t *Tester) checkProtectedAfterLogin(ctx context.Context, cookies []*http.Cookie) audit.AuthCheckResult {
	result := audit.AuthCheckResult{Name: CheckProtectedAfterLogin}
	if len(cookies) == 0 {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = "no session cookies available from login"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.login.ProtectedURL, nil)
	if err != nil {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = t.sanitize("protected page fetch failed: " + err.Error())
		return result
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, _, err := t.do(t.newClient(false), req)
	if err != nil {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = t.sanitize("protected page fetch failed: " + err.Error())
		return result
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = audit.AuthPass
		result.Evidence = fmt.Sprintf("protected page served with session (status %d)", resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		result.Outcome = audit.AuthFail
		result.Evidence = fmt.Sprintf("protected page still denied with session (status %d)", resp.StatusCode)
	default:
		result.Outcome = audit.AuthInconclusive
		result.Evidence = fmt.Sprintf("unexpected status %d after login", resp.StatusCode)
	}
	return result
}

// checkReflectedInput submits a marker string into the login fields and looks
// for it echoed back unescaped. A reflection is an inconclusive-leaning
// signal, not a definitive injection finding.
func (t *Tester) checkReflectedInput(ctx context.Context) audit.AuthCheckResult {
	result := audit.AuthCheckResult{Name: CheckReflectedInput}

	form := url.Values{}
	form.Set(t.login.UsernameField, reflectionMarker)
	form.Set(t.login.PasswordField, reflectionMarker)

	_, body, err := t.postForm(ctx, t.newClient(true), t.login.LoginURL, form)
	if err != nil {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = t.sanitize("probe submission failed: " + err.Error())
		return result
	}

	if strings.Contains(body, reflectionMarker) {
		result.Outcome = audit.AuthInconclusive
		result.Evidence = "login form input echoed unescaped in response; review output encoding"
	} else {
		result.Outcome = audit.AuthPass
		result.Evidence = "probe input not reflected unescaped"
	}
	return result
}

// HTTP helpers

func (t *Tester) newClient(followRedirects bool) *http.Client {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Timeout: t.timeout,
		Jar:     jar,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func (t *Tester) get(ctx context.Context, client *http.Client, target string) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	return t.do(client, req)
}

func (t *Tester) postForm(ctx context.Context, client *http.Client, target string, form url.Values) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(client, req)
}

func (t *Tester) do(client *http.Client, req *http.Request) (*http.Response, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp, "", err
	}
	return resp, string(body), nil
}

// sanitize redacts credential values from any string destined for evidence or
// logs.
func (t *Tester) sanitize(s string) string {
	if t.login.Username != "" {
		s = strings.ReplaceAll(s, t.login.Username, "[redacted]")
	}
	if t.login.Password != "" {
		s = strings.ReplaceAll(s, t.login.Password, "[redacted]")
	}
	return s
}

// findCSRFField walks the login page looking for a hidden input whose name
// looks like a CSRF token.
func findCSRFField(body string) (name, value string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", ""
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if name != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "input" {
			var inputType, inputName, inputValue string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "type":
					inputType = strings.ToLower(attr.Val)
				case "name":
					inputName = attr.Val
				case "value":
					inputValue = attr.Val
				}
			}
			if inputType == "hidden" && csrfFieldRe.MatchString(inputName) {
				name, value = inputName, inputValue
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return name, value
}
