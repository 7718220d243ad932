package authtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
)

// loginSite is a configurable fake application for exercising the battery.
type loginSite struct {
	csrfField   string
	rateLimitAt int // respond 429 after this many failed logins; 0 disables
	failedSoFar int
	cookie      *http.Cookie
	reflect     bool
	successBody string
	password    string
}

func (s *loginSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html")
			if s.csrfField != "" {
				fmt.Fprintf(w, `<form><input type="hidden" name=%q value="tok-123"></form>`, s.csrfField)
				return
			}
			fmt.Fprint(w, `<form><input name="username"><input name="password" type="password"></form>`)
			return
		}

		_ = r.ParseForm()
		password := r.PostFormValue("password")

		if password != s.password {
			s.failedSoFar++
			if s.rateLimitAt > 0 && s.failedSoFar >= s.rateLimitAt {
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			if s.reflect {
				fmt.Fprintf(w, "login failed for %s", r.PostFormValue("username"))
			}
			return
		}

		if s.cookie != nil {
			http.SetCookie(w, s.cookie)
		}
		fmt.Fprint(w, s.successBody)
	})
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		if s.cookie != nil {
			if c, err := r.Cookie(s.cookie.Name); err == nil && c.Value == s.cookie.Value {
				fmt.Fprint(w, "account page")
				return
			}
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	return mux
}

func runBattery(t *testing.T, site *loginSite) map[string]audit.AuthCheckResult {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	tester, err := New(&audit.LoginConfig{
		LoginURL:         srv.URL + "/login",
		UsernameField:    "username",
		PasswordField:    "password",
		Username:         "auditor",
		Password:         site.password,
		ProtectedURL:     srv.URL + "/account",
		SuccessIndicator: "welcome",
	}, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	byName := make(map[string]audit.AuthCheckResult)
	for _, res := range tester.Run(context.Background()) {
		byName[res.Name] = res
	}
	return byName
}

func secureSite() *loginSite {
	return &loginSite{
		csrfField:   "csrf_token",
		rateLimitAt: 3,
		cookie: &http.Cookie{
			Name: "session", Value: "abc123",
			Secure: true, HttpOnly: true, SameSite: http.SameSiteLaxMode,
		},
		successBody: "welcome back",
		password:    "s3cret",
	}
}

func TestBatteryAgainstHardenedSite(t *testing.T) {
	results := runBattery(t, secureSite())

	wantPass := []string{
		CheckCSRFToken,
		CheckRateLimiting,
		CheckProtectedBeforeLogin,
		CheckLogin,
		CheckCookieSecure,
		CheckCookieHTTPOnly,
		CheckCookieSameSite,
		CheckProtectedAfterLogin,
		CheckReflectedInput,
	}
	for _, name := range wantPass {
		res, ok := results[name]
		if !ok {
			t.Errorf("missing result for %s", name)
			continue
		}
		if res.Outcome != audit.AuthPass {
			t.Errorf("%s = %s (%s), want pass", name, res.Outcome, res.Evidence)
		}
	}
}

func TestBatteryAgainstWeakSite(t *testing.T) {
	site := &loginSite{
		cookie:      &http.Cookie{Name: "session", Value: "abc123"},
		reflect:     true,
		successBody: "welcome back",
		password:    "s3cret",
	}
	results := runBattery(t, site)

	if results[CheckCSRFToken].Outcome != audit.AuthFail {
		t.Errorf("csrf-token = %s, want fail without a token field", results[CheckCSRFToken].Outcome)
	}
	if results[CheckRateLimiting].Outcome != audit.AuthFail {
		t.Errorf("rate-limiting = %s, want fail without throttling", results[CheckRateLimiting].Outcome)
	}
	for _, name := range []string{CheckCookieSecure, CheckCookieHTTPOnly, CheckCookieSameSite} {
		if results[name].Outcome != audit.AuthFail {
			t.Errorf("%s = %s, want fail for a bare cookie", name, results[name].Outcome)
		}
	}
	if results[CheckLogin].Outcome != audit.AuthPass {
		t.Errorf("login = %s, want pass (valid credentials)", results[CheckLogin].Outcome)
	}
}

func TestReflectedInputSignal(t *testing.T) {
	site := secureSite()
	site.reflect = true
	// No throttling, otherwise the probe is rejected before it can be echoed.
	site.rateLimitAt = 0
	results := runBattery(t, site)

	res := results[CheckReflectedInput]
	if res.Outcome != audit.AuthInconclusive {
		t.Errorf("reflected-input = %s, want inconclusive when the marker is echoed", res.Outcome)
	}
}

func TestBatteryStepsIndependentOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // everything refuses connections

	tester, err := New(&audit.LoginConfig{
		LoginURL:      srv.URL + "/login",
		UsernameField: "username",
		PasswordField: "password",
		Username:      "auditor",
		Password:      "s3cret",
		ProtectedURL:  srv.URL + "/account",
	}, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := tester.Run(context.Background())
	if len(results) == 0 {
		t.Fatal("expected results even when every request fails")
	}
	for _, res := range results {
		if res.Outcome != audit.AuthInconclusive {
			t.Errorf("%s = %s, want inconclusive on network failure", res.Name, res.Outcome)
		}
	}
}

func TestEvidenceNeverContainsCredentials(t *testing.T) {
	site := &loginSite{
		reflect:     true,
		successBody: "welcome back",
		password:    "hunter2-secret",
	}
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	tester, err := New(&audit.LoginConfig{
		LoginURL:      srv.URL + "/login",
		UsernameField: "username",
		PasswordField: "password",
		Username:      "auditor-user",
		Password:      "hunter2-secret",
		ProtectedURL:  srv.URL + "/account",
	}, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, res := range tester.Run(context.Background()) {
		for _, secret := range []string{"auditor-user", "hunter2-secret"} {
			if strings.Contains(res.Evidence, secret) {
				t.Errorf("%s evidence leaks credential %q: %s", res.Name, secret, res.Evidence)
			}
		}
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(&audit.LoginConfig{LoginURL: "https://example.test/login"}, 0, nil)
	if !errors.Is(err, sharedErrors.ErrLoginConfigIncomplete) {
		t.Errorf("err = %v, want ErrLoginConfigIncomplete", err)
	}
}

func TestFindCSRFField(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
	}{
		{"classic csrf", `<input type="hidden" name="csrf_token" value="x">`, "csrf_token"},
		{"rails style", `<input type="hidden" name="authenticity_token" value="x">`, "authenticity_token"},
		{"laravel style", `<input type="hidden" name="_token" value="x">`, "_token"},
		{"visible field ignored", `<input type="text" name="csrf_token">`, ""},
		{"unrelated hidden field", `<input type="hidden" name="redirect_to" value="/">`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, _ := findCSRFField(tt.body)
			if name != tt.wantName {
				t.Errorf("findCSRFField = %q, want %q", name, tt.wantName)
			}
		})
	}
}
