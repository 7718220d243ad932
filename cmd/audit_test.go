package cmd

import "testing"

func TestLoginConfigFromFlags(t *testing.T) {
	t.Run("no login url means no auth flow", func(t *testing.T) {
		if got := loginConfigFromFlags(&LoginFlags{Username: "x", Password: "y"}); got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})

	t.Run("all fields carried over", func(t *testing.T) {
		flags := &LoginFlags{
			LoginURL:         "https://example.test/login",
			UsernameField:    "user",
			PasswordField:    "pass",
			Username:         "auditor",
			Password:         "secret",
			ProtectedURL:     "https://example.test/account",
			SuccessIndicator: "Dashboard",
		}
		lc := loginConfigFromFlags(flags)
		if lc == nil {
			t.Fatal("expected a login config")
		}
		if !lc.Complete() {
			t.Error("expected a complete login config")
		}
		if lc.ProtectedURL != flags.ProtectedURL || lc.SuccessIndicator != flags.SuccessIndicator {
			t.Errorf("optional fields not carried: %+v", lc)
		}
	})
}

func TestAuditCommandFlagDefaults(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"mode", "full"},
		{"max-pages", "10"},
		{"concurrency", "4"},
		{"rate-limit", "5"},
		{"username-field", "username"},
		{"password-field", "password"},
	}
	for _, tt := range tests {
		flag := auditCmd.Flags().Lookup(tt.flag)
		if flag == nil {
			t.Errorf("flag --%s not registered", tt.flag)
			continue
		}
		if flag.DefValue != tt.want {
			t.Errorf("--%s default = %q, want %q", tt.flag, flag.DefValue, tt.want)
		}
	}
}
