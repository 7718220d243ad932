package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultMaxPages          = 10
	defaultConcurrency       = 4
	defaultRateLimit         = 5
	defaultScanTimeoutSecs   = 30
	defaultCrawlTimeoutSecs  = 10
	defaultAuthTimeoutSecs   = 20
	defaultLighthouseSecs    = 120
	defaultSslscanSecs       = 60
	defaultNucleiSecs        = 300
	defaultJSWaitTimeSeconds = 2
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Audit AuditRuntimeConfig
}

// AuditRuntimeConfig consolidates flag-driven settings for the audit command.
type AuditRuntimeConfig struct {
	Mode        string
	MaxPages    int
	Concurrency int
	RateLimit   int
	TimeoutSecs int

	Crawl CrawlConfig
	Tools ToolConfig
	Login LoginFlags
}

// CrawlConfig captures discovery options.
type CrawlConfig struct {
	TimeoutSecs int
	EnableJS    bool
	JSWaitTime  int // seconds to wait for JavaScript to render
	UserAgent   string
}

// ToolConfig groups external-tool runtime options.
type ToolConfig struct {
	LighthouseTimeoutSecs int
	SslscanTimeoutSecs    int
	NucleiTimeoutSecs     int
	NucleiTemplates       string
	AuthTimeoutSecs       int
}

// LoginFlags carries the optional authenticated-flow configuration. The
// username and password stay in process memory only.
type LoginFlags struct {
	LoginURL         string
	UsernameField    string
	PasswordField    string
	Username         string
	Password         string
	ProtectedURL     string
	SuccessIndicator string
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Audit: AuditRuntimeConfig{
			Mode:        "full",
			MaxPages:    defaultMaxPages,
			Concurrency: defaultConcurrency,
			RateLimit:   defaultRateLimit,
			TimeoutSecs: defaultScanTimeoutSecs,
			Crawl: CrawlConfig{
				TimeoutSecs: defaultCrawlTimeoutSecs,
				EnableJS:    false,
				JSWaitTime:  defaultJSWaitTimeSeconds,
			},
			Tools: ToolConfig{
				LighthouseTimeoutSecs: defaultLighthouseSecs,
				SslscanTimeoutSecs:    defaultSslscanSecs,
				NucleiTimeoutSecs:     defaultNucleiSecs,
				AuthTimeoutSecs:       defaultAuthTimeoutSecs,
			},
		},
	}
}

type defaultOverrides struct {
	Mode            string
	MaxPages        *int
	Concurrency     *int
	RateLimit       *int
	TimeoutSecs     *int
	EnableJS        *bool
	NucleiTemplates string
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("defaults.mode") {
		overrides.Mode = viper.GetString("defaults.mode")
	}
	if viper.IsSet("defaults.max_pages") {
		val := viper.GetInt("defaults.max_pages")
		overrides.MaxPages = &val
	}
	if viper.IsSet("defaults.concurrency") {
		val := viper.GetInt("defaults.concurrency")
		overrides.Concurrency = &val
	}
	if viper.IsSet("defaults.rate_limit") {
		val := viper.GetInt("defaults.rate_limit")
		overrides.RateLimit = &val
	}
	if viper.IsSet("defaults.timeout_secs") {
		val := viper.GetInt("defaults.timeout_secs")
		overrides.TimeoutSecs = &val
	}
	if viper.IsSet("defaults.enable_js") {
		val := viper.GetBool("defaults.enable_js")
		overrides.EnableJS = &val
	}
	if viper.IsSet("defaults.nuclei_templates") {
		overrides.NucleiTemplates = viper.GetString("defaults.nuclei_templates")
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when
// the user did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()

	if overrides.Mode != "" {
		setStringFlagIfUnset(auditCmd.Flags(), "mode", overrides.Mode)
		cliConfig.Audit.Mode = overrides.Mode
	}
	if overrides.MaxPages != nil {
		applyIntDefault(auditCmd.Flags(), "max-pages", *overrides.MaxPages, func(v int) {
			cliConfig.Audit.MaxPages = v
		})
	}
	if overrides.Concurrency != nil {
		applyIntDefault(auditCmd.Flags(), "concurrency", *overrides.Concurrency, func(v int) {
			cliConfig.Audit.Concurrency = v
		})
	}
	if overrides.RateLimit != nil {
		applyIntDefault(auditCmd.Flags(), "rate-limit", *overrides.RateLimit, func(v int) {
			cliConfig.Audit.RateLimit = v
		})
	}
	if overrides.TimeoutSecs != nil {
		applyIntDefault(auditCmd.Flags(), "timeout", *overrides.TimeoutSecs, func(v int) {
			cliConfig.Audit.TimeoutSecs = v
		})
	}
	if overrides.EnableJS != nil {
		applyBoolDefault(auditCmd.Flags(), "enable-js", *overrides.EnableJS, func(v bool) {
			cliConfig.Audit.Crawl.EnableJS = v
		})
	}
	if overrides.NucleiTemplates != "" {
		setStringFlagIfUnset(auditCmd.Flags(), "nuclei-templates", overrides.NucleiTemplates)
		cliConfig.Audit.Tools.NucleiTemplates = overrides.NucleiTemplates
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
