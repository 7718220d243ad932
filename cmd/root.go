package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	reportsDir string
	verbose    bool
	logger     *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "webaudit",
	Short: "Website audit engine: crawl a site and run security and performance scanners against it",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".webaudit-cli")
			viper.SetConfigType("yaml")
		}
		_ = viper.ReadInConfig()

		if !cmd.Flags().Changed("reports-dir") {
			if fromConfig := viper.GetString("reports_dir"); fromConfig != "" {
				reportsDir = fromConfig
			}
		}
		if reportsDir == "" {
			reportsDir = "./reports"
		}
		if abs, err := filepath.Abs(reportsDir); err == nil {
			reportsDir = abs
		}
		if err := os.MkdirAll(reportsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create reports directory: %s", err.Error())
		}

		// init logger
		var l *zap.Logger
		if verbose {
			l, _ = zap.NewDevelopment()
		} else {
			l, _ = zap.NewProduction()
		}
		logger = l.Sugar()

		applyConfigDefaults(cmd)

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.webaudit-cli.yaml)")
	rootCmd.PersistentFlags().StringVar(&reportsDir, "reports-dir", "", "directory reports are written to (default ./reports)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (development) logging")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}
