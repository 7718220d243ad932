package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/webaudit-cli/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List, inspect and export persisted audit reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted audit reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		writer, err := report.NewWriter(reportsDir, logger)
		if err != nil {
			return err
		}
		ids, err := writer.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no reports found in", reportsDir)
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tTARGET\tSTATUS\tPAGES\tFINDINGS")
		for _, id := range ids {
			doc, err := writer.Load(id)
			if err != nil {
				logger.Warnw("skipping unreadable report", "run", id, "error", err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
				doc.RunID,
				doc.Target.Origin,
				formatRunStatus(string(doc.Status)),
				doc.Summary.PagesDiscovered,
				doc.Summary.TotalFindings)
		}
		return tw.Flush()
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one report's scan results and findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		writer, err := report.NewWriter(reportsDir, logger)
		if err != nil {
			return err
		}
		doc, err := writer.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colorBold("Run:"), doc.RunID)
		fmt.Printf("%s %s\n", colorBold("Target:"), doc.Target.Origin)
		fmt.Printf("%s %s\n", colorBold("Status:"), formatRunStatus(string(doc.Status)))
		fmt.Printf("%s %s -> %s\n\n", colorBold("When:"),
			doc.StartedAt.Format("2006-01-02 15:04:05"),
			doc.CompletedAt.Format("2006-01-02 15:04:05"))

		for _, scan := range doc.Scans {
			fmt.Printf("%s %s  [%s]\n", colorBold(scan.Scanner), scan.Target, formatScanStatus(scan.Status))
			keys := make([]string, 0, len(scan.Findings))
			for key := range scan.Findings {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				finding := scan.Findings[key]
				fmt.Printf("  %s %s: %s\n", formatSeverity(finding.Severity), key, finding.Detail)
			}
		}

		if len(doc.AuthChecks) > 0 {
			fmt.Println("\nAuthenticated flow checks (advisory):")
			for _, check := range doc.AuthChecks {
				fmt.Printf("  %-24s %s  %s\n", check.Name, formatAuthOutcome(check.Outcome), check.Evidence)
			}
		}
		return nil
	},
}

var (
	exportFormat string
	exportOutput string
)

var reportExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a report as pdf, html or json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		writer, err := report.NewWriter(reportsDir, logger)
		if err != nil {
			return err
		}
		doc, err := writer.Load(args[0])
		if err != nil {
			return err
		}

		format := strings.ToLower(exportFormat)
		out := exportOutput
		if out == "" {
			out = fmt.Sprintf("%s-report.%s", doc.RunID, format)
		}

		switch format {
		case "pdf":
			err = report.ExportPDF(doc, out)
		case "html":
			err = writer.RenderHTML(doc, out)
		case "json":
			err = copyReportFile(filepath.Join(writer.Root(), doc.RunID, "report.json"), out)
		default:
			return fmt.Errorf("unsupported export format %q (want pdf, html or json)", exportFormat)
		}
		if err != nil {
			return err
		}

		fmt.Printf("exported %s to %s\n", doc.RunID, out)
		return nil
	},
}

func copyReportFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func init() {
	reportExportCmd.Flags().StringVar(&exportFormat, "format", "pdf", "export format: pdf, html or json")
	reportExportCmd.Flags().StringVarP(&exportOutput, "output", "O", "", "output file path")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportExportCmd)
}
