package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/moltpulse/moltpulse/internal/orchestrator"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

type runFlags struct {
	domain            string
	profile           string
	reportType        string
	days              int
	limit             int
	retries           int
	timeout           time.Duration
	deadline          time.Duration
	collectors        []string
	excludeCollectors []string
	noCache           bool
	quick             bool
	deep              bool
	showTrace         bool
}

// newRunCmd creates the 'run' subcommand, which executes one collection run
// and prints the assembled report.
func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one collection and print the report",
		Long: `Collects items for the given domain and profile, scores and deduplicates
them, and prints the assembled report as Markdown. The report is also
archived and the run trace persisted according to configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunCommand(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.domain, "domain", "", "domain to collect for (required)")
	cmd.Flags().StringVar(&flags.profile, "profile", "default", "profile within the domain")
	cmd.Flags().StringVar(&flags.reportType, "report", "", "report type (default: first type the domain defines)")
	cmd.Flags().IntVar(&flags.days, "days", 0, "days back to collect (default from configuration)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum items in the report (0: no limit)")
	cmd.Flags().IntVar(&flags.retries, "retry", 0, "retries per collector after an error")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-collector timeout override")
	cmd.Flags().DurationVar(&flags.deadline, "deadline", 0, "whole-run deadline override (default from configuration)")
	cmd.Flags().StringSliceVar(&flags.collectors, "collectors", nil, "restrict to the named collectors")
	cmd.Flags().StringSliceVar(&flags.excludeCollectors, "exclude-collectors", nil, "exclude the named collectors")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "bypass cached API responses")
	cmd.Flags().BoolVar(&flags.quick, "quick", false, "quick depth preset (fewer items, shorter timeouts)")
	cmd.Flags().BoolVar(&flags.deep, "deep", false, "deep depth preset (more items, longer timeouts)")
	cmd.Flags().BoolVar(&flags.showTrace, "trace", false, "print the execution trace JSON after the report")
	_ = cmd.MarkFlagRequired("domain")
	cmd.MarkFlagsMutuallyExclusive("quick", "deep")

	return cmd
}

func runRunCommand(cmd *cobra.Command, flags runFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	depth := pulse.DepthDefault
	switch {
	case flags.quick:
		depth = pulse.DepthQuick
	case flags.deep:
		depth = pulse.DepthDeep
	}

	res, err := appInstance.Orchestrator().Run(cmd.Context(), orchestrator.RunParams{
		Domain:            flags.domain,
		Profile:           flags.profile,
		ReportType:        flags.reportType,
		Depth:             depth,
		Days:              flags.days,
		Limit:             flags.limit,
		Retries:           flags.retries,
		Timeout:           flags.timeout,
		Deadline:          flags.deadline,
		Collectors:        flags.collectors,
		ExcludeCollectors: flags.excludeCollectors,
		NoCache:           flags.noCache,
	})
	if err != nil {
		if res != nil && res.Trace != nil && flags.showTrace {
			printTrace(cmd, res)
		}
		return fmt.Errorf("run failed: %w", err)
	}

	cmd.Print(res.Report.RenderMarkdown())
	for _, ct := range res.Trace.Collectors {
		switch {
		case ct.Skipped:
			cmd.Printf("Skipped %s: %s\n", ct.Name, ct.SkipReason)
		case !ct.Success:
			cmd.Printf("Failed %s: %s\n", ct.Name, ct.Error)
		}
	}
	if res.ReportURI != "" {
		cmd.Printf("\nArchived: %s\n", res.ReportURI)
	}
	if flags.showTrace {
		printTrace(cmd, res)
	}
	return nil
}

func printTrace(cmd *cobra.Command, res *orchestrator.RunResult) {
	data, err := json.MarshalIndent(res.Trace, "", "  ")
	if err != nil {
		cmd.PrintErrln("Error rendering trace:", err)
		return
	}
	cmd.Println(string(data))
}
