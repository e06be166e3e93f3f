package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// newPreflightCmd creates the 'preflight' subcommand, which probes collector
// availability without running a collection.
func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check which collectors can run with the configured credentials",
		RunE:  runPreflightCommand,
	}
}

func runPreflightCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	statuses := appInstance.Orchestrator().Probe()
	available := 0
	for _, s := range statuses {
		if s.Available {
			available++
			detail := "no credentials required"
			if s.KeyInUse != "" {
				detail = "using " + s.KeyInUse
			}
			cmd.Printf("  ok    %-12s %s\n", s.Collector, detail)
			continue
		}
		cmd.Printf("  MISS  %-12s missing %s\n", s.Collector, strings.Join(s.MissingKeys, ", "))
	}
	cmd.Printf("\n%d of %d collectors available\n", available, len(statuses))
	return nil
}
