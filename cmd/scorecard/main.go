package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scorecard",
		Short: "Offline performance analytics over exported test results",
		Long: "scorecard runs the performance aggregation pipeline over JSON exports\n" +
			"of test results and SWOT reports and prints the derived views as JSON.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newReportCmd())
	root.AddCommand(newSwotCmd())
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
