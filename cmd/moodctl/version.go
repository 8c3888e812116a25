package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/app"
)

// Set at build time via ldflags.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "moodctl version %s\n", app.Version)
		fmt.Fprintf(stdout, "Git commit: %s\n", GitCommit)
		fmt.Fprintf(stdout, "Built: %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
