package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/proto"
)

var outcomesLimit int

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Show recent delivery outcomes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var outcomes []proto.DeliveryOutcome
		if err := newClient().getJSON("/api/outcomes?limit="+strconv.Itoa(outcomesLimit), &outcomes); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(outcomes)
		}

		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tENDPOINT\tMOOD\tLEVEL\tRESULT")
		for _, o := range outcomes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
				o.CompletedAt.Local().Format(time.TimeOnly), o.Command.Target.Name, o.Command.Mood, o.Command.Level, outcomeResult(o))
		}
		return tw.Flush()
	},
}

func outcomeResult(o proto.DeliveryOutcome) string {
	if o.Success {
		if o.Response != "" {
			return "ok (" + o.Response + ")"
		}
		return "ok"
	}
	return "failed: " + o.Error
}

func init() {
	outcomesCmd.Flags().IntVarP(&outcomesLimit, "limit", "n", 20, "Maximum number of outcomes")
	rootCmd.AddCommand(outcomesCmd)
}
