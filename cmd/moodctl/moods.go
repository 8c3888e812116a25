package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/proto"
)

var moodsCmd = &cobra.Command{
	Use:   "moods",
	Short: "List known moods and their LED levels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var moods []proto.MoodInfo
		if err := newClient().getJSON("/api/moods", &moods); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(moods)
		}

		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MOOD\t\tLEVEL\tRANGE\tCOLOR")
		for _, m := range moods {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f-%.2f\t%s\n", m.Name, m.Emoji, m.Level, m.Range[0], m.Range[1], m.Color)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(moodsCmd)
}
