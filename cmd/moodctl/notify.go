package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/services"
)

var (
	notifyEndpoint  string
	notifyIntensity float64
)

var notifyCmd = &cobra.Command{
	Use:   "notify <mood>",
	Short: "Send a mood to the endpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := services.MoodRequest{Mood: args[0], Endpoint: notifyEndpoint}
		if cmd.Flags().Changed("intensity") {
			req.Intensity = &notifyIntensity
		}

		var resp struct {
			IDs []string `json:"ids"`
		}
		if err := newClient().postJSON("/api/moods", req, &resp); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(resp)
		}
		for _, id := range resp.IDs {
			fmt.Fprintf(stdout, "queued %s %s\n", args[0], id)
		}
		return nil
	},
}

func init() {
	notifyCmd.Flags().StringVarP(&notifyEndpoint, "endpoint", "e", "", "Deliver to this endpoint only")
	notifyCmd.Flags().Float64VarP(&notifyIntensity, "intensity", "i", 0, "Detector intensity between 0 and 1")
	rootCmd.AddCommand(notifyCmd)
}
