package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/services"
)

var statusCmd = &cobra.Command{
	Use:     "status [endpoint]",
	Aliases: []string{"endpoints"},
	Short:   "Show endpoint state and delivery counters",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		var endpoints []services.EndpointInfo
		if len(args) == 1 {
			var info services.EndpointInfo
			if err := c.getJSON("/api/endpoints/"+args[0], &info); err != nil {
				return err
			}
			endpoints = append(endpoints, info)
		} else if err := c.getJSON("/api/endpoints", &endpoints); err != nil {
			return err
		}

		if jsonOut {
			return printJSON(endpoints)
		}
		printEndpoints(endpoints)
		return nil
	},
}

func printEndpoints(endpoints []services.EndpointInfo) {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tKIND\tSTATE\tSINCE\tDELIVERED\tFAILED\tSUPERSEDED\tLAST ERROR")
	for _, e := range endpoints {
		since := "-"
		if !e.Status.Since.IsZero() {
			since = time.Since(e.Status.Since).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Ref.Name, e.Ref.Kind, e.Status.State, since,
			e.Delivery.Delivered, e.Delivery.Failed, e.Delivery.Superseded, e.Status.LastError)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
