package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/services"
)

var connectCmd = &cobra.Command{
	Use:   "connect <endpoint>",
	Short: "Open a session to an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return endpointAction(args[0], "connect")
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <endpoint>",
	Short: "Close the session to an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return endpointAction(args[0], "disconnect")
	},
}

func endpointAction(name, action string) error {
	var info services.EndpointInfo
	if err := newClient().postJSON("/api/endpoints/"+name+"/"+action, nil, &info); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(info)
	}
	fmt.Fprintf(stdout, "%s: %s\n", info.Ref.Name, info.Status.State)
	return nil
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}
