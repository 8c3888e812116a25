package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	host    string
	jsonOut bool

	// stdout is swapped in tests.
	stdout io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "moodctl",
	Short: "Control a moodsync daemon",
	Long: `moodctl sends moods to a running moodsyncd and inspects its endpoints.

  notify      Send a mood to every endpoint or to one
  status      Show endpoint connection state and delivery counters
  connect     Open a session to an endpoint
  disconnect  Close a session
  moods       List known moods and their LED levels
  outcomes    Show recent delivery outcomes
  watch       Stream state changes and outcomes`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "http://127.0.0.1:8090", "moodsyncd URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output raw JSON instead of formatted text")
}

func newClient() *client {
	return &client{baseURL: host}
}
