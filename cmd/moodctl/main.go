// Moodctl talks to a running moodsyncd over its HTTP API.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
