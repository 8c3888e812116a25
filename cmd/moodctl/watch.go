package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mbocsi/moodsync/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream state changes and delivery outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := wsURL(host)
		if err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		done := make(chan error, 1)
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					done <- err
					return
				}
				if jsonOut {
					fmt.Fprintln(stdout, string(msg))
					continue
				}
				var ev services.Event
				if err := json.Unmarshal(msg, &ev); err == nil {
					fmt.Fprintln(stdout, formatEvent(ev))
				}
			}
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case <-sig:
			return nil
		case err := <-done:
			return err
		}
	},
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func formatEvent(ev services.Event) string {
	switch {
	case ev.Type == services.EventState && ev.State != nil:
		s := fmt.Sprintf("%s  %-10s %s -> %s", ev.State.At.Local().Format("15:04:05"), ev.State.Endpoint, ev.State.From, ev.State.To)
		if ev.State.Error != "" {
			s += "  (" + ev.State.Error + ")"
		}
		return s
	case ev.Type == services.EventOutcome && ev.Outcome != nil:
		o := ev.Outcome
		return fmt.Sprintf("%s  %-10s %s %.2f %s", o.CompletedAt.Local().Format("15:04:05"), o.Command.Target.Name, o.Command.Mood, o.Command.Level, outcomeResult(*o))
	}
	return string(ev.Type)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
