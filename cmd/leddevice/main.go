// Leddevice simulates an LED endpoint for local testing. It serves the
// liveness probe and command routes on HTTP and can advertise itself over
// mDNS so moodsyncd can discover it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/spf13/pflag"

	"github.com/mbocsi/moodsync/transport"
)

func main() {
	var (
		bind      = pflag.String("bind", "0.0.0.0:8081", "HTTP bind address")
		advertise = pflag.Bool("mdns", true, "Advertise over mDNS")
		service   = pflag.String("mdns-service", transport.DefaultMDNSService, "mDNS service type")
		instance  = pflag.String("name", "moodsync-led", "mDNS instance name")
	)
	pflag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ln, err := net.Listen("tcp", *bind)
	if err != nil {
		slog.Error("Listen failed", "addr", *bind, "error", err)
		os.Exit(1)
	}

	if *advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		server, err := advertiseService(*instance, *service, port)
		if err != nil {
			slog.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer server.Shutdown()
			slog.Info("Advertising over mDNS", "service", *service, "instance", *instance, "port", port)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Handler: (&ledDevice{}).Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("LED device listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("LED device failed", "error", err)
		os.Exit(1)
	}
}

func advertiseService(instance, service string, port int) (*mdns.Server, error) {
	zone, err := mdns.NewMDNSService(instance, service, "", "", port, nil, []string{"moodsync=1", "port=" + strconv.Itoa(port)})
	if err != nil {
		return nil, err
	}
	return mdns.NewServer(&mdns.Config{Zone: zone})
}
