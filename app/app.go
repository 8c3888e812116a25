// Package app assembles the moodsync daemon from its configuration: one
// transport and lifecycle manager per endpoint, the delivery coordinator,
// the HTTP API and an optional stdio MCP server.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mbocsi/moodsync/config"
	"github.com/mbocsi/moodsync/delivery"
	"github.com/mbocsi/moodsync/mcp"
	"github.com/mbocsi/moodsync/services"
	"github.com/mbocsi/moodsync/transport"
	"github.com/mbocsi/moodsync/web"
)

const (
	Name    = "moodsync"
	Version = "0.1.0"
)

type Options struct {
	Cfg config.Config
	// NewTransport defaults to transport.New.
	NewTransport TransportFactory
}

type App struct {
	cfg       config.Config
	services  *services.ServiceManager
	web       *web.Server
	mcpServer *mcp.MCPServer
	autoNames []string
}

func New(opts Options) (*App, error) {
	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = transport.New
	}

	a := &App{cfg: opts.Cfg, autoNames: autoConnectNames(opts.Cfg.Endpoints)}

	endpoints, err := buildEndpoints(opts.Cfg.Endpoints, newTransport, a.HandleInbound)
	if err != nil {
		return nil, err
	}

	sm, err := services.NewServiceManager(delivery.NewCoordinator(), endpoints, opts.Cfg.Delivery.OutcomeHistory)
	if err != nil {
		return nil, err
	}
	a.services = sm
	a.web = web.NewServer(sm.GetServices())

	if opts.Cfg.MCP.Enabled {
		a.mcpServer = mcp.NewMCPServer(Name, Version)
		mcp.NewMoodTools(sm.GetServices()).Register(a.mcpServer)
	}
	return a, nil
}

func (a *App) Services() *services.ServiceContainer {
	return a.services.GetServices()
}

func (a *App) Handler() http.Handler {
	return a.web.Routes()
}

// Run serves until ctx is cancelled, then stops delivery and closes every
// endpoint session.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Bind)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.web.Run(ctx)

	if a.mcpServer != nil {
		go func() {
			if err := a.mcpServer.Run(); err != nil {
				slog.Error("MCP server stopped", "error", err)
			}
		}()
	}

	if len(a.autoNames) > 0 {
		go a.services.ConnectAll(ctx, a.autoNames, 10*time.Second)
	}

	srv := web.NewHTTPServer(ln.Addr().String(), a.web.Routes())
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			cancel()
			a.services.Shutdown()
			return err
		}
	}

	slog.Info("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	a.services.Shutdown()
	return nil
}
