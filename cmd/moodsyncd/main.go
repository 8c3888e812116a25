// Moodsyncd delivers detected moods to LED endpoints over MQTT or HTTP.
//
// It loads configuration, connects the auto_connect endpoints and serves the
// HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mbocsi/moodsync/app"
	"github.com/mbocsi/moodsync/config"
)

const defaultConfigPath = "/etc/moodsync/moodsync.toml"

func main() {
	var (
		configPath = pflag.StringP("config", "c", defaultConfigPath, "Path to config TOML or YAML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		logLevel   = pflag.String("log-level", "", "Log level: debug, info, warn, error")
		enableMCP  = pflag.Bool("mcp", false, "Serve MCP tools over stdio")
	)
	pflag.Parse()

	cfg, err := loadConfig(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		slog.Error("Config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *enableMCP {
		cfg.MCP.Enabled = true
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// stdout belongs to the MCP transport, so logs always go to stderr.
	slog.SetDefault(setupLogger(os.Stderr, cfg.Logging))

	a, err := app.New(app.Options{Cfg: cfg})
	if err != nil {
		slog.Error("Startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting moodsyncd", "version", app.Version, "endpoints", len(cfg.Endpoints), "mcp", cfg.MCP.Enabled)
	if err := a.Run(ctx); err != nil {
		slog.Error("moodsyncd failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default path does not exist.
// An explicitly named file must exist.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.Endpoints = []config.EndpointConfig{config.DefaultBrokerEndpoint()}
		return cfg, nil
	}
	return cfg, err
}

func setupLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
