package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mbocsi/moodsync/config"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "endpoint", "esp32")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info to be filtered, got %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"endpoint":"esp32"`) {
		t.Errorf("Expected JSON warn record, got %s", out)
	}

	buf.Reset()
	logger = setupLogger(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug to be enabled")
	}
	logger.Debug("text record")
	if !strings.Contains(buf.String(), "msg=\"text record\"") {
		t.Errorf("Expected text record, got %s", buf.String())
	}
}

func TestLoadConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := loadConfig(missing, false)
	if err != nil {
		t.Fatalf("Expected defaults for missing default path, got %v", err)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Topic != "MOODSYNC" {
		t.Errorf("Expected default broker endpoint, got %+v", cfg.Endpoints)
	}

	if _, err := loadConfig(missing, true); err == nil {
		t.Error("Expected error for missing explicit config")
	}

	path := filepath.Join(t.TempDir(), "moodsync.toml")
	os.WriteFile(path, []byte("[server]\nbind = \"127.0.0.1:9999\"\n"), 0o600)
	cfg, err = loadConfig(path, true)
	if err != nil || cfg.Server.Bind != "127.0.0.1:9999" {
		t.Errorf("Expected bind from file, got %+v %v", cfg.Server, err)
	}
}
