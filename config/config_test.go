package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mbocsi/moodsync/proto"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "moodsync.toml", `
[logging]
level = "debug"
format = "text"

[server]
bind = "127.0.0.1:9000"

[[endpoints]]
name = "hivemq"
kind = "broker"
broker = "tcp://broker.hivemq.com:1883"
topic = "MOODSYNC"
auto_connect = true

[[endpoints]]
name = "esp32"
kind = "poll"
address = "192.168.4.1"
send_timeout_ms = 1500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Expected debug/text logging, got %+v", cfg.Logging)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" {
		t.Errorf("Expected bind 127.0.0.1:9000, got %s", cfg.Server.Bind)
	}
	if cfg.Delivery.OutcomeHistory != 64 {
		t.Errorf("Expected default outcome history, got %d", cfg.Delivery.OutcomeHistory)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(cfg.Endpoints))
	}

	broker := cfg.Endpoints[0]
	if broker.ClientIDPrefix != "MoodApp_" {
		t.Errorf("Expected default client id prefix, got %q", broker.ClientIDPrefix)
	}
	if ref := broker.Ref(); ref.Kind != proto.KindBroker || ref.Topic != "MOODSYNC" {
		t.Errorf("Expected broker ref on MOODSYNC, got %+v", ref)
	}

	poll := cfg.Endpoints[1]
	opts := poll.TransportOptions()
	if opts.ConnectTimeout != 3*time.Second {
		t.Errorf("Expected 3s connect timeout, got %v", opts.ConnectTimeout)
	}
	if opts.SendTimeout != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s send timeout, got %v", opts.SendTimeout)
	}
	if poll.AutoConnect {
		t.Error("Expected auto_connect to default to false")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "moodsync.yaml", `
logging:
  level: warn
endpoints:
  - name: esp32
    kind: poll
    discover: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected YAML config to load, got %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("Expected warn/json logging, got %+v", cfg.Logging)
	}
	ep := cfg.Endpoints[0]
	if !ep.Discover || ep.MDNSService != "_moodsync-led._tcp" {
		t.Errorf("Expected mDNS discovery defaults, got %+v", ep)
	}
}

func TestLoad_DefaultEndpoint(t *testing.T) {
	path := writeFile(t, "empty.toml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected empty config to load, got %v", err)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Topic != "MOODSYNC" {
		t.Errorf("Expected default MOODSYNC broker endpoint, got %+v", cfg.Endpoints)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty bind", func(c *Config) { c.Server.Bind = "" }, "server.bind"},
		{"no history", func(c *Config) { c.Delivery.OutcomeHistory = 0 }, "outcome_history"},
		{"unnamed endpoint", func(c *Config) {
			c.Endpoints = []EndpointConfig{{Kind: "poll", Address: "1.2.3.4"}}
		}, "name"},
		{"duplicate endpoint", func(c *Config) {
			c.Endpoints = []EndpointConfig{{Name: "a", Kind: "poll", Address: "x"}, {Name: "a", Kind: "poll", Address: "y"}}
		}, "twice"},
		{"broker without topic", func(c *Config) {
			c.Endpoints = []EndpointConfig{{Name: "b", Kind: "broker", Broker: "tcp://x:1883"}}
		}, "topic"},
		{"poll without address", func(c *Config) {
			c.Endpoints = []EndpointConfig{{Name: "p", Kind: "poll"}}
		}, "address"},
		{"unknown kind", func(c *Config) {
			c.Endpoints = []EndpointConfig{{Name: "z", Kind: "serial"}}
		}, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := Validate(Default()); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}
