// Package config loads the moodsyncd configuration file. TOML is the primary
// format; files ending in .yaml or .yml are read as YAML. Values missing from
// the file keep the defaults from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mbocsi/moodsync/proto"
	"github.com/mbocsi/moodsync/transport"
)

type Config struct {
	Logging   LoggingConfig    `toml:"logging"   yaml:"logging"   json:"logging"`
	Server    ServerConfig     `toml:"server"    yaml:"server"    json:"server"`
	MCP       MCPConfig        `toml:"mcp"       yaml:"mcp"       json:"mcp"`
	Delivery  DeliveryConfig   `toml:"delivery"  yaml:"delivery"  json:"delivery"`
	Endpoints []EndpointConfig `toml:"endpoints" yaml:"endpoints" json:"endpoints"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  yaml:"level"  json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"` // json or text
}

type ServerConfig struct {
	Bind string `toml:"bind" yaml:"bind" json:"bind"`
}

type MCPConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" json:"enabled"`
}

type DeliveryConfig struct {
	OutcomeHistory int `toml:"outcome_history" yaml:"outcome_history" json:"outcome_history"`
}

type EndpointConfig struct {
	Name             string `toml:"name"               yaml:"name"               json:"name"`
	Kind             string `toml:"kind"               yaml:"kind"               json:"kind"`
	Broker           string `toml:"broker"             yaml:"broker"             json:"broker,omitempty"`
	Topic            string `toml:"topic"              yaml:"topic"              json:"topic,omitempty"`
	InboundTopic     string `toml:"inbound_topic"      yaml:"inbound_topic"      json:"inbound_topic,omitempty"`
	ClientIDPrefix   string `toml:"client_id_prefix"   yaml:"client_id_prefix"   json:"client_id_prefix,omitempty"`
	Address          string `toml:"address"            yaml:"address"            json:"address,omitempty"`
	Discover         bool   `toml:"discover"           yaml:"discover"           json:"discover,omitempty"`
	MDNSService      string `toml:"mdns_service"       yaml:"mdns_service"       json:"mdns_service,omitempty"`
	ConnectTimeoutMS int    `toml:"connect_timeout_ms" yaml:"connect_timeout_ms" json:"connect_timeout_ms,omitempty"`
	SendTimeoutMS    int    `toml:"send_timeout_ms"    yaml:"send_timeout_ms"    json:"send_timeout_ms,omitempty"`
	AutoConnect      bool   `toml:"auto_connect"       yaml:"auto_connect"       json:"auto_connect"`
}

func Default() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Server:   ServerConfig{Bind: "0.0.0.0:8090"},
		MCP:      MCPConfig{Enabled: false},
		Delivery: DeliveryConfig{OutcomeHistory: 64},
	}
}

// DefaultBrokerEndpoint matches the public broker and topic the mobile app
// publishes to.
func DefaultBrokerEndpoint() EndpointConfig {
	return EndpointConfig{
		Name:           "moodsync",
		Kind:           string(proto.KindBroker),
		Broker:         "tcp://broker.hivemq.com:1883",
		Topic:          "MOODSYNC",
		ClientIDPrefix: transport.DefaultClientIDPrefix,
		AutoConnect:    true,
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = toml.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []EndpointConfig{DefaultBrokerEndpoint()}
	}
	for i := range cfg.Endpoints {
		cfg.Endpoints[i].applyDefaults()
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (e *EndpointConfig) applyDefaults() {
	switch proto.EndpointKind(e.Kind) {
	case proto.KindBroker:
		if e.ClientIDPrefix == "" {
			e.ClientIDPrefix = transport.DefaultClientIDPrefix
		}
	case proto.KindPoll:
		if e.ConnectTimeoutMS == 0 {
			e.ConnectTimeoutMS = int(transport.DefaultConnectTimeout / time.Millisecond)
		}
		if e.SendTimeoutMS == 0 {
			e.SendTimeoutMS = int(transport.DefaultSendTimeout / time.Millisecond)
		}
		if e.Discover && e.MDNSService == "" {
			e.MDNSService = transport.DefaultMDNSService
		}
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func Validate(cfg Config) error {
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("logging.format %q must be json or text", cfg.Logging.Format)
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Delivery.OutcomeHistory < 1 {
		return errors.New("delivery.outcome_history must be >= 1")
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoints[%d].name must not be empty", i)
		}
		if seen[ep.Name] {
			return fmt.Errorf("endpoint %q is defined twice", ep.Name)
		}
		seen[ep.Name] = true

		switch proto.EndpointKind(ep.Kind) {
		case proto.KindBroker:
			if ep.Broker == "" || ep.Topic == "" {
				return fmt.Errorf("endpoint %q: broker and topic are required", ep.Name)
			}
		case proto.KindPoll:
			if ep.Address == "" && !ep.Discover {
				return fmt.Errorf("endpoint %q: address is required unless discover is set", ep.Name)
			}
			if ep.ConnectTimeoutMS < 0 || ep.SendTimeoutMS < 0 {
				return fmt.Errorf("endpoint %q: timeouts must be >= 0", ep.Name)
			}
		default:
			return fmt.Errorf("endpoint %q: kind %q must be broker or poll", ep.Name, ep.Kind)
		}
	}
	return nil
}

func (e EndpointConfig) Ref() proto.EndpointRef {
	return proto.EndpointRef{
		Name:         e.Name,
		Kind:         proto.EndpointKind(e.Kind),
		Broker:       e.Broker,
		Topic:        e.Topic,
		InboundTopic: e.InboundTopic,
		Address:      e.Address,
	}
}

func (e EndpointConfig) TransportOptions() transport.Options {
	return transport.Options{
		ClientIDPrefix: e.ClientIDPrefix,
		ConnectTimeout: time.Duration(e.ConnectTimeoutMS) * time.Millisecond,
		SendTimeout:    time.Duration(e.SendTimeoutMS) * time.Millisecond,
		Discover:       e.Discover,
		MDNSService:    e.MDNSService,
	}
}
