package app

import (
	"fmt"

	"github.com/mbocsi/moodsync/config"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/proto"
	"github.com/mbocsi/moodsync/services"
	"github.com/mbocsi/moodsync/transport"
)

// TransportFactory builds the transport for one configured endpoint.
type TransportFactory func(ep proto.EndpointRef, opts transport.Options) (transport.Transport, error)

// buildEndpoints creates one transport and lifecycle manager per endpoint,
// in configuration order. Broker transports report inbound messages to onMessage.
func buildEndpoints(cfgs []config.EndpointConfig, newTransport TransportFactory, onMessage func(proto.EndpointRef, []byte)) ([]services.Endpoint, error) {
	endpoints := make([]services.Endpoint, 0, len(cfgs))
	for _, c := range cfgs {
		ref := c.Ref()
		t, err := newTransport(ref, c.TransportOptions())
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", ref.Name, err)
		}
		if bt, ok := t.(*transport.BrokerTransport); ok && onMessage != nil {
			bt.OnMessage(onMessage)
		}
		endpoints = append(endpoints, services.Endpoint{
			Manager:   lifecycle.NewManager(ref, t),
			Transport: t,
		})
	}
	return endpoints, nil
}

func autoConnectNames(cfgs []config.EndpointConfig) []string {
	var names []string
	for _, c := range cfgs {
		if c.AutoConnect {
			names = append(names, c.Name)
		}
	}
	return names
}
