package services

import (
	"context"
	"errors"
	"time"

	"github.com/mbocsi/moodsync/delivery"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/transport"
)

// Endpoint pairs a lifecycle manager with the transport it drives.
type Endpoint struct {
	Manager   *lifecycle.Manager
	Transport transport.Transport
}

// EndpointServiceImpl implements EndpointService
type EndpointServiceImpl struct {
	coord     *delivery.Coordinator
	order     []string
	endpoints map[string]Endpoint
}

// NewEndpointService creates a new endpoint service
func NewEndpointService(coord *delivery.Coordinator, endpoints []Endpoint) *EndpointServiceImpl {
	es := &EndpointServiceImpl{
		coord:     coord,
		endpoints: make(map[string]Endpoint, len(endpoints)),
	}
	for _, ep := range endpoints {
		name := ep.Manager.Endpoint().Key()
		es.order = append(es.order, name)
		es.endpoints[name] = ep
	}
	return es
}

// ListEndpoints returns all endpoints in configuration order
func (es *EndpointServiceImpl) ListEndpoints() ([]EndpointInfo, error) {
	result := make([]EndpointInfo, 0, len(es.order))
	for _, name := range es.order {
		result = append(result, es.info(es.endpoints[name]))
	}
	return result, nil
}

// GetEndpoint returns a specific endpoint by name
func (es *EndpointServiceImpl) GetEndpoint(name string) (*EndpointInfo, error) {
	ep, ok := es.endpoints[name]
	if !ok {
		return nil, notFound(name)
	}
	info := es.info(ep)
	return &info, nil
}

// Connect establishes a session to the named endpoint
func (es *EndpointServiceImpl) Connect(ctx context.Context, name string) error {
	ep, ok := es.endpoints[name]
	if !ok {
		return notFound(name)
	}

	err := ep.Manager.Connect(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lifecycle.ErrConnectInProgress), errors.Is(err, lifecycle.ErrAborted):
		return ServiceError{Code: ErrCodeConflict, Message: "Connect to " + name + " did not complete", Cause: err}
	case transport.IsTimeout(err):
		return ServiceError{Code: ErrCodeTimeout, Message: "Connect to " + name + " timed out", Cause: err}
	default:
		return ServiceError{Code: ErrCodeUnavailable, Message: "Connect to " + name + " failed", Cause: err}
	}
}

// Disconnect closes the session to the named endpoint
func (es *EndpointServiceImpl) Disconnect(name string) error {
	ep, ok := es.endpoints[name]
	if !ok {
		return notFound(name)
	}
	if err := ep.Manager.Disconnect(); err != nil {
		return ServiceError{Code: ErrCodeInternal, Message: "Disconnect from " + name + " failed", Cause: err}
	}
	return nil
}

// ConnectAll connects the named endpoints concurrently and returns once
// every attempt has finished. Failures are left in each endpoint's status.
func (es *EndpointServiceImpl) ConnectAll(ctx context.Context, names []string, timeout time.Duration) {
	done := make(chan struct{}, len(names))
	for _, name := range names {
		go func(name string) {
			defer func() { done <- struct{}{} }()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			es.Connect(cctx, name)
		}(name)
	}
	for range names {
		<-done
	}
}

func (es *EndpointServiceImpl) disconnectAll() {
	for _, name := range es.order {
		es.endpoints[name].Manager.Disconnect()
	}
}

func (es *EndpointServiceImpl) info(ep Endpoint) EndpointInfo {
	ref := ep.Manager.Endpoint()
	info := EndpointInfo{
		Ref:    ref,
		Status: ep.Manager.Status(),
	}
	if stats, ok := es.coord.Stats(ref.Key()); ok {
		info.Delivery = stats
	}
	if bt, ok := ep.Transport.(*transport.BrokerTransport); ok {
		info.Received = bt.Received()
	}
	return info
}

func notFound(name string) ServiceError {
	return ServiceError{Code: ErrCodeNotFound, Message: "Endpoint not found: " + name}
}
