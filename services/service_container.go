package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbocsi/moodsync/delivery"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/proto"
)

// ServiceManager wires endpoints into a coordinator and exposes them as services
type ServiceManager struct {
	coord     *delivery.Coordinator
	endpoints *EndpointServiceImpl
	delivery  *DeliveryServiceImpl
	events    *eventBus

	services *ServiceContainer
}

// NewServiceManager registers every endpoint with coord and builds the
// service container. history bounds the retained outcomes.
func NewServiceManager(coord *delivery.Coordinator, endpoints []Endpoint, history int) (*ServiceManager, error) {
	sm := &ServiceManager{
		coord:     coord,
		endpoints: NewEndpointService(coord, endpoints),
		delivery:  NewDeliveryService(coord, history),
		events:    newEventBus(),
	}

	for _, ep := range endpoints {
		if err := coord.Register(ep.Manager); err != nil {
			return nil, err
		}
		ep.Manager.OnStateChange(func(ev lifecycle.StateChange) {
			sm.events.publish(Event{Type: EventState, State: &ev})
		})
	}

	coord.OnOutcome(func(o proto.DeliveryOutcome) {
		sm.delivery.record(o)
		sm.events.publish(Event{Type: EventOutcome, Outcome: &o})
	})

	sm.services = &ServiceContainer{
		Delivery: sm.delivery,
		Endpoint: sm.endpoints,
		Events:   sm.events,
	}
	return sm, nil
}

// GetServices returns the service container
func (sm *ServiceManager) GetServices() *ServiceContainer {
	return sm.services
}

// ConnectAll connects the named endpoints, each bounded by timeout.
func (sm *ServiceManager) ConnectAll(ctx context.Context, names []string, timeout time.Duration) {
	sm.endpoints.ConnectAll(ctx, names, timeout)
}

// Shutdown stops delivery and closes every endpoint session.
func (sm *ServiceManager) Shutdown() {
	sm.coord.Close()
	sm.endpoints.disconnectAll()
	slog.Info("Delivery stopped")
}
