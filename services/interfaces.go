package services

import (
	"context"

	"github.com/mbocsi/moodsync/proto"
)

// DeliveryService handles mood submission and outcome history
type DeliveryService interface {
	NotifyMood(req MoodRequest) ([]string, error)
	Moods() []proto.MoodInfo
	RecentOutcomes(n int) []proto.DeliveryOutcome
}

// EndpointService handles endpoint status and connection lifecycle
type EndpointService interface {
	ListEndpoints() ([]EndpointInfo, error)
	GetEndpoint(name string) (*EndpointInfo, error)
	Connect(ctx context.Context, name string) error
	Disconnect(name string) error
}

// EventService fans state changes and outcomes out to live subscribers
type EventService interface {
	Subscribe(fn func(Event)) (unsubscribe func())
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Delivery DeliveryService
	Endpoint EndpointService
	Events   EventService
}
