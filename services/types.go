package services

import (
	"github.com/mbocsi/moodsync/delivery"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/proto"
)

// EndpointInfo represents one configured endpoint for the service layer
type EndpointInfo struct {
	Ref      proto.EndpointRef `json:"endpoint"`
	Status   lifecycle.Status  `json:"status"`
	Delivery delivery.Stats    `json:"delivery"`
	Received uint64            `json:"received,omitempty"` // inbound broker messages
}

// MoodRequest is a mood submitted by a detector or operator. An empty
// Endpoint fans out to every endpoint.
type MoodRequest struct {
	Mood      string   `json:"mood"`
	Intensity *float64 `json:"intensity,omitempty"`
	Endpoint  string   `json:"endpoint,omitempty"`
}

type EventType string

const (
	EventState   EventType = "state"
	EventOutcome EventType = "outcome"
)

// Event is pushed to live subscribers such as the websocket hub
type Event struct {
	Type    EventType              `json:"type"`
	State   *lifecycle.StateChange `json:"state,omitempty"`
	Outcome *proto.DeliveryOutcome `json:"outcome,omitempty"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error { return e.Cause }

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeUnavailable  = "UNAVAILABLE"
)
