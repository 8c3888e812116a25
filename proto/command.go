package proto

import (
	"fmt"
	"time"
)

type EndpointKind string

const (
	KindBroker EndpointKind = "broker" // publish to a shared MQTT topic
	KindPoll   EndpointKind = "poll"   // HTTP GET against a device address
)

// EndpointRef names a remote target. It is configured once and never
// modified by the delivery core.
type EndpointRef struct {
	Name         string       `json:"name"`
	Kind         EndpointKind `json:"kind"`
	Broker       string       `json:"broker,omitempty"`        // e.g. tcp://broker.hivemq.com:1883
	Topic        string       `json:"topic,omitempty"`         // publish topic
	InboundTopic string       `json:"inbound_topic,omitempty"` // subscribed on connect, defaults to Topic
	Address      string       `json:"address,omitempty"`       // device host[:port] or URL
}

// Key identifies the endpoint for the in-flight invariant.
func (e EndpointRef) Key() string {
	return e.Name
}

func (e EndpointRef) String() string {
	switch e.Kind {
	case KindBroker:
		return fmt.Sprintf("%s (%s %s)", e.Name, e.Broker, e.Topic)
	case KindPoll:
		return fmt.Sprintf("%s (http %s)", e.Name, e.Address)
	}
	return e.Name
}

// Command is the wire-level form of a MoodEvent for one endpoint.
type Command struct {
	ID       string      `json:"id"`
	Target   EndpointRef `json:"target"`
	Mood     Mood        `json:"mood"`
	Level    float64     `json:"level"`
	Payload  string      `json:"payload"`            // JSON for brokers, query string for poll devices
	Fallback bool        `json:"fallback,omitempty"` // label was unknown and resolved to DefaultMood
	IssuedAt time.Time   `json:"issued_at"`
}

// BrokerPayload is what gets published on the shared topic.
type BrokerPayload struct {
	Mood      string  `json:"mood"`
	Intensity float64 `json:"intensity"`
}

// DeliveryOutcome is the terminal result for one non-superseded command.
type DeliveryOutcome struct {
	Command     Command   `json:"command"`
	Success     bool      `json:"success"`
	Response    string    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`
	CompletedAt time.Time `json:"completed_at"`
}

func Succeeded(cmd Command, response string) DeliveryOutcome {
	return DeliveryOutcome{Command: cmd, Success: true, Response: response, CompletedAt: time.Now()}
}

func Failed(cmd Command, err error) DeliveryOutcome {
	return DeliveryOutcome{Command: cmd, Success: false, Error: err.Error(), Err: err, CompletedAt: time.Now()}
}
