package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/mbocsi/moodsync/proto"
)

// brokerClient is the subset of mqtt.Client the broker transport uses.
type brokerClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// BrokerTransport publishes commands to a shared MQTT topic at QoS 0. A send
// succeeds once the broker client has handed the publish off; nothing
// confirms that the device received it.
type BrokerTransport struct {
	ClientIDPrefix string

	newClient func(*mqtt.ClientOptions) brokerClient

	mu        sync.RWMutex
	onLost    func(Handle, error)
	onMessage func(proto.EndpointRef, []byte)

	received atomic.Uint64
}

type brokerHandle struct {
	ep     proto.EndpointRef
	client brokerClient
}

func (h *brokerHandle) Endpoint() proto.EndpointRef { return h.ep }

func NewBrokerTransport() *BrokerTransport {
	return &BrokerTransport{
		ClientIDPrefix: DefaultClientIDPrefix,
		newClient: func(opts *mqtt.ClientOptions) brokerClient {
			return mqtt.NewClient(opts)
		},
	}
}

func (t *BrokerTransport) Kind() proto.EndpointKind { return proto.KindBroker }

func (t *BrokerTransport) OnConnectionLost(fn func(Handle, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = fn
}

// OnMessage registers a handler for messages arriving on the inbound topic.
func (t *BrokerTransport) OnMessage(fn func(proto.EndpointRef, []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// Received is the number of inbound messages seen across all sessions.
func (t *BrokerTransport) Received() uint64 {
	return t.received.Load()
}

func (t *BrokerTransport) Connect(ctx context.Context, ep proto.EndpointRef) (Handle, error) {
	if ep.Broker == "" || ep.Topic == "" {
		return nil, &ConnectError{Endpoint: ep.Name, Err: fmt.Errorf("broker and topic are required")}
	}

	h := &brokerHandle{ep: ep}
	clientID := t.ClientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	opts := mqtt.NewClientOptions().
		AddBroker(ep.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("MQTT connection lost", "endpoint", ep.Name, "error", err)
			t.mu.RLock()
			fn := t.onLost
			t.mu.RUnlock()
			if fn != nil {
				fn(h, err)
			}
		})

	h.client = t.newClient(opts)

	slog.Info("Connecting to MQTT broker", "endpoint", ep.Name, "broker", ep.Broker, "client_id", clientID)
	if err := waitToken(ctx, h.client.Connect()); err != nil {
		// paho keeps dialling after ctx gives up; stop it so no session outlives the error.
		h.client.Disconnect(0)
		return nil, &ConnectError{Endpoint: ep.Name, Err: err}
	}

	inbound := ep.InboundTopic
	if inbound == "" {
		inbound = ep.Topic
	}
	err := waitToken(ctx, h.client.Subscribe(inbound, 0, func(_ mqtt.Client, msg mqtt.Message) {
		t.handleInbound(ep, msg)
	}))
	if err != nil {
		// A failed subscription leaves publishing usable.
		slog.Warn("MQTT subscription error", "endpoint", ep.Name, "topic", inbound, "error", err)
	} else {
		slog.Info("Subscribed to inbound topic", "endpoint", ep.Name, "topic", inbound)
	}

	return h, nil
}

func (t *BrokerTransport) handleInbound(ep proto.EndpointRef, msg mqtt.Message) {
	t.received.Add(1)
	slog.Debug("MQTT message received", "endpoint", ep.Name, "topic", msg.Topic(), "size", len(msg.Payload()))

	t.mu.RLock()
	fn := t.onMessage
	t.mu.RUnlock()
	if fn != nil {
		fn(ep, msg.Payload())
	}
}

func (t *BrokerTransport) Send(ctx context.Context, h Handle, cmd proto.Command) (string, error) {
	bh, ok := h.(*brokerHandle)
	if !ok || bh == nil || bh.client == nil || !bh.client.IsConnected() {
		return "", &SendError{Endpoint: cmd.Target.Name, CommandID: cmd.ID, Err: ErrNotConnected}
	}

	if err := waitToken(ctx, bh.client.Publish(bh.ep.Topic, 0, false, []byte(cmd.Payload))); err != nil {
		return "", &SendError{Endpoint: bh.ep.Name, CommandID: cmd.ID, Err: err}
	}

	slog.Debug("MQTT publish successful", "endpoint", bh.ep.Name, "topic", bh.ep.Topic, "payload", cmd.Payload)
	return "published", nil
}

func (t *BrokerTransport) Disconnect(h Handle) error {
	bh, ok := h.(*brokerHandle)
	if !ok || bh == nil || bh.client == nil {
		return nil
	}
	if bh.client.IsConnected() {
		bh.client.Disconnect(250)
	}
	slog.Info("Closed MQTT session", "endpoint", bh.ep.Name)
	return nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
