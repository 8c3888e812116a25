package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mbocsi/moodsync/proto"
)

// Transport delivers commands to one kind of remote endpoint. Implementations
// never retry; a failed Connect or Send is reported to the caller as is.
type Transport interface {
	Connect(ctx context.Context, ep proto.EndpointRef) (Handle, error)
	Send(ctx context.Context, h Handle, cmd proto.Command) (response string, err error)
	Disconnect(h Handle) error
	Kind() proto.EndpointKind
}

// Handle is an open session returned by Connect.
type Handle interface {
	Endpoint() proto.EndpointRef
}

// LossNotifier is implemented by transports whose sessions can drop on their
// own, outside of a Send.
type LossNotifier interface {
	OnConnectionLost(fn func(h Handle, err error))
}

var ErrNotConnected = errors.New("transport is not connected")

type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

type SendError struct {
	Endpoint  string
	CommandID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s to %s: %v", e.CommandID, e.Endpoint, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type Options struct {
	ClientIDPrefix string        // broker client IDs are prefix + random hex
	ConnectTimeout time.Duration // poll liveness probe
	SendTimeout    time.Duration // poll command request
	Discover       bool          // resolve poll addresses over mDNS when empty
	MDNSService    string
}

const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultSendTimeout    = 5 * time.Second
	DefaultClientIDPrefix = "MoodApp_"
)

// New returns the transport variant matching ep.Kind.
func New(ep proto.EndpointRef, opts Options) (Transport, error) {
	switch ep.Kind {
	case proto.KindBroker:
		t := NewBrokerTransport()
		if opts.ClientIDPrefix != "" {
			t.ClientIDPrefix = opts.ClientIDPrefix
		}
		return t, nil
	case proto.KindPoll:
		t := NewPollTransport()
		if opts.ConnectTimeout > 0 {
			t.ConnectTimeout = opts.ConnectTimeout
		}
		if opts.SendTimeout > 0 {
			t.SendTimeout = opts.SendTimeout
		}
		if opts.Discover {
			t.Discovery = NewDiscovery(opts.MDNSService, 0)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q for %s", ep.Kind, ep.Name)
	}
}
