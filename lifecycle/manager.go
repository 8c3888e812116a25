// Package lifecycle owns the connection state of a single endpoint.
//
// A Manager moves between Disconnected, Connecting, Connected and Failed.
// Only an explicit Connect leaves Failed; there is no background retry.
// Every transition is pushed to registered listeners in the order it
// happened.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mbocsi/moodsync/proto"
	"github.com/mbocsi/moodsync/transport"
)

var (
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrAborted           = errors.New("connect aborted by disconnect")
)

type Manager struct {
	ep proto.EndpointRef
	t  transport.Transport

	mu        sync.Mutex
	state     State
	since     time.Time
	lastErr   error
	handle    transport.Handle
	session   uint64 // bumped by every connect attempt and disconnect
	epoch     uint64 // bumped by every disconnect
	listeners []func(StateChange)
	events    []StateChange

	// emitMu serializes listener calls so they observe transitions in order.
	emitMu sync.Mutex
}

// NewManager takes ownership of t, which must not be shared with another
// Manager.
func NewManager(ep proto.EndpointRef, t transport.Transport) *Manager {
	m := &Manager{ep: ep, t: t, state: Disconnected, since: time.Now()}
	if ln, ok := t.(transport.LossNotifier); ok {
		ln.OnConnectionLost(m.connectionLost)
	}
	return m
}

func (m *Manager) Endpoint() proto.EndpointRef { return m.ep }

// Epoch counts calls to Disconnect. It moves before any listener hears
// about the disconnect, so a caller comparing it before and after a Send
// knows whether the session was closed underneath it.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{Endpoint: m.ep.Name, State: m.state, Since: m.since}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// OnStateChange registers fn for every subsequent transition. Listeners run
// outside the manager lock; they may read State or Status but must not call
// Connect or Disconnect.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect opens a session. It is a no-op when already connected and fails
// with ErrConnectInProgress while another Connect is running. A Disconnect
// that lands while the transport is connecting wins: the new session is
// closed and ErrAborted returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Connected:
		m.mu.Unlock()
		return nil
	case Connecting:
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	m.session++
	session := m.session
	m.setLocked(Connecting, nil)
	m.mu.Unlock()
	m.emit()

	h, err := m.t.Connect(ctx, m.ep)

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		if h != nil {
			_ = m.t.Disconnect(h)
		}
		slog.Info("Discarded connection opened after disconnect", "endpoint", m.ep.Name)
		return ErrAborted
	}
	if err != nil {
		m.setLocked(Failed, err)
		m.mu.Unlock()
		m.emit()
		slog.Warn("Connect failed", "endpoint", m.ep.Name, "error", err)
		return err
	}
	m.handle = h
	m.setLocked(Connected, nil)
	m.mu.Unlock()
	m.emit()
	return nil
}

// Disconnect is valid from any state and always ends in Disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.session++
	m.epoch++
	m.setLocked(Disconnected, nil)
	m.mu.Unlock()
	m.emit()

	if h != nil {
		return m.t.Disconnect(h)
	}
	return nil
}

// Send forwards cmd over the current session. Sending without a session
// fails with a *transport.SendError wrapping transport.ErrNotConnected and
// leaves the state alone; a transport error moves the endpoint to Failed.
func (m *Manager) Send(ctx context.Context, cmd proto.Command) (string, error) {
	m.mu.Lock()
	if m.state != Connected || m.handle == nil {
		m.mu.Unlock()
		return "", &transport.SendError{Endpoint: m.ep.Name, CommandID: cmd.ID, Err: transport.ErrNotConnected}
	}
	h, session := m.handle, m.session
	m.mu.Unlock()

	resp, err := m.t.Send(ctx, h, cmd)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", err
		}
		m.fail(session, h, err)
		return "", err
	}
	return resp, nil
}

func (m *Manager) fail(session uint64, h transport.Handle, err error) {
	m.mu.Lock()
	if m.session != session || m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.setLocked(Failed, err)
	m.mu.Unlock()
	m.emit()

	_ = m.t.Disconnect(h)
}

func (m *Manager) connectionLost(h transport.Handle, err error) {
	m.mu.Lock()
	if m.handle == nil || m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.setLocked(Failed, err)
	m.mu.Unlock()
	m.emit()
}

func (m *Manager) setLocked(to State, err error) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.since = time.Now()
	m.lastErr = err

	ev := StateChange{Endpoint: m.ep.Name, From: from, To: to, At: m.since}
	if err != nil {
		ev.Error = err.Error()
	}
	m.events = append(m.events, ev)
}

func (m *Manager) emit() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	events := m.events
	m.events = nil
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, ev := range events {
		slog.Info("Connection state changed", "endpoint", ev.Endpoint, "from", ev.From.String(), "to", ev.To.String(), "error", ev.Error)
		for _, fn := range listeners {
			fn(ev)
		}
	}
}
