// Package delivery serializes mood commands per endpoint.
//
// Each endpoint has a single slot: one command in flight and at most one
// pending behind it. A newer mood replaces the pending command and marks the
// in-flight one stale, so only the most recent command's outcome is ever
// reported. Nothing is retried.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/proto"
)

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrClosed          = errors.New("coordinator is closed")
)

// Link is the per-endpoint connection the coordinator sends through.
// *lifecycle.Manager implements it.
type Link interface {
	Endpoint() proto.EndpointRef
	Send(ctx context.Context, cmd proto.Command) (string, error)
	OnStateChange(fn func(lifecycle.StateChange))
	// Epoch must change synchronously with every disconnect.
	Epoch() uint64
}

type Stats struct {
	Endpoint   string `json:"endpoint"`
	InFlight   bool   `json:"in_flight"`
	Pending    bool   `json:"pending"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Superseded uint64 `json:"superseded"` // replaced before or while being sent
	Discarded  uint64 `json:"discarded"`  // dropped by a disconnect
}

type slot struct {
	link     Link
	inflight *proto.Command
	pending  *proto.Command
	latest   string // ID of the newest command accepted for this endpoint
	epoch    uint64 // bumped when the endpoint disconnects

	pendingLink uint64 // link epoch when pending was accepted
	stats    Stats
}

type Coordinator struct {
	mu        sync.Mutex
	slots     map[string]*slot
	order     []string
	listeners []func(proto.DeliveryOutcome)
	closed    bool

	newID  func() string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		slots:  make(map[string]*slot),
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds an endpoint. Registering the same endpoint twice is an error.
func (c *Coordinator) Register(link Link) error {
	key := link.Endpoint().Key()

	c.mu.Lock()
	if _, ok := c.slots[key]; ok {
		c.mu.Unlock()
		return fmt.Errorf("endpoint %q already registered", key)
	}
	s := &slot{link: link, stats: Stats{Endpoint: key}}
	c.slots[key] = s
	c.order = append(c.order, key)
	c.mu.Unlock()

	link.OnStateChange(func(ev lifecycle.StateChange) {
		if ev.To == lifecycle.Disconnected {
			c.dropEndpoint(s)
		}
	})
	slog.Info("Registered endpoint", "endpoint", key, "kind", link.Endpoint().Kind)
	return nil
}

// OnOutcome registers fn for every reported outcome. Outcomes for one
// endpoint arrive in order; different endpoints report concurrently.
func (c *Coordinator) OnOutcome(fn func(proto.DeliveryOutcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) Endpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// NotifyMood submits ev to every registered endpoint and returns the
// command IDs in registration order.
func (c *Coordinator) NotifyMood(ev proto.MoodEvent) ([]string, error) {
	ids := make([]string, 0, len(c.Endpoints()))
	for _, name := range c.Endpoints() {
		id, err := c.NotifyEndpoint(name, ev)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NotifyEndpoint encodes ev for one endpoint and submits it. It never
// blocks on the network.
func (c *Coordinator) NotifyEndpoint(name string, ev proto.MoodEvent) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	s, ok := c.slots[name]
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}

	cmd := proto.Encode(ev, s.link.Endpoint())
	cmd.ID = c.newID()
	if cmd.Fallback {
		slog.Warn("Unrecognized mood, using default", "label", ev.Label, "default", proto.DefaultMood, "endpoint", name)
	}
	s.latest = cmd.ID
	linkEpoch := s.link.Epoch()

	if s.inflight != nil {
		if s.pending != nil {
			s.stats.Superseded++
			slog.Debug("Superseded pending command", "endpoint", name, "command", s.pending.ID, "by", cmd.ID)
		}
		s.pending = &cmd
		s.pendingLink = linkEpoch
		c.mu.Unlock()
		return cmd.ID, nil
	}

	s.inflight = &cmd
	epoch := s.epoch
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(s, cmd, epoch, linkEpoch)
	return cmd.ID, nil
}

// run sends cmd and then whatever became pending meanwhile, one at a time.
// An outcome is dropped when either epoch moved since the command was accepted.
func (c *Coordinator) run(s *slot, cmd proto.Command, epoch, linkEpoch uint64) {
	defer c.wg.Done()

	for {
		slog.Debug("Sending command", "endpoint", cmd.Target.Name, "command", cmd.ID, "mood", cmd.Mood, "level", cmd.Level)
		resp, err := s.link.Send(c.ctx, cmd)

		var outcome proto.DeliveryOutcome
		if err != nil {
			outcome = proto.Failed(cmd, err)
		} else {
			outcome = proto.Succeeded(cmd, resp)
		}

		c.mu.Lock()
		current := s.epoch == epoch && s.link.Epoch() == linkEpoch
		report := current && s.latest == cmd.ID
		switch {
		case report && err != nil:
			s.stats.Failed++
		case report:
			s.stats.Delivered++
		case !current:
			s.stats.Discarded++
		default:
			s.stats.Superseded++
		}

		next := s.pending
		s.pending = nil
		s.inflight = next
		if next != nil {
			cmd = *next
			epoch = s.epoch
			linkEpoch = s.pendingLink
		}
		listeners := slices.Clone(c.listeners)
		c.mu.Unlock()

		if report {
			if err != nil {
				slog.Warn("Command delivery failed", "endpoint", outcome.Command.Target.Name, "command", outcome.Command.ID, "error", err)
			} else {
				slog.Info("Command delivered", "endpoint", outcome.Command.Target.Name, "command", outcome.Command.ID, "mood", outcome.Command.Mood)
			}
			for _, fn := range listeners {
				fn(outcome)
			}
		} else {
			slog.Debug("Discarded stale outcome", "endpoint", outcome.Command.Target.Name, "command", outcome.Command.ID, "success", outcome.Success)
		}

		if next == nil {
			return
		}
	}
}

func (c *Coordinator) dropEndpoint(s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.epoch++
	if s.pending != nil {
		s.stats.Discarded++
		s.pending = nil
	}
}

func (c *Coordinator) Stats(name string) (Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[name]
	if !ok {
		return Stats{}, false
	}
	st := s.stats
	st.InFlight = s.inflight != nil
	st.Pending = s.pending != nil
	return st, true
}

// Close rejects new moods, cancels sends in flight and waits for the
// per-endpoint workers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, s := range c.slots {
		s.epoch++
		s.pending = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
