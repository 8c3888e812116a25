package services

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/moodsync/delivery"
	"github.com/mbocsi/moodsync/proto"
)

// DeliveryServiceImpl implements DeliveryService
type DeliveryServiceImpl struct {
	coord *delivery.Coordinator

	mu      sync.Mutex
	history []proto.DeliveryOutcome // ring buffer
	next    int
	full    bool
}

// NewDeliveryService creates a new delivery service keeping the last
// history outcomes
func NewDeliveryService(coord *delivery.Coordinator, history int) *DeliveryServiceImpl {
	if history < 1 {
		history = 1
	}
	return &DeliveryServiceImpl{
		coord:   coord,
		history: make([]proto.DeliveryOutcome, history),
	}
}

// NotifyMood encodes and submits a mood. It returns as soon as the commands
// are queued; outcomes arrive through RecentOutcomes and events.
func (ds *DeliveryServiceImpl) NotifyMood(req MoodRequest) ([]string, error) {
	if strings.TrimSpace(req.Mood) == "" {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Mood label cannot be empty"}
	}

	ev := proto.NewMoodEvent(req.Mood)
	if req.Intensity != nil {
		v := *req.Intensity
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Intensity must be between 0 and 1"}
		}
		ev = ev.WithIntensity(v)
	}

	if req.Endpoint != "" {
		id, err := ds.coord.NotifyEndpoint(req.Endpoint, ev)
		if err != nil {
			return nil, coordinatorError(req.Endpoint, err)
		}
		return []string{id}, nil
	}

	ids, err := ds.coord.NotifyMood(ev)
	if err != nil {
		return ids, coordinatorError("", err)
	}
	return ids, nil
}

// Moods returns the mood table
func (ds *DeliveryServiceImpl) Moods() []proto.MoodInfo {
	return proto.Moods()
}

// RecentOutcomes returns up to n outcomes, newest first. n <= 0 returns all
// retained outcomes.
func (ds *DeliveryServiceImpl) RecentOutcomes(n int) []proto.DeliveryOutcome {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	size := ds.next
	if ds.full {
		size = len(ds.history)
	}
	if n <= 0 || n > size {
		n = size
	}

	result := make([]proto.DeliveryOutcome, 0, n)
	for i := 1; i <= n; i++ {
		idx := (ds.next - i + len(ds.history)) % len(ds.history)
		result = append(result, ds.history[idx])
	}
	return result
}

func (ds *DeliveryServiceImpl) record(o proto.DeliveryOutcome) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now()
	}
	ds.history[ds.next] = o
	ds.next = (ds.next + 1) % len(ds.history)
	if ds.next == 0 {
		ds.full = true
	}
}

func coordinatorError(endpoint string, err error) error {
	switch {
	case errors.Is(err, delivery.ErrUnknownEndpoint):
		return notFound(endpoint)
	case errors.Is(err, delivery.ErrClosed):
		return ServiceError{Code: ErrCodeUnavailable, Message: "Delivery is shutting down", Cause: err}
	default:
		return ServiceError{Code: ErrCodeInternal, Message: "Failed to submit mood", Cause: err}
	}
}
