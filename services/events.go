package services

import "sync"

// eventBus delivers events synchronously in publish order per publisher.
type eventBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]func(Event))}
}

func (b *eventBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
