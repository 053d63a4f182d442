package api

import (
	"sync"
)

// DispatchEvent is one message on a technician's live dispatch feed.
type DispatchEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans dispatch events out to feed subscribers, keyed by
// technician ID.
type EventBroker interface {
	Subscribe(technicianID string) chan DispatchEvent
	Unsubscribe(technicianID string, ch chan DispatchEvent)
	Publish(technicianID string, evt DispatchEvent)
}

// Broker is the process-local EventBroker used when no REDIS_URL is set.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan DispatchEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan DispatchEvent]struct{}{}}
}

func (b *Broker) Subscribe(technicianID string) chan DispatchEvent {
	ch := make(chan DispatchEvent, 8)
	b.mu.Lock()
	if b.subs[technicianID] == nil {
		b.subs[technicianID] = map[chan DispatchEvent]struct{}{}
	}
	b.subs[technicianID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(technicianID string, ch chan DispatchEvent) {
	b.mu.Lock()
	if m := b.subs[technicianID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, technicianID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish drops events for slow subscribers rather than blocking dispatch.
func (b *Broker) Publish(technicianID string, evt DispatchEvent) {
	b.mu.Lock()
	for ch := range b.subs[technicianID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
