package agent

import "sync"

// Broadcaster receives one full-state snapshot after every managed-side
// mutation, in mutation order.
type Broadcaster interface {
	Snapshot(sessionID string, state SharedState)
}

// SnapshotBus fans snapshot events out to per-session subscribers.
// Each event carries an entire immutable copy of SharedState, never a diff:
// consumers replace their whole view on receipt and discard earlier ones.
type SnapshotBus struct {
	mu   sync.Mutex
	subs map[string]map[chan StreamEvent]struct{} // sessionID → subscribers
}

// NewSnapshotBus creates an empty bus.
func NewSnapshotBus() *SnapshotBus {
	return &SnapshotBus{
		subs: make(map[string]map[chan StreamEvent]struct{}),
	}
}

// Subscribe registers a channel for a session's snapshot events.
func (b *SnapshotBus) Subscribe(sessionID string) chan StreamEvent {
	ch := make(chan StreamEvent, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan StreamEvent]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *SnapshotBus) Unsubscribe(sessionID string, ch chan StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sessionID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, sessionID)
		}
	}
}

// Snapshot publishes one state_snapshot event carrying a deep copy of the
// full state. Emission order matches call order; a full subscriber buffer
// drops the event for that subscriber only (it will converge on the next
// snapshot since every snapshot is complete).
func (b *SnapshotBus) Snapshot(sessionID string, state SharedState) {
	evt := StreamEvent{
		Event:     EventStateSnapshot,
		SessionID: sessionID,
		Data:      map[string]any{"state": state.Clone()},
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers for a session.
func (b *SnapshotBus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}
