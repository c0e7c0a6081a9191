package agent

import (
	"sync"
	"time"
)

const defaultSessionTTL = 1 * time.Hour

// sessionEntry wraps a session's state with a last-accessed timestamp for
// TTL eviction and a per-session lock for the one-turn-at-a-time discipline.
// mu guards state: the turn lock serializes mutation flows against each
// other, but reads (state polling, the websocket feed) run concurrently
// with a turn and must not observe a clone mid-write.
type sessionEntry struct {
	mu         sync.RWMutex
	state      SharedState
	lastAccess time.Time
	turnLock   sync.Mutex
}

// StateStore holds one canonical SharedState per session. All mutations go
// through Merge/Set; readers always see the latest committed value.
type StateStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStateStore creates a store with the default session TTL and starts
// background eviction.
func NewStateStore() *StateStore {
	return NewStateStoreTTL(defaultSessionTTL)
}

// NewStateStoreTTL creates a store with an explicit idle-session TTL.
func NewStateStoreTTL(ttl time.Duration) *StateStore {
	st := &StateStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go st.evictLoop()
	return st
}

func (st *StateStore) entry(sessionID string) *sessionEntry {
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.sessions[sessionID]; ok {
		e.lastAccess = time.Now()
		return e
	}
	e := &sessionEntry{state: DefaultState(), lastAccess: time.Now()}
	st.sessions[sessionID] = e
	return e
}

// Get returns a deep copy of the session's state, creating the default
// state if the session is new. Callers mutate the copy and write it back
// through Merge; they never hold a reference into the canonical value.
func (st *StateStore) Get(sessionID string) SharedState {
	e := st.entry(sessionID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Merge applies a shallow key-wise overwrite onto the session's state.
// Last writer wins per key; there is no deep merge — callers read the full
// sub-object, mutate it, and write it back whole.
func (st *StateStore) Merge(sessionID string, partial SharedState) SharedState {
	e := st.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range partial.Clone() {
		e.state[k] = v
	}
	return e.state.Clone()
}

// Set replaces the session's state wholesale.
func (st *StateStore) Set(sessionID string, state SharedState) {
	e := st.entry(sessionID)
	clone := state.Clone()
	e.mu.Lock()
	e.state = clone
	e.mu.Unlock()
}

// LockSession acquires the session's turn lock. Exactly one mutation flow
// runs against a session at a time; the coordinator holds this for the
// whole turn. Returns the unlock func.
func (st *StateStore) LockSession(sessionID string) func() {
	e := st.entry(sessionID)
	e.turnLock.Lock()
	return e.turnLock.Unlock
}

// Delete removes a session and its state.
func (st *StateStore) Delete(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionID)
}

// Len returns the number of live sessions.
func (st *StateStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Close stops the eviction loop.
func (st *StateStore) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
}

// evictLoop drops sessions idle past the TTL. Sessions carry no
// persistence guarantee; eviction is equivalent to the session ending.
func (st *StateStore) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st.evict()
		case <-st.stop:
			return
		}
	}
}

func (st *StateStore) evict() {
	st.mu.Lock()
	defer st.mu.Unlock()
	cutoff := time.Now().Add(-st.ttl)
	for id, e := range st.sessions {
		if !e.lastAccess.Before(cutoff) {
			continue
		}
		// A held turn lock means a turn is mid-flight; dropping the entry
		// now would fork its state into a fresh default on the next write.
		if !e.turnLock.TryLock() {
			continue
		}
		e.turnLock.Unlock()
		delete(st.sessions, id)
	}
}
