// Package tracing records timed traces of agent turns for debugging:
// one trace per invoke/stream request, with a span per tool call and an
// event per model call. Traces are kept in a bounded in-memory store and
// served from the /traces endpoints.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Span is a single timed operation within a turn.
type Span struct {
	Name       string         `json:"name"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	DurationMs float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Trace collects all spans for one turn request.
type Trace struct {
	mu         sync.Mutex     `json:"-"`
	TraceID    string         `json:"trace_id"`
	SessionID  string         `json:"session_id"`
	Model      string         `json:"model"`
	Method     string         `json:"method"` // "invoke" or "stream"
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	DurationMs float64        `json:"duration_ms"`
	Spans      []Span         `json:"spans"`
	Input      map[string]any `json:"input,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewTrace starts a trace for one turn request.
func NewTrace(sessionID, model, method string, messageCount int) *Trace {
	return &Trace{
		TraceID:   generateID(),
		SessionID: sessionID,
		Model:     model,
		Method:    method,
		StartTime: time.Now(),
		Spans:     []Span{},
		Input:     map[string]any{"message_count": messageCount},
	}
}

// SpanRecorder is the builder returned by StartSpan.
type SpanRecorder struct {
	trace *Trace
	span  Span
}

// StartSpan begins recording a timed span.
func (t *Trace) StartSpan(name string) *SpanRecorder {
	return &SpanRecorder{
		trace: t,
		span:  Span{Name: name, StartTime: time.Now(), Metadata: map[string]any{}},
	}
}

// RecordEvent records an instantaneous event.
func (t *Trace) RecordEvent(name string, metadata map[string]any) {
	now := time.Now()
	t.addSpan(Span{
		Name:      name,
		StartTime: now,
		EndTime:   now,
		Metadata:  metadata,
	})
}

// Set adds a metadata key-value pair.
func (sr *SpanRecorder) Set(key string, value any) *SpanRecorder {
	sr.span.Metadata[key] = value
	return sr
}

// End finalizes the span and appends it to the trace.
func (sr *SpanRecorder) End() {
	sr.span.EndTime = time.Now()
	sr.span.DurationMs = float64(sr.span.EndTime.Sub(sr.span.StartTime)) / float64(time.Millisecond)
	sr.trace.addSpan(sr.span)
}

func (t *Trace) addSpan(s Span) {
	t.mu.Lock()
	t.Spans = append(t.Spans, s)
	t.mu.Unlock()
}

// Finish finalizes the trace with an optional error.
func (t *Trace) Finish(err error) {
	t.EndTime = time.Now()
	t.DurationMs = float64(t.EndTime.Sub(t.StartTime)) / float64(time.Millisecond)
	if err != nil {
		t.Error = err.Error()
	}
}

// --- Store ----------------------------------------------------------------

// Store holds recent traces in memory with bounded capacity.
type Store struct {
	mu     sync.RWMutex
	traces map[string]*Trace
	order  []string // FIFO order for eviction
	max    int
}

// NewStore creates a store that retains up to maxSize traces.
func NewStore(maxSize int) *Store {
	return &Store{
		traces: make(map[string]*Trace),
		order:  make([]string, 0, maxSize),
		max:    maxSize,
	}
}

// Put stores a trace, evicting the oldest if at capacity.
func (s *Store) Put(t *Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.max {
		oldest := s.order[0]
		delete(s.traces, oldest)
		s.order = s.order[1:]
	}
	s.traces[t.TraceID] = t
	s.order = append(s.order, t.TraceID)
}

// Get returns a trace by ID, or nil if not found.
func (s *Store) Get(traceID string) *Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.traces[traceID]
}

// List returns the most recent traces, newest first, up to limit.
func (s *Store) List(limit int) []*Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > n {
		limit = n
	}
	result := make([]*Trace, limit)
	for i := 0; i < limit; i++ {
		result[i] = s.traces[s.order[n-1-i]]
	}
	return result
}

// --- Context helpers ------------------------------------------------------

type ctxKey struct{}

// WithTrace stores the trace in context for the turn hooks to find.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext extracts the trace, or nil when the turn is untraced.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(ctxKey{}).(*Trace)
	return t
}

// --- ID generation --------------------------------------------------------

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
