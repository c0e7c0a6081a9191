// Package handlers exposes the canvas agent over HTTP: turn invocation
// (synchronous and SSE), session state access, a websocket snapshot feed,
// and the document import/export endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"canvas_server/agent"
	"canvas_server/records"
	"canvas_server/sse"
	"canvas_server/tracing"
)

// Deps holds shared dependencies injected into handlers.
type Deps struct {
	Coordinator *agent.Coordinator
	Store       *agent.StateStore
	Bus         *agent.SnapshotBus
	Registry    *agent.Registry

	// Records is the external document store. Nil disables /docs/ routes
	// (they return 503).
	Records records.Store

	// Traces retains recent turn traces. Nil disables /traces routes and
	// per-turn tracing.
	Traces *tracing.Store
}

// RegisterRoutes registers all routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	h := &canvasHandler{deps: deps}

	mux.HandleFunc("/canvas/invoke", h.invoke)
	mux.HandleFunc("/canvas/stream", h.stream)
	mux.HandleFunc("/canvas/tools", h.listTools)

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/sessions/")

		// /sessions/{id}[/sub]
		parts := strings.SplitN(path, "/", 2)
		sessionID := parts[0]
		sub := ""
		if len(parts) > 1 {
			sub = parts[1]
		}
		if sessionID == "" {
			http.NotFound(w, r)
			return
		}

		switch sub {
		case "":
			switch r.Method {
			case http.MethodDelete:
				h.deleteSession(w, r, sessionID)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		case "state":
			h.sessionState(w, r, sessionID)
		case "ws":
			h.sessionWS(w, r, sessionID)
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/traces", h.listTraces)
	mux.HandleFunc("/traces/", h.getTrace)

	mux.HandleFunc("/docs/import", h.docsImport)
	mux.HandleFunc("/docs/export", h.docsExport)
	mux.HandleFunc("/docs/create", h.docsCreate)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Store.Len(),
		})
	})
}

type canvasHandler struct {
	deps *Deps
}

// --- Turn invocation ---

type turnRequest struct {
	SessionID string `json:"session_id"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	// State is the client's current shared state. Client-side tool effects
	// arrive here, so it is merged into the store before the turn runs.
	State agent.SharedState `json:"state"`
}

// validateMessages checks that all submitted messages carry an allowed role.
// Only "user" and "system" are accepted; "assistant" and "tool" are internal
// roles produced by the turn loop.
func validateMessages(req *turnRequest) (agent.Messages, error) {
	chain := make(agent.Messages, len(req.Messages))
	for i, m := range req.Messages {
		chain[i] = agent.Message{Role: m.Role, Content: m.Content}
	}
	if err := chain.ValidateUserInput(); err != nil {
		return nil, err
	}
	return chain, nil
}

func (h *canvasHandler) invoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	msgs, err := validateMessages(&req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var trace *tracing.Trace
	if h.deps.Traces != nil {
		trace = tracing.NewTrace(req.SessionID, h.deps.Coordinator.Model, "invoke", len(msgs))
		ctx = tracing.WithTrace(ctx, trace)
	}

	result, err := h.deps.Coordinator.Run(ctx, agent.TurnRequest{
		SessionID: req.SessionID,
		Messages:  msgs,
		State:     req.State,
	})
	if trace != nil {
		trace.Finish(err)
		h.deps.Traces.Put(trace)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *canvasHandler) stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	// Validate before SSE headers are sent (NewWriter commits 200).
	msgs, err := validateMessages(&req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	var trace *tracing.Trace
	if h.deps.Traces != nil {
		trace = tracing.NewTrace(req.SessionID, h.deps.Coordinator.Model, "stream", len(msgs))
		ctx = tracing.WithTrace(ctx, trace)
	}

	startTime := time.Now()
	eventCh := make(chan agent.StreamEvent, 64)
	go h.deps.Coordinator.RunStream(ctx, agent.TurnRequest{
		SessionID: req.SessionID,
		Messages:  msgs,
		State:     req.State,
	}, eventCh)

	for evt := range eventCh {
		switch evt.Event {
		case agent.EventModelStart, agent.EventModelEnd:
			writer.Send(evt.Event, map[string]any{
				"event": evt.Event,
				"name":  evt.Name,
			})

		case agent.EventModelStream:
			writer.Send(evt.Event, map[string]any{
				"event": evt.Event,
				"name":  evt.Name,
				"data":  evt.Data,
			})

		case agent.EventToolStart, agent.EventToolEnd, agent.EventClientTool:
			writer.Send(evt.Event, map[string]any{
				"event":  evt.Event,
				"name":   evt.Name,
				"run_id": evt.RunID,
				"data":   evt.Data,
			})

		case agent.EventStateSnapshot:
			writer.Send(evt.Event, evt.Data)

		case agent.EventDone:
			data, _ := evt.Data.(map[string]any)
			if data == nil {
				data = map[string]any{}
			}
			data["total_duration_ms"] = time.Since(startTime).Milliseconds()
			writer.Send(agent.EventDone, data)

		case agent.EventError:
			if trace != nil {
				if data, ok := evt.Data.(map[string]string); ok {
					trace.Error = data["error"]
				}
			}
			writer.Send(agent.EventError, evt.Data)
		}
	}

	if trace != nil {
		trace.Finish(nil)
		h.deps.Traces.Put(trace)
	}
}

func (h *canvasHandler) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": h.deps.Registry.Catalog(),
	})
}

// --- Traces ---

func (h *canvasHandler) listTraces(w http.ResponseWriter, r *http.Request) {
	if h.deps.Traces == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tracing not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"traces": h.deps.Traces.List(limit),
	})
}

func (h *canvasHandler) getTrace(w http.ResponseWriter, r *http.Request) {
	if h.deps.Traces == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tracing not enabled")
		return
	}
	traceID := strings.TrimPrefix(r.URL.Path, "/traces/")
	trace := h.deps.Traces.Get(traceID)
	if trace == nil {
		writeJSONError(w, http.StatusNotFound, "trace not found: "+traceID)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// --- Sessions ---

func (h *canvasHandler) sessionState(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"state":      h.deps.Store.Get(sessionID),
	})
}

func (h *canvasHandler) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.deps.Store.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
