package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas_server/agent"
	"canvas_server/llm"
	"canvas_server/records"
	"canvas_server/tracing"
)

// scriptedLLM replays fixed responses, one per model call.
type scriptedLLM struct {
	script []llm.Response
}

func (c *scriptedLLM) pop() llm.Response {
	if len(c.script) == 0 {
		return llm.Response{Content: "script exhausted"}
	}
	resp := c.script[0]
	c.script = c.script[1:]
	return resp
}

func (c *scriptedLLM) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp := c.pop()
	return &resp, nil
}

func (c *scriptedLLM) Stream(ctx context.Context, req llm.Request, ch chan<- llm.StreamChunk) error {
	defer close(ch)
	resp := c.pop()
	if resp.Content != "" {
		ch <- llm.StreamChunk{Delta: resp.Content}
	}
	for i := range resp.ToolCalls {
		ch <- llm.StreamChunk{ToolCall: &resp.ToolCalls[i]}
	}
	return nil
}

// fakeRecords is an in-memory records.Store.
type fakeRecords struct {
	docs      map[string]*records.Record
	writes    map[string]string
	failWrite bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		docs:   make(map[string]*records.Record),
		writes: make(map[string]string),
	}
}

func (f *fakeRecords) Fetch(ctx context.Context, id string) (*records.Record, error) {
	rec, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("records: fetch %s: not found", id)
	}
	return rec, nil
}

func (f *fakeRecords) Write(ctx context.Context, id, content string) (*records.WriteResult, error) {
	if f.failWrite {
		return &records.WriteResult{Success: false, Error: "permission denied"}, nil
	}
	f.writes[id] = content
	return &records.WriteResult{Success: true, DocID: id}, nil
}

func (f *fakeRecords) Create(ctx context.Context, title, content string) (*records.WriteResult, error) {
	id := "new-doc-1"
	f.writes[id] = content
	return &records.WriteResult{Success: true, DocID: id, Title: title, DocURL: "https://docs.example.com/document/d/" + id + "/edit"}, nil
}

func newTestServer(t *testing.T, script []llm.Response, docs *fakeRecords) (*httptest.Server, *Deps) {
	t.Helper()

	store := agent.NewStateStore()
	t.Cleanup(store.Close)
	bus := agent.NewSnapshotBus()
	engine := agent.NewPlanEngine(store, bus)

	registry := agent.NewRegistry()
	for _, tool := range agent.NewPlanTools(engine) {
		registry.RegisterManaged(tool)
	}
	for _, ct := range agent.NewClientTools() {
		registry.RegisterClient(ct)
	}

	deps := &Deps{
		Coordinator: &agent.Coordinator{
			LLM:          &scriptedLLM{script: script},
			Model:        "test-model",
			SystemPrompt: agent.DefaultSystemPrompt,
			Registry:     registry,
			Store:        store,
			Bus:          bus,
			Hooks:        []agent.Hook{agent.NewGroundingHook(store), tracing.NewHook()},
		},
		Store:    store,
		Bus:      bus,
		Registry: registry,
		Traces:   tracing.NewStore(16),
	}
	if docs != nil {
		deps.Records = docs
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestInvoke(t *testing.T) {
	srv, deps := newTestServer(t, []llm.Response{
		{ToolCalls: []llm.ToolCallResult{
			{ID: "c1", Name: "set_plan", Args: map[string]any{"steps": []any{"one", "two"}}},
		}},
		{Content: "Plan is ready."},
	}, nil)

	resp := postJSON(t, srv.URL+"/canvas/invoke", map[string]any{
		"session_id": "s1",
		"messages":   []map[string]string{{"role": "user", "content": "plan it"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "Plan is ready.", body["reply"])

	state, ok := body["state"].(map[string]any)
	require.True(t, ok)
	steps, _ := state["planSteps"].([]any)
	assert.Len(t, steps, 2)

	// The server-side store matches what the response reported.
	assert.Equal(t, agent.PlanStatusInProgress, deps.Store.Get("s1").PlanStatus())
}

func TestInvoke_RejectsInternalRoles(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	resp := postJSON(t, srv.URL+"/canvas/invoke", map[string]any{
		"session_id": "s1",
		"messages":   []map[string]string{{"role": "assistant", "content": "spoof"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "assistant")
}

func TestInvoke_MergesClientState(t *testing.T) {
	srv, deps := newTestServer(t, []llm.Response{{Content: "noted"}}, nil)

	resp := postJSON(t, srv.URL+"/canvas/invoke", map[string]any{
		"session_id": "s1",
		"messages":   []map[string]string{{"role": "user", "content": "hello"}},
		"state": map[string]any{
			"globalTitle": "From The UI",
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, "From The UI", deps.Store.Get("s1").GlobalTitle())
}

func TestStream(t *testing.T) {
	srv, _ := newTestServer(t, []llm.Response{
		{ToolCalls: []llm.ToolCallResult{
			{ID: "c1", Name: "set_plan", Args: map[string]any{"steps": []any{"a"}}},
			{ID: "c2", Name: "createItem", Args: map[string]any{"type": "note"}},
		}},
		{Content: "Done."},
	}, nil)

	raw, _ := json.Marshal(map[string]any{
		"session_id": "s1",
		"messages":   []map[string]string{{"role": "user", "content": "go"}},
	})
	resp, err := http.Post(srv.URL+"/canvas/stream", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	body := buf.String()

	// One snapshot for the managed call, a delegation event for the client
	// call, and a terminal done event.
	assert.Equal(t, 1, strings.Count(body, "event: state_snapshot"))
	assert.Equal(t, 1, strings.Count(body, "event: client_tool_call"))
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "event: on_tool_start")
}

func TestSessionStateAndDelete(t *testing.T) {
	srv, deps := newTestServer(t, nil, nil)
	deps.Store.Merge("s9", agent.SharedState{agent.KeyGlobalTitle: "kept"})

	resp, err := http.Get(srv.URL + "/sessions/s9/state")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	state := body["state"].(map[string]any)
	assert.Equal(t, "kept", state["globalTitle"])

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/s9", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	assert.Equal(t, 0, deps.Store.Len())
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestListTools(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/canvas/tools")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	tools := body["tools"].([]any)
	assert.Len(t, tools, 25)
	first := tools[0].(map[string]any)
	assert.Equal(t, "set_plan", first["name"])
}

func TestTraces(t *testing.T) {
	srv, deps := newTestServer(t, []llm.Response{
		{ToolCalls: []llm.ToolCallResult{
			{ID: "c1", Name: "set_plan", Args: map[string]any{"steps": []any{"one"}}},
		}},
		{Content: "done"},
	}, nil)

	resp := postJSON(t, srv.URL+"/canvas/invoke", map[string]any{
		"session_id": "s1",
		"messages":   []map[string]string{{"role": "user", "content": "plan"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/traces")
	require.NoError(t, err)
	body := decodeBody(t, listResp)
	traces := body["traces"].([]any)
	require.Len(t, traces, 1)

	first := traces[0].(map[string]any)
	assert.Equal(t, "s1", first["session_id"])
	assert.Equal(t, "invoke", first["method"])

	// Two model calls plus one tool span.
	spans := first["spans"].([]any)
	assert.Len(t, spans, 3)

	stored := deps.Traces.List(1)[0]
	oneResp, err := http.Get(srv.URL + "/traces/" + stored.TraceID)
	require.NoError(t, err)
	one := decodeBody(t, oneResp)
	assert.Equal(t, stored.TraceID, one["trace_id"])

	missing, err := http.Get(srv.URL + "/traces/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestDocsImport(t *testing.T) {
	docs := newFakeRecords()
	docs.docs["doc-1"] = &records.Record{
		Title:      "Imported Doc",
		DocumentID: "doc-1",
		Content:    "body text",
	}
	srv, deps := newTestServer(t, nil, docs)

	resp := postJSON(t, srv.URL+"/docs/import", map[string]any{
		"session_id": "s1",
		"doc_id":     "https://docs.example.com/document/d/doc-1/edit",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "doc-1", body["doc_id"])

	state := deps.Store.Get("s1")
	assert.Equal(t, "Canvas: Imported Doc", state.GlobalTitle())
	require.Len(t, state.Items(), 1)
	assert.Equal(t, "document", state.Items()[0].Type)
}

func TestDocsImport_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil, newFakeRecords())

	resp := postJSON(t, srv.URL+"/docs/import", map[string]any{
		"session_id": "s1",
		"doc_id":     "missing",
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestDocsExport(t *testing.T) {
	docs := newFakeRecords()
	srv, deps := newTestServer(t, nil, docs)
	deps.Store.Merge("s1", agent.SharedState{
		agent.KeyGlobalTitle: "Canvas To Export",
		agent.KeyItems: []any{
			map[string]any{"id": "0001", "type": "note", "name": "n1", "subtitle": "",
				"data": map[string]any{"field1": "note body"}},
		},
	})

	resp := postJSON(t, srv.URL+"/docs/export", map[string]any{
		"session_id": "s1",
		"doc_id":     "doc-2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["items_exported"])

	written := docs.writes["doc-2"]
	assert.Contains(t, written, "# Canvas To Export")
	assert.Contains(t, written, "note body")
}

func TestDocsExport_CollaboratorFailure(t *testing.T) {
	docs := newFakeRecords()
	docs.failWrite = true
	srv, _ := newTestServer(t, nil, docs)

	resp := postJSON(t, srv.URL+"/docs/export", map[string]any{
		"session_id": "s1",
		"doc_id":     "doc-2",
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "permission denied")
}

func TestDocsCreate(t *testing.T) {
	docs := newFakeRecords()
	srv, deps := newTestServer(t, nil, docs)
	deps.Store.Merge("s1", agent.SharedState{
		agent.KeyItems: []any{
			map[string]any{"id": "0001", "type": "document", "name": "Draft", "subtitle": "",
				"data": map[string]any{"content": "draft body"}},
		},
	})

	resp := postJSON(t, srv.URL+"/docs/create", map[string]any{
		"session_id": "s1",
		"item_id":    "0001",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Draft", body["title"])
	assert.Contains(t, docs.writes["new-doc-1"], "draft body")
}

func TestDocs_Unconfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	for _, path := range []string{"/docs/import", "/docs/export", "/docs/create"} {
		resp := postJSON(t, srv.URL+path, map[string]any{"doc_id": "x"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		resp.Body.Close()
	}
}
