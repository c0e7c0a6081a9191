package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"canvas_server/llm"
)

// MaxIterations is the maximum number of model/tool loop iterations per turn.
const MaxIterations = 25

// Coordinator drives one agent turn: it hands the model the tool catalog and
// the fixed instruction set, executes managed tool calls one at a time in
// the order the model requested them, describes client-side calls without
// executing them, and grounds the final reply in the latest state.
type Coordinator struct {
	LLM          llm.Client
	Model        string
	SystemPrompt string
	Registry     *Registry
	Store        *StateStore
	Bus          *SnapshotBus
	Hooks        []Hook
}

// TurnRequest is the input for one turn.
type TurnRequest struct {
	SessionID string
	Messages  Messages
	// State is the caller's current view of SharedState. It may be newer
	// than the server's last snapshot (client-side tools mutated it), so
	// it is merged in before the model sees anything.
	State SharedState
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	State     SharedState `json:"state"`
}

// Run executes a turn synchronously, discarding stream events.
func (c *Coordinator) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ch := make(chan StreamEvent, 64)
	var result *TurnResult
	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ch)
		result, runErr = c.runTurn(ctx, req, ch)
	}()
	for range ch {
	}
	wg.Wait()
	return result, runErr
}

// RunStream executes a turn and streams events to eventCh, closing it when
// the turn ends. A failed turn emits an error event; state stays at the
// last applied mutation (no rollback).
func (c *Coordinator) RunStream(ctx context.Context, req TurnRequest, eventCh chan<- StreamEvent) {
	defer close(eventCh)

	result, err := c.runTurn(ctx, req, eventCh)
	if err != nil {
		eventCh <- StreamEvent{
			Event: EventError,
			Data:  map[string]string{"error": err.Error()},
		}
		return
	}

	eventCh <- StreamEvent{
		Event:     EventDone,
		SessionID: result.SessionID,
		Data: map[string]any{
			"session_id": result.SessionID,
			"reply":      result.Reply,
		},
	}
}

func (c *Coordinator) runTurn(ctx context.Context, req TurnRequest, eventCh chan<- StreamEvent) (*TurnResult, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	ctx = WithSession(ctx, sessionID)

	// One mutation flow per session at a time.
	unlock := c.Store.LockSession(sessionID)
	defer unlock()

	// The caller's view wins key-wise before the turn starts.
	if req.State != nil {
		c.Store.Merge(sessionID, req.State)
	}

	// Snapshots emitted by managed tools are drained into the turn stream
	// after each call, preserving mutation order.
	snapCh := c.Bus.Subscribe(sessionID)
	defer c.Bus.Unsubscribe(sessionID, snapCh)

	msgs := make(Messages, len(req.Messages))
	copy(msgs, req.Messages)

	catalog := c.Registry.Catalog()
	toolSchemas := make([]llm.ToolSchema, len(catalog))
	for i, spec := range catalog {
		toolSchemas[i] = llm.ToolSchema{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		}
	}

	for iter := 0; iter < MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// ModifyRequest hooks; grounding re-reads the store here, so every
		// model call — including the one that phrases the final reply —
		// sees the latest committed state, never a stale capture.
		reqMsgs := make([]Message, len(msgs))
		copy(reqMsgs, msgs)
		for _, hook := range c.Hooks {
			var err error
			reqMsgs, err = hook.ModifyRequest(ctx, sessionID, reqMsgs)
			if err != nil {
				return nil, fmt.Errorf("hook %s ModifyRequest: %w", hook.Name(), err)
			}
		}

		eventCh <- StreamEvent{Event: EventModelStart, Name: c.Model}

		response, err := c.callModel(ctx, reqMsgs, toolSchemas, eventCh)
		if err != nil {
			return nil, fmt.Errorf("model call: %w", err)
		}

		eventCh <- StreamEvent{Event: EventModelEnd, Name: c.Model}

		msgs = append(msgs, AI(response.Content, response.ToolCalls...))

		if len(response.ToolCalls) == 0 {
			break
		}

		// Tool calls run strictly one at a time, in model order. Each
		// mutation's snapshot is forwarded before the next call starts.
		for _, tc := range response.ToolCalls {
			if tc.ID == "" {
				tc.ID = uuid.NewString()
			}

			eventCh <- StreamEvent{
				Event: EventToolStart,
				Name:  tc.Name,
				RunID: tc.ID,
				Data:  map[string]any{"input": tc.Args},
			}

			result := c.dispatch(ctx, tc, eventCh)

			eventCh <- StreamEvent{
				Event: EventToolEnd,
				Name:  tc.Name,
				RunID: tc.ID,
				Data:  map[string]any{"output": result.Output},
			}

			c.drainSnapshots(snapCh, eventCh)
			msgs = append(msgs, ToolMsg(result.ToolCallID, result.Name, result.Output))
		}
	}

	c.drainSnapshots(snapCh, eventCh)

	return &TurnResult{
		SessionID: sessionID,
		Reply:     msgs.LastAssistantContent(),
		State:     c.Store.Get(sessionID),
	}, nil
}

// dispatch routes one tool call. Every failure mode resolves here into a
// result the model can read; a tool call never aborts the turn.
func (c *Coordinator) dispatch(ctx context.Context, tc ToolCall, eventCh chan<- StreamEvent) ToolResult {
	// Client-side tools are delegated: announce the call on the stream and
	// tell the model the outcome arrives with the next state snapshot.
	if c.Registry.IsClient(tc.Name) {
		eventCh <- StreamEvent{
			Event: EventClientTool,
			Name:  tc.Name,
			RunID: tc.ID,
			Data:  map[string]any{"name": tc.Name, "args": tc.Args},
		}
		return ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Output:     "Delegated to the canvas UI. The effect will be visible in the next shared state snapshot.",
		}
	}

	if schema := c.Registry.Schema(tc.Name); schema != nil {
		if err := ValidateArgs(schema, tc.Args); err != nil {
			return ToolResult{
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Error:      err.Error(),
				Output:     "Error: invalid arguments: " + err.Error(),
			}
		}
	}

	chain := c.toolChain()
	result, err := chain(ctx, tc)
	if err != nil {
		return ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Error:      err.Error(),
			Output:     "Error: " + err.Error(),
		}
	}
	return *result
}

// toolChain wraps managed execution with the WrapToolCall hooks, index 0
// outermost.
func (c *Coordinator) toolChain() ToolCallFunc {
	base := func(ctx context.Context, tc ToolCall) (*ToolResult, error) {
		tool := c.Registry.Managed(tc.Name)
		if tool == nil {
			return &ToolResult{
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Error:      fmt.Sprintf("unknown tool: %s", tc.Name),
				Output:     fmt.Sprintf("Error: tool %q not found", tc.Name),
			}, nil
		}
		output, err := tool.Execute(ctx, tc.Args)
		if err != nil {
			return &ToolResult{
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Error:      err.Error(),
				Output:     "Error: " + err.Error(),
			}, nil
		}
		return &ToolResult{ToolCallID: tc.ID, Name: tc.Name, Output: output}, nil
	}

	fn := base
	for i := len(c.Hooks) - 1; i >= 0; i-- {
		hook := c.Hooks[i]
		prev := fn
		fn = func(ctx context.Context, tc ToolCall) (*ToolResult, error) {
			return hook.WrapToolCall(ctx, tc, prev)
		}
	}
	return fn
}

// drainSnapshots forwards buffered snapshot events to the turn stream.
// Called after each tool call, so emission order matches call order.
func (c *Coordinator) drainSnapshots(snapCh chan StreamEvent, eventCh chan<- StreamEvent) {
	for {
		select {
		case evt := <-snapCh:
			eventCh <- evt
		default:
			return
		}
	}
}

// ModelResponse is the collected result of one streamed model call.
type ModelResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// callModel streams one model call, forwarding content deltas to the turn
// stream and collecting tool calls.
func (c *Coordinator) callModel(ctx context.Context, msgs []Message, tools []llm.ToolSchema, eventCh chan<- StreamEvent) (*ModelResponse, error) {
	req := llm.Request{
		Model:        c.Model,
		Messages:     convertMessages(msgs),
		Tools:        tools,
		SystemPrompt: c.SystemPrompt,
		MaxTokens:    4096,
	}

	chunkCh := make(chan llm.StreamChunk, 64)
	var streamErr error
	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		streamErr = c.LLM.Stream(ctx, req, chunkCh)
	}()

	var content string
	var toolCalls []ToolCall
	for chunk := range chunkCh {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Delta != "" {
			content += chunk.Delta
			eventCh <- StreamEvent{
				Event: EventModelStream,
				Name:  c.Model,
				Data:  map[string]any{"chunk": map[string]any{"content": chunk.Delta}},
			}
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, ToolCall{
				ID:   chunk.ToolCall.ID,
				Name: chunk.ToolCall.Name,
				Args: chunk.ToolCall.Args,
			})
		}
	}

	done.Wait()
	if streamErr != nil {
		return nil, streamErr
	}

	return &ModelResponse{Content: content, ToolCalls: toolCalls}, nil
}

func convertMessages(msgs []Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, llm.ToolCallInfo{
				ID:   tc.ID,
				Name: tc.Name,
				Args: tc.Args,
			})
		}
	}
	return out
}
