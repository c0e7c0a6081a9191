package agent

import (
	"context"
	"fmt"
	"sync"
)

// Tool is a named, schema-declared mutation executed inside the agent
// process (managed-side).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// FuncTool wraps a plain function as a Tool.
type FuncTool struct {
	ToolName   string
	ToolDesc   string
	ToolParams map[string]any
	Fn         func(ctx context.Context, args map[string]any) (string, error)
}

func (f *FuncTool) Name() string               { return f.ToolName }
func (f *FuncTool) Description() string        { return f.ToolDesc }
func (f *FuncTool) Parameters() map[string]any { return f.ToolParams }
func (f *FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

// ClientTool is a mutation whose execution is delegated to the canvas UI.
// Only its name and argument schema are known here — the server publishes
// the schema to the model and never runs it. The result is observed later,
// through the next externally supplied state, not as a return value.
type ClientTool struct {
	ToolName   string
	ToolDesc   string
	ToolParams map[string]any
}

// ToolSpec is one catalog entry handed to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry holds the two disjoint tool pools. It is the only sanctioned
// path for state mutation: every mutation the model can request is either
// a managed Tool here or a published client-side schema.
type Registry struct {
	mu      sync.RWMutex
	managed map[string]Tool
	client  map[string]ClientTool
	order   []string // catalog order: registration order, managed first
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		managed: make(map[string]Tool),
		client:  make(map[string]ClientTool),
	}
}

// RegisterManaged adds a managed-side tool.
func (r *Registry) RegisterManaged(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.managed[t.Name()]; !dup {
		r.order = append(r.order, t.Name())
	}
	r.managed[t.Name()] = t
}

// RegisterClient publishes a client-side tool's name and schema.
func (r *Registry) RegisterClient(t ClientTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.client[t.ToolName]; !dup {
		r.order = append(r.order, t.ToolName)
	}
	r.client[t.ToolName] = t
}

// Managed returns the managed tool by name, or nil.
func (r *Registry) Managed(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managed[name]
}

// IsClient reports whether name is a published client-side tool.
func (r *Registry) IsClient(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.client[name]
	return ok
}

// Schema returns the declared parameter schema for any tool, or nil.
func (r *Registry) Schema(name string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.managed[name]; ok {
		return t.Parameters()
	}
	if ct, ok := r.client[name]; ok {
		return ct.ToolParams
	}
	return nil
}

// Catalog returns every tool spec in registration order. This list is the
// sole channel telling the model what mutations exist.
func (r *Registry) Catalog() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		if t, ok := r.managed[name]; ok {
			out = append(out, ToolSpec{Name: name, Description: t.Description(), Parameters: t.Parameters()})
			continue
		}
		if ct, ok := r.client[name]; ok {
			out = append(out, ToolSpec{Name: name, Description: ct.ToolDesc, Parameters: ct.ToolParams})
		}
	}
	return out
}

// ValidateArgs checks model-supplied args against a JSON-schema map:
// required keys must be present and declared property types must match.
// Returns nil for schemas without properties.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	if req, ok := schema["required"].([]string); ok {
		for _, key := range req {
			if _, present := args[key]; !present {
				return fmt.Errorf("missing required argument %q", key)
			}
		}
	} else if reqAny, ok := schema["required"].([]any); ok {
		for _, k := range reqAny {
			key, _ := k.(string)
			if _, present := args[key]; key != "" && !present {
				return fmt.Errorf("missing required argument %q", key)
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, val := range args {
		propRaw, declared := props[key]
		if !declared {
			continue // extra args are passed through, tools ignore them
		}
		prop, _ := propRaw.(map[string]any)
		wantType, _ := prop["type"].(string)
		if wantType == "" || val == nil {
			continue
		}
		if !matchesType(wantType, val) {
			return fmt.Errorf("argument %q: expected %s, got %T", key, wantType, val)
		}
	}
	return nil
}

func matchesType(wantType string, val any) bool {
	switch wantType {
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		switch val.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		if !ok {
			_, ok = val.([]string)
		}
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	}
	return true
}
