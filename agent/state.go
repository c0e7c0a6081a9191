package agent

import "encoding/json"

// SharedState is the canonical mutable state for one canvas session,
// synchronized between the agent and the UI. Keys hold JSON-compatible
// values; the canvas frontend renders whatever the latest snapshot carries.
type SharedState map[string]any

// Canonical state keys.
const (
	KeyItems             = "items"
	KeyGlobalTitle       = "globalTitle"
	KeyGlobalDescription = "globalDescription"
	KeyLastAction        = "lastAction"
	KeyItemsCreated      = "itemsCreated"
	KeyPlanSteps         = "planSteps"
	KeyCurrentStepIndex  = "currentStepIndex"
	KeyPlanStatus        = "planStatus"
)

// Plan status values. The empty string means "no plan".
const (
	PlanStatusNone       = ""
	PlanStatusInProgress = "in_progress"
	PlanStatusCompleted  = "completed"
	PlanStatusFailed     = "failed"
)

// Step status values for individual plan steps.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepBlocked    = "blocked"
	StepFailed     = "failed"
)

// ValidStepStatus returns true if s is a known step status.
func ValidStepStatus(s string) bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepBlocked, StepFailed:
		return true
	}
	return false
}

// PlanStep is a single step of the session plan.
type PlanStep struct {
	Title  string `json:"title"`
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// Item is a canvas card. The Data sub-object is type-specific
// (project, entity, note, chart, document) and treated as opaque here;
// the UI's schema layer owns its shape.
type Item struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Subtitle string         `json:"subtitle"`
	Data     map[string]any `json:"data"`
}

// DefaultState returns the bootstrap state for a new session.
func DefaultState() SharedState {
	return SharedState{
		KeyItems:             []any{},
		KeyGlobalTitle:       "",
		KeyGlobalDescription: "",
		KeyLastAction:        "",
		KeyItemsCreated:      0,
		KeyPlanSteps:         []any{},
		KeyCurrentStepIndex:  -1,
		KeyPlanStatus:        PlanStatusNone,
	}
}

// Clone returns a deep copy via a JSON round-trip. Snapshots handed to
// observers must never alias the live state.
func (s SharedState) Clone() SharedState {
	data, err := json.Marshal(s)
	if err != nil {
		// SharedState only ever holds JSON-decoded values, so this
		// cannot fail in practice; fall back to a shallow copy.
		out := make(SharedState, len(s))
		for k, v := range s {
			out[k] = v
		}
		return out
	}
	var out SharedState
	if err := json.Unmarshal(data, &out); err != nil {
		out = make(SharedState, len(s))
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// PlanSteps decodes the planSteps key into typed steps.
// Absent or malformed values decode to an empty slice, never nil panic.
func (s SharedState) PlanSteps() []PlanStep {
	raw, ok := s[KeyPlanSteps]
	if !ok || raw == nil {
		return []PlanStep{}
	}
	// JSON round-trip for type safety, same trick the tool layer uses
	// for model-supplied arguments.
	data, err := json.Marshal(raw)
	if err != nil {
		return []PlanStep{}
	}
	var steps []PlanStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return []PlanStep{}
	}
	if steps == nil {
		steps = []PlanStep{}
	}
	return steps
}

// SetPlanSteps writes typed steps back as plain JSON values.
func (s SharedState) SetPlanSteps(steps []PlanStep) {
	out := make([]any, len(steps))
	for i, st := range steps {
		m := map[string]any{
			"title":  st.Title,
			"status": st.Status,
		}
		if st.Note != "" {
			m["note"] = st.Note
		}
		out[i] = m
	}
	s[KeyPlanSteps] = out
}

// CurrentStepIndex returns the active step index, -1 when no step is active.
func (s SharedState) CurrentStepIndex() int {
	switch v := s[KeyCurrentStepIndex].(type) {
	case int:
		return v
	case float64: // JSON numbers decode as float64
		return int(v)
	}
	return -1
}

// PlanStatus returns the aggregate plan status string.
func (s SharedState) PlanStatus() string {
	v, _ := s[KeyPlanStatus].(string)
	return v
}

// Items decodes the items key into typed canvas items.
func (s SharedState) Items() []Item {
	raw, ok := s[KeyItems]
	if !ok || raw == nil {
		return []Item{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return []Item{}
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return []Item{}
	}
	if items == nil {
		items = []Item{}
	}
	return items
}

// GlobalTitle returns the canvas title.
func (s SharedState) GlobalTitle() string {
	v, _ := s[KeyGlobalTitle].(string)
	return v
}

// GlobalDescription returns the canvas description.
func (s SharedState) GlobalDescription() string {
	v, _ := s[KeyGlobalDescription].(string)
	return v
}
