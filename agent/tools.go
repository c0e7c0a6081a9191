package agent

import (
	"context"
	"encoding/json"
)

// NewPlanTools returns the managed-side tools. These are the only
// mutations executed inside the agent process; everything else in the
// catalog is delegated to the canvas UI.
func NewPlanTools(engine *PlanEngine) []Tool {
	return []Tool{
		&FuncTool{
			ToolName: "set_plan",
			ToolDesc: "Initialize a plan consisting of step descriptions. Resets progress and sets status to 'in_progress'.",
			ToolParams: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Step titles to initialize a plan with.",
					},
				},
				"required": []string{"steps"},
			},
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				sessionID := SessionFromContext(ctx)
				titles, err := stringSlice(args["steps"])
				if err != nil {
					return "Error: 'steps' must be an array of strings", nil
				}
				return toolJSON(engine.InitializePlan(sessionID, titles)), nil
			},
		},
		&FuncTool{
			ToolName: "update_plan_progress",
			ToolDesc: "Update a single plan step's status, and optionally add a note.",
			ToolParams: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"step_index": map[string]any{
						"type":        "integer",
						"description": "Index of the step to update (0-based).",
					},
					"status": map[string]any{
						"type":        "string",
						"enum":        []string{StepPending, StepInProgress, StepCompleted, StepBlocked, StepFailed},
						"description": "One of: pending, in_progress, completed, blocked, failed",
					},
					"note": map[string]any{
						"type":        "string",
						"description": "Optional short note for this step.",
					},
				},
				"required": []string{"step_index", "status"},
			},
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				sessionID := SessionFromContext(ctx)
				index, ok := intArg(args["step_index"])
				if !ok {
					return "Error: 'step_index' must be an integer", nil
				}
				status, _ := args["status"].(string)
				note, _ := args["note"].(string)
				return toolJSON(engine.AdvanceStep(sessionID, index, status, note)), nil
			},
		},
		&FuncTool{
			ToolName: "complete_plan",
			ToolDesc: "Mark the plan as completed.",
			ToolParams: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				sessionID := SessionFromContext(ctx)
				return toolJSON(engine.CompletePlan(sessionID)), nil
			},
		},
	}
}

// NewClientTools returns the client-side catalog: item and field mutators
// the canvas UI executes. The server publishes these names and schemas so
// the model requests them as structured calls instead of free text; the
// effect arrives back as the next externally supplied state.
func NewClientTools() []ClientTool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	itemID := str("ID of the target canvas item.")

	obj := func(props map[string]any, required ...string) map[string]any {
		s := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	}

	return []ClientTool{
		{
			ToolName: "createItem",
			ToolDesc: "Create a new canvas item of the given type (project, entity, note, chart, document).",
			ToolParams: obj(map[string]any{
				"type": map[string]any{
					"type": "string",
					"enum": []string{"project", "entity", "note", "chart", "document"},
				},
				"name": str("Card name for the new item."),
			}, "type"),
		},
		{
			ToolName:   "deleteItem",
			ToolDesc:   "Delete a canvas item by id.",
			ToolParams: obj(map[string]any{"itemId": itemID}, "itemId"),
		},
		{
			ToolName:   "setGlobalTitle",
			ToolDesc:   "Set the canvas title.",
			ToolParams: obj(map[string]any{"title": str("New canvas title.")}, "title"),
		},
		{
			ToolName:   "setGlobalDescription",
			ToolDesc:   "Set the canvas description.",
			ToolParams: obj(map[string]any{"description": str("New canvas description.")}, "description"),
		},
		{
			ToolName:   "setItemName",
			ToolDesc:   "Rename a canvas item.",
			ToolParams: obj(map[string]any{"itemId": itemID, "name": str("New card name.")}, "itemId", "name"),
		},
		{
			ToolName:   "setItemSubtitleOrDescription",
			ToolDesc:   "Set a card's subtitle (never the data fields). Use for 'description', 'overview', 'summary', 'caption' or 'blurb' on project/entity/chart cards.",
			ToolParams: obj(map[string]any{"itemId": itemID, "subtitle": str("New subtitle text.")}, "itemId", "subtitle"),
		},
		{
			ToolName:   "setProjectField1",
			ToolDesc:   "Set a project's field1 (text).",
			ToolParams: obj(map[string]any{"itemId": itemID, "value": str("Text value.")}, "itemId", "value"),
		},
		{
			ToolName: "setProjectField2",
			ToolDesc: "Set a project's field2 (select: 'Option A' | 'Option B' | 'Option C').",
			ToolParams: obj(map[string]any{
				"itemId": itemID,
				"value": map[string]any{
					"type": "string",
					"enum": []string{"Option A", "Option B", "Option C"},
				},
			}, "itemId", "value"),
		},
		{
			ToolName:   "setProjectField3",
			ToolDesc:   "Set a project's field3 (date 'YYYY-MM-DD').",
			ToolParams: obj(map[string]any{"itemId": itemID, "value": str("Date in YYYY-MM-DD form.")}, "itemId", "value"),
		},
		{
			ToolName:   "addChecklistItem",
			ToolDesc:   "Append a checklist item to a project's field4.",
			ToolParams: obj(map[string]any{"itemId": itemID, "text": str("Checklist item text.")}, "itemId", "text"),
		},
		{
			ToolName: "setChecklistItem",
			ToolDesc: "Update a checklist item's text or done flag.",
			ToolParams: obj(map[string]any{
				"itemId":      itemID,
				"checklistId": str("ID of the checklist entry."),
				"text":        str("New text (optional)."),
				"done":        map[string]any{"type": "boolean", "description": "Completion flag (optional)."},
			}, "itemId", "checklistId"),
		},
		{
			ToolName:   "removeChecklistItem",
			ToolDesc:   "Remove a checklist item from a project's field4.",
			ToolParams: obj(map[string]any{"itemId": itemID, "checklistId": str("ID of the checklist entry.")}, "itemId", "checklistId"),
		},
		{
			ToolName:   "setEntityField1",
			ToolDesc:   "Set an entity's field1 (text).",
			ToolParams: obj(map[string]any{"itemId": itemID, "value": str("Text value.")}, "itemId", "value"),
		},
		{
			ToolName: "setEntityField2",
			ToolDesc: "Set an entity's field2 (select: 'Option A' | 'Option B' | 'Option C').",
			ToolParams: obj(map[string]any{
				"itemId": itemID,
				"value": map[string]any{
					"type": "string",
					"enum": []string{"Option A", "Option B", "Option C"},
				},
			}, "itemId", "value"),
		},
		{
			ToolName:   "addEntityTag",
			ToolDesc:   "Add a tag to an entity's field3 (must be one of field3_options).",
			ToolParams: obj(map[string]any{"itemId": itemID, "tag": str("Tag to add.")}, "itemId", "tag"),
		},
		{
			ToolName:   "removeEntityTag",
			ToolDesc:   "Remove a tag from an entity's field3.",
			ToolParams: obj(map[string]any{"itemId": itemID, "tag": str("Tag to remove.")}, "itemId", "tag"),
		},
		{
			ToolName:   "setNoteField1",
			ToolDesc:   "Replace a note's content (field1).",
			ToolParams: obj(map[string]any{"itemId": itemID, "value": str("Note content.")}, "itemId", "value"),
		},
		{
			ToolName:   "appendNoteField1",
			ToolDesc:   "Append text to a note's content (field1).",
			ToolParams: obj(map[string]any{"itemId": itemID, "value": str("Text to append.")}, "itemId", "value"),
		},
		{
			ToolName:   "clearNoteField1",
			ToolDesc:   "Clear a note's content (field1).",
			ToolParams: obj(map[string]any{"itemId": itemID}, "itemId"),
		},
		{
			ToolName: "addChartMetric",
			ToolDesc: "Add a metric to a chart's field1 (value in [0..100] or '').",
			ToolParams: obj(map[string]any{
				"itemId": itemID,
				"label":  str("Metric label."),
				"value":  map[string]any{"type": "number", "description": "Metric value in [0..100]."},
			}, "itemId", "label"),
		},
		{
			ToolName: "setChartMetric",
			ToolDesc: "Update a chart metric's value by metric id.",
			ToolParams: obj(map[string]any{
				"itemId":   itemID,
				"metricId": str("ID of the metric entry."),
				"value":    map[string]any{"type": "number", "description": "New value in [0..100]."},
			}, "itemId", "metricId"),
		},
		{
			ToolName:   "removeChartMetric",
			ToolDesc:   "Remove a metric from a chart's field1.",
			ToolParams: obj(map[string]any{"itemId": itemID, "metricId": str("ID of the metric entry.")}, "itemId", "metricId"),
		},
	}
}

// toolJSON marshals a tool result value into the output string handed back
// to the model.
func toolJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "Error encoding result: " + err.Error()
	}
	return string(data)
}

// stringSlice converts a JSON-decoded array into []string via round-trip.
func stringSlice(raw any) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	if s, ok := raw.([]string); ok {
		return s, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// intArg extracts an integer from a JSON-decoded value.
func intArg(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
