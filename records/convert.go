package records

import (
	"fmt"
	"strings"

	"canvas_server/agent"
)

// Section is one logical chunk of an imported document.
type Section struct {
	Heading string
	Content []string
}

// ImportState builds canvas state from a fetched record: a single document
// item carrying the full extracted content.
func ImportState(rec *Record) agent.SharedState {
	if rec == nil {
		return agent.SharedState{
			agent.KeyItems:             []any{},
			agent.KeyGlobalTitle:       "Empty Document",
			agent.KeyGlobalDescription: "",
			agent.KeyItemsCreated:      0,
		}
	}

	item := agent.Item{
		ID:       "0001",
		Type:     "document",
		Name:     rec.Title,
		Subtitle: "",
		Data: map[string]any{
			"content":    rec.Content,
			"createdAt":  rec.CreatedAt,
			"modifiedAt": rec.ModifiedAt,
			"wordCount":  len(strings.Fields(rec.Content)),
			"sourceId":   rec.DocumentID,
		},
	}

	return agent.SharedState{
		agent.KeyItems:             []any{itemMap(item)},
		agent.KeyGlobalTitle:       "Canvas: " + rec.Title,
		agent.KeyGlobalDescription: "",
		agent.KeyItemsCreated:      1,
	}
}

// ParseSections splits plain text into sections on heading heuristics:
// short ALL-CAPS lines, trailing colons, or markdown/chapter prefixes.
func ParseSections(text string) []Section {
	var sections []Section
	var current *Section

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isHeading(line) {
			if current != nil {
				sections = append(sections, *current)
			}
			heading := strings.TrimSpace(strings.TrimLeft(strings.TrimRight(line, ":"), "#"))
			current = &Section{Heading: heading}
			continue
		}

		if current == nil {
			current = &Section{Heading: "Introduction"}
		}
		current.Content = append(current.Content, line)
	}

	if current != nil {
		sections = append(sections, *current)
	}
	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{
			Heading: "Document Content",
			Content: []string{strings.TrimSpace(text)},
		})
	}
	return sections
}

func isHeading(line string) bool {
	if len(line) >= 100 {
		return false
	}
	if line == strings.ToUpper(line) && strings.ContainsAny(line, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return true
	}
	if strings.HasSuffix(line, ":") {
		return true
	}
	for _, prefix := range []string{"#", "Chapter", "Section"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// ClassifySection picks the canvas item type that best fits a section.
func ClassifySection(sec Section) string {
	heading := strings.ToLower(sec.Heading)

	for _, kw := range []string{"task", "todo", "action", "project", "milestone"} {
		if strings.Contains(heading, kw) {
			return "project"
		}
	}
	for _, kw := range []string{"metric", "data", "chart", "graph", "statistic"} {
		if strings.Contains(heading, kw) {
			return "chart"
		}
	}
	for _, kw := range []string{"person", "team", "contact", "entity", "profile"} {
		if strings.Contains(heading, kw) {
			return "entity"
		}
	}
	return "note"
}

// SectionData builds the type-specific data payload for a section.
func SectionData(itemType string, sec Section) map[string]any {
	content := strings.Join(sec.Content, "\n")

	switch itemType {
	case "project":
		var checklist []any
		for idx, line := range sec.Content {
			var text string
			switch {
			case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
				text = strings.TrimSpace(line[2:])
			case strings.HasPrefix(line, "• "):
				text = strings.TrimSpace(strings.TrimPrefix(line, "• "))
			default:
				continue
			}
			done := strings.HasPrefix(text, "[x]") || strings.HasPrefix(text, "[X]")
			if done {
				text = strings.TrimSpace(text[3:])
			}
			checklist = append(checklist, map[string]any{
				"id":       fmt.Sprintf("%03d", idx+1),
				"text":     text,
				"done":     done,
				"proposed": false,
			})
		}
		field1 := ""
		if len(checklist) == 0 {
			field1 = truncate(content, 500)
		}
		return map[string]any{
			"field1":    field1,
			"field2":    "",
			"field3":    "",
			"field4":    checklist,
			"field4_id": len(checklist),
		}

	case "entity":
		return map[string]any{
			"field1":         truncate(content, 500),
			"field2":         "",
			"field3":         []any{},
			"field3_options": []any{"Document", "Section", "Import", "Tag 1", "Tag 2"},
		}

	case "chart":
		return map[string]any{
			"field1":    []any{},
			"field1_id": 0,
		}
	}

	return map[string]any{"field1": content}
}

// SectionedImportState converts a record into one canvas item per section.
func SectionedImportState(rec *Record) agent.SharedState {
	sections := ParseSections(rec.Content)
	items := make([]any, 0, len(sections))
	for i, sec := range sections {
		itemType := ClassifySection(sec)
		items = append(items, itemMap(agent.Item{
			ID:       fmt.Sprintf("%04d", i+1),
			Type:     itemType,
			Name:     sec.Heading,
			Subtitle: "",
			Data:     SectionData(itemType, sec),
		}))
	}
	return agent.SharedState{
		agent.KeyItems:             items,
		agent.KeyGlobalTitle:       "Canvas: " + rec.Title,
		agent.KeyGlobalDescription: "",
		agent.KeyItemsCreated:      len(items),
	}
}

// ExportMarkdown renders the full shared state as a markdown document:
// global title and description, then one section per item with its
// type-specific fields.
func ExportMarkdown(state agent.SharedState) string {
	var b strings.Builder

	title := state.GlobalTitle()
	if title == "" {
		title = "Canvas Export"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if desc := state.GlobalDescription(); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}

	for _, item := range state.Items() {
		name := item.Name
		if name == "" {
			name = "Untitled"
		}
		fmt.Fprintf(&b, "## %s\n\n", name)
		if item.Subtitle != "" {
			fmt.Fprintf(&b, "*%s*\n\n", item.Subtitle)
		}

		data := item.Data
		switch item.Type {
		case "project":
			if f1, _ := data["field1"].(string); f1 != "" {
				fmt.Fprintf(&b, "%s\n\n", f1)
			}
			if checklist, _ := data["field4"].([]any); len(checklist) > 0 {
				b.WriteString("**Tasks:**\n\n")
				for _, raw := range checklist {
					task, _ := raw.(map[string]any)
					status := "[ ]"
					if done, _ := task["done"].(bool); done {
						status = "[x]"
					}
					text, _ := task["text"].(string)
					fmt.Fprintf(&b, "- %s %s\n", status, text)
				}
				b.WriteString("\n")
			}
		case "entity":
			if f1, _ := data["field1"].(string); f1 != "" {
				fmt.Fprintf(&b, "%s\n\n", f1)
			}
			if rawTags, _ := data["field3"].([]any); len(rawTags) > 0 {
				tags := make([]string, 0, len(rawTags))
				for _, t := range rawTags {
					if s, ok := t.(string); ok {
						tags = append(tags, s)
					}
				}
				fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(tags, ", "))
			}
		case "chart":
			if metrics, _ := data["field1"].([]any); len(metrics) > 0 {
				b.WriteString("**Metrics:**\n\n")
				for _, raw := range metrics {
					m, _ := raw.(map[string]any)
					label, _ := m["label"].(string)
					fmt.Fprintf(&b, "- %s: %v\n", label, m["value"])
				}
				b.WriteString("\n")
			}
		case "document":
			if content, _ := data["content"].(string); content != "" {
				fmt.Fprintf(&b, "%s\n\n", content)
			}
		default:
			if f1, _ := data["field1"].(string); f1 != "" {
				fmt.Fprintf(&b, "%s\n\n", f1)
			}
		}
	}

	return b.String()
}

// ItemMarkdown renders a single item for per-item document exports.
func ItemMarkdown(item agent.Item) string {
	if item.Type == "document" {
		if content, _ := item.Data["content"].(string); content != "" {
			return content + "\n\n"
		}
		return "*No content yet*\n\n"
	}
	state := agent.SharedState{
		agent.KeyItems:       []any{itemMap(item)},
		agent.KeyGlobalTitle: item.Name,
	}
	return ExportMarkdown(state)
}

func itemMap(item agent.Item) map[string]any {
	data := item.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"id":       item.ID,
		"type":     item.Type,
		"name":     item.Name,
		"subtitle": item.Subtitle,
		"data":     data,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
