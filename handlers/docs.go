package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"canvas_server/agent"
	"canvas_server/records"
)

// docsImport fetches an external document and replaces the session's canvas
// with its content. Accepts a bare document id or a pasted URL.
func (h *canvasHandler) docsImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Records == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		DocID     string `json:"doc_id"`
		// Sectioned splits the document into one canvas item per section
		// instead of a single document item.
		Sectioned bool `json:"sectioned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DocID == "" {
		writeJSONError(w, http.StatusBadRequest, "doc_id is required")
		return
	}

	docID := records.ExtractDocID(req.DocID)
	log.Printf("importing doc %s into session %s", docID, req.SessionID)

	rec, err := h.deps.Records.Fetch(r.Context(), docID)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	var imported agent.SharedState
	if req.Sectioned {
		imported = records.SectionedImportState(rec)
	} else {
		imported = records.ImportState(rec)
	}

	// Merge keeps plan keys and lastAction intact; only canvas content
	// is replaced.
	state := h.deps.Store.Merge(req.SessionID, imported)
	h.deps.Bus.Snapshot(req.SessionID, state)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": req.SessionID,
		"doc_id":     docID,
		"title":      rec.Title,
		"state":      state,
	})
}

// docsExport renders the session's canvas as markdown and writes it to an
// existing external document. A collaborator failure is reported, never
// retried.
func (h *canvasHandler) docsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Records == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		DocID     string `json:"doc_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DocID == "" {
		writeJSONError(w, http.StatusBadRequest, "doc_id is required")
		return
	}

	state := h.deps.Store.Get(req.SessionID)
	markdown := records.ExportMarkdown(state)

	res, err := h.deps.Records.Write(r.Context(), records.ExtractDocID(req.DocID), markdown)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"doc_id":         res.DocID,
		"items_exported": len(state.Items()),
	})
}

// docsCreate creates a new external document, optionally seeded with one
// canvas item's content or the whole canvas.
func (h *canvasHandler) docsCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Records == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Title     string `json:"title"`
		// ItemID selects a single canvas item as the document body.
		// Empty exports the whole canvas.
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	state := h.deps.Store.Get(req.SessionID)

	title := req.Title
	var content string
	if req.ItemID != "" {
		item, ok := findItem(state, req.ItemID)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "item not found: "+req.ItemID)
			return
		}
		if title == "" {
			title = item.Name
		}
		content = records.ItemMarkdown(item)
	} else {
		if title == "" {
			title = state.GlobalTitle()
		}
		content = records.ExportMarkdown(state)
	}
	if title == "" {
		title = "Canvas Export"
	}

	res, err := h.deps.Records.Create(r.Context(), title, content)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func findItem(state agent.SharedState, itemID string) (agent.Item, bool) {
	for _, item := range state.Items() {
		if item.ID == itemID {
			return item, true
		}
	}
	return agent.Item{}, false
}
