// Package records bridges the canvas to an external document store.
// Documents are fetched and written through an HTTP service that fronts
// the actual provider; the canvas never talks to the provider directly.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Record is a fetched document: its title and extracted plain-text content.
type Record struct {
	Title      string `json:"title"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// WriteResult reports the outcome of a write or create. A failed write is a
// reported result, not a transport error; callers surface it and never retry.
type WriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	DocID   string `json:"doc_id,omitempty"`
	DocURL  string `json:"doc_url,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Store is the document store contract.
type Store interface {
	Fetch(ctx context.Context, id string) (*Record, error)
	Write(ctx context.Context, id, content string) (*WriteResult, error)
	Create(ctx context.Context, title, content string) (*WriteResult, error)
}

// HTTPStore implements Store against a records bridge service.
type HTTPStore struct {
	BaseURL string // e.g. "http://127.0.0.1:9200"
	Client  *http.Client
}

// NewHTTPStore creates a store talking to the bridge at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (s *HTTPStore) Fetch(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := s.do(ctx, "GET", "/documents/"+id, nil, &rec); err != nil {
		return nil, fmt.Errorf("records: fetch %s: %w", id, err)
	}
	if rec.DocumentID == "" {
		rec.DocumentID = id
	}
	return &rec, nil
}

func (s *HTTPStore) Write(ctx context.Context, id, content string) (*WriteResult, error) {
	payload := map[string]any{"content": content}
	var res WriteResult
	if err := s.do(ctx, "PUT", "/documents/"+id, payload, &res); err != nil {
		return nil, fmt.Errorf("records: write %s: %w", id, err)
	}
	if res.DocID == "" {
		res.DocID = id
	}
	return &res, nil
}

func (s *HTTPStore) Create(ctx context.Context, title, content string) (*WriteResult, error) {
	payload := map[string]any{"title": title, "content": content}
	var res WriteResult
	if err := s.do(ctx, "POST", "/documents", payload, &res); err != nil {
		return nil, fmt.Errorf("records: create %q: %w", title, err)
	}
	return &res, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// ExtractDocID pulls a document id out of a pasted URL. Inputs that are
// already bare ids pass through unchanged.
func ExtractDocID(s string) string {
	const marker = "/document/d/"
	i := strings.Index(s, marker)
	if i < 0 {
		return s
	}
	id := s[i+len(marker):]
	if j := strings.IndexAny(id, "/#?"); j >= 0 {
		id = id[:j]
	}
	return id
}
