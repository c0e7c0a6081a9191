package agent

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const sessionCtxKey contextKey = 0

// WithSession returns a context carrying the session id. Tool executions
// read it back to address the right SharedState.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionFromContext returns the session id from the context, or "".
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey).(string)
	return id
}

// NewSessionID generates a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}
