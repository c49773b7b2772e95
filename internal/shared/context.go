package shared

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for run-scoped data. Keep types unexported to avoid collisions.
type ctxKey string

const ctxKeyRunID ctxKey = "run-id"

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// NewRun attaches a fresh run ID to ctx and returns it alongside.
func NewRun(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithRunID(ctx, id), id
}

func RunID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRunID).(string)
	return v
}
