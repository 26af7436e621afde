package orders

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// WithTraceID attaches the request ID that ends up on published events.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func newOrderID() string { return uuid.NewString() }
