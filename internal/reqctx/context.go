package reqctx

import "context"

type ctxKey string

const (
	keyRID ctxKey = "req_rid"
	keyUID ctxKey = "req_uid"
)

// WithRID stores the request correlation id for structured logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns the correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithUID stores the authenticated user id.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUID, uid)
}

// UID returns the authenticated user id if present.
func UID(ctx context.Context) string {
	v, _ := ctx.Value(keyUID).(string)
	return v
}
