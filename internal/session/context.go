package session

import "context"

type recordContextKey struct{}

// ContextWithRecord stores the resolved session record in the context.
func ContextWithRecord(ctx context.Context, record Record) context.Context {
	return context.WithValue(ctx, recordContextKey{}, record)
}

// RecordFromContext extracts the session record, nil when unauthenticated.
func RecordFromContext(ctx context.Context) Record {
	record, _ := ctx.Value(recordContextKey{}).(Record)
	return record
}
