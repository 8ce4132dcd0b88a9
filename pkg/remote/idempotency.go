package remote

import "context"

type idempotencyKey struct{}

// WithIdempotencyKey attaches a replay deduplication key to ctx. The syncer
// sets this to the mutation id before replaying a create, so a backend that
// honors idempotency keys can drop a duplicate replay after a crash between
// remote success and local removal.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the replay deduplication key attached to ctx, if any.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}
