package port

import "context"

type CacheRepository interface {
	// ClaimIdempotency reserves key for an in-flight request, returns false if already claimed
	ClaimIdempotency(ctx context.Context, key string) (bool, error)

	// LookupIdempotency returns the order recorded for key, or 0 while the claim is still pending
	LookupIdempotency(ctx context.Context, key string) (int64, error)

	// CompleteIdempotency records the order produced under key
	CompleteIdempotency(ctx context.Context, key string, orderID int64) error

	// ReleaseIdempotency drops a claim after a failed request
	ReleaseIdempotency(ctx context.Context, key string) error
}
