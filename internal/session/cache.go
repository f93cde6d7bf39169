package session

import (
	"context"
	"time"

	id "invigil/pkg/domain"
)

// Cache is the fast-path lookup for session projections.
//
// Guarantees: Get returns either a not-yet-expired projection or
// sentinel.ErrNotFound - never a stale-beyond-TTL value. Put overwrites
// unconditionally (last-writer-wins: the only writer per subject is the
// authoritative lookup triggered by that subject's own request, and
// concurrent identical writes are idempotent). Invalidate removes the entry
// immediately; it is the only way to guarantee sub-TTL suspension effect.
type Cache interface {
	Get(ctx context.Context, userID id.UserID) (*Projection, error)
	Put(ctx context.Context, userID id.UserID, projection *Projection, ttl time.Duration) error
	Invalidate(ctx context.Context, userID id.UserID) error
}
