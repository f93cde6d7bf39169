// Package account holds the durable account truth behind the session layer.
package account

import (
	"context"

	id "invigil/pkg/domain"
)

// Account is the authoritative record for a subject. The session layer
// derives cacheable projections from it; nothing else reads this store on
// the request hot path.
type Account struct {
	ID                 id.UserID
	OrgID              id.OrgID
	Role               string
	Active             bool
	FeatureFlags       []string
	MustChangePassword bool
}

// Store abstracts durable account persistence.
// FindByID returns sentinel.ErrNotFound for unknown subjects.
type Store interface {
	FindByID(ctx context.Context, userID id.UserID) (*Account, error)
	SetActive(ctx context.Context, userID id.UserID, active bool) error
}
