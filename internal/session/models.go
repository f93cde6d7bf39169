// Package session implements the authenticated-session validation layer:
// a cache-backed projection of account state in front of the authoritative
// store, with explicit invalidation for near-real-time suspension.
package session

import (
	"time"

	id "invigil/pkg/domain"
)

// Projection is the derived, cacheable view of a subject's authorization
// state. It is only ever built from authoritative data and only ever cached
// when the account is active, so a cache hit implies an allow decision
// (bounded by the cache TTL).
type Projection struct {
	UserID             id.UserID `json:"user_id"`
	Role               string    `json:"role"`
	OrgID              id.OrgID  `json:"org_id"`
	Active             bool      `json:"active"`
	FeatureFlags       []string  `json:"feature_flags,omitempty"`
	MustChangePassword bool      `json:"must_change_password"`
	ResolvedAt         time.Time `json:"resolved_at"`
}

// HasFeature reports whether the subject's organization has the named
// feature flag enabled.
func (p *Projection) HasFeature(flag string) bool {
	for _, f := range p.FeatureFlags {
		if f == flag {
			return true
		}
	}
	return false
}
