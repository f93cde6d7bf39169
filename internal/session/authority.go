package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"invigil/internal/session/store/account"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
	"invigil/pkg/platform/sentinel"
	pstrings "invigil/pkg/platform/strings"
)

var resolveDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "invigil_session_resolve_duration_ms",
	Help:    "Latency of authoritative session resolution in milliseconds",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
})

// Authority is the source of truth for account/session state. The cache in
// front of it is strictly an accelerator: whenever the authority itself is
// consulted, its answer wins.
type Authority struct {
	store   account.Store
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewAuthority constructs the session authority. ttl is the fixed cache TTL
// for resolved projections; timeout bounds the store lookup (the only
// blocking point in the authentication path).
func NewAuthority(store account.Store, cache Cache, ttl, timeout time.Duration, logger *slog.Logger) *Authority {
	return &Authority{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve performs the authoritative check: the subject must exist and be
// active, otherwise the lookup fails with account_suspended. On success the
// cache is populated with the fixed TTL and the projection returned.
// A store timeout is reported as unavailable, distinct from suspension, so
// the caller can decide fail-open versus fail-closed.
func (a *Authority) Resolve(ctx context.Context, userID id.UserID) (*Projection, error) {
	start := time.Now()
	defer func() {
		resolveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	acct, err := a.store.FindByID(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeAccountSuspended, "account suspended")
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sentinel.ErrUnavailable):
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "account lookup unavailable")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
		}
	}
	if !acct.Active {
		return nil, dErrors.New(dErrors.CodeAccountSuspended, "account suspended")
	}

	projection := &Projection{
		UserID: acct.ID,
		Role:   acct.Role,
		OrgID:  acct.OrgID,
		Active: true,
		// Flags are matched case-insensitively; normalize once at resolve
		// time so every downstream check compares canonical values.
		FeatureFlags:       pstrings.DedupeAndTrimLower(acct.FeatureFlags),
		MustChangePassword: acct.MustChangePassword,
		ResolvedAt:         time.Now(),
	}

	// Cache population is best-effort; a cache outage slows requests down,
	// it does not fail them.
	if err := a.cache.Put(ctx, userID, projection, a.ttl); err != nil {
		a.logger.Warn("failed to cache session projection",
			"error", err,
			"user_id", userID.String(),
		)
	}

	return projection, nil
}

// Authorize is the hot path used on every authenticated request: cache hit
// within TTL is trusted as-is, a miss falls through to Resolve. Cache read
// errors degrade to a miss so a cache outage never locks everyone out on its
// own.
func (a *Authority) Authorize(ctx context.Context, userID id.UserID) (*Projection, error) {
	projection, err := a.cache.Get(ctx, userID)
	if err == nil && projection.Active {
		return projection, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		a.logger.Warn("session cache read failed, falling through to authority",
			"error", err,
			"user_id", userID.String(),
		)
	}
	return a.Resolve(ctx, userID)
}

// Suspend deactivates the account and synchronously evicts its cached
// projection. The eviction is what guarantees sub-TTL suspension effect;
// waiting out the TTL is not acceptable for an administrative suspension.
func (a *Authority) Suspend(ctx context.Context, userID id.UserID) error {
	if err := a.store.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to suspend account")
	}
	if err := a.cache.Invalidate(ctx, userID); err != nil {
		// The durable flag is already flipped; surface the eviction failure
		// because the sub-TTL guarantee depends on it.
		return dErrors.Wrap(err, dErrors.CodeInternal, "account suspended but cache eviction failed")
	}
	a.logger.Info("account suspended", "user_id", userID.String())
	return nil
}

// Reinstate reactivates the account. No cache work needed: the next request
// repopulates via Resolve.
func (a *Authority) Reinstate(ctx context.Context, userID id.UserID) error {
	if err := a.store.SetActive(ctx, userID, true); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reinstate account")
	}
	a.logger.Info("account reinstated", "user_id", userID.String())
	return nil
}
