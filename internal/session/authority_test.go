package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"invigil/internal/session/store/account"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
)

// countingStore wraps the in-memory account store so tests can assert
// whether the authority was actually consulted.
type countingStore struct {
	*account.InMemoryStore
	finds atomic.Int64
}

func (s *countingStore) FindByID(ctx context.Context, userID id.UserID) (*account.Account, error) {
	s.finds.Add(1)
	return s.InMemoryStore.FindByID(ctx, userID)
}

// blockingStore never answers; used to exercise the resolve timeout.
type blockingStore struct {
	account.InMemoryStore
}

func (s *blockingStore) FindByID(ctx context.Context, _ id.UserID) (*account.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type AuthoritySuite struct {
	suite.Suite
	store     *countingStore
	cache     *InMemoryCache
	authority *Authority
	userID    id.UserID
}

func (s *AuthoritySuite) SetupTest() {
	s.store = &countingStore{InMemoryStore: account.NewInMemoryStore()}
	s.cache = NewInMemoryCache()
	s.authority = NewAuthority(s.store, s.cache, 300*time.Second, time.Second, slog.Default())

	s.userID = id.NewUserID()
	s.Require().NoError(s.store.Save(context.Background(), account.Account{
		ID:           s.userID,
		OrgID:        id.NewOrgID(),
		Role:         "student",
		Active:       true,
		FeatureFlags: []string{"proctoring"},
	}))
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) TestCacheCoherence() {
	ctx := context.Background()

	resolved, err := s.authority.Resolve(ctx, s.userID)
	s.Require().NoError(err)
	s.True(resolved.Active)

	cached, err := s.cache.Get(ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(resolved, cached)
}

func (s *AuthoritySuite) TestAuthorizeUsesCacheWithinTTL() {
	ctx := context.Background()

	_, err := s.authority.Authorize(ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(int64(1), s.store.finds.Load())

	_, err = s.authority.Authorize(ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(int64(1), s.store.finds.Load(), "second authorize should be served from cache")
}

func (s *AuthoritySuite) TestSuspension() {
	ctx := context.Background()

	s.Run("explicit suspend takes effect on the next request", func() {
		_, err := s.authority.Authorize(ctx, s.userID)
		s.Require().NoError(err)

		s.Require().NoError(s.authority.Suspend(ctx, s.userID))

		_, err = s.authority.Authorize(ctx, s.userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountSuspended))
	})

	s.Run("deactivation without invalidation leaves the staleness window open", func() {
		// Documents the deliberate TTL trade-off: flipping the durable flag
		// alone does not evict the cached allow decision.
		userID := id.NewUserID()
		s.Require().NoError(s.store.Save(ctx, account.Account{
			ID: userID, OrgID: id.NewOrgID(), Role: "student", Active: true,
		}))

		_, err := s.authority.Authorize(ctx, userID)
		s.Require().NoError(err)

		s.Require().NoError(s.store.SetActive(ctx, userID, false))

		projection, err := s.authority.Authorize(ctx, userID)
		s.Require().NoError(err)
		s.True(projection.Active)
	})

	s.Run("unknown subject resolves as suspended", func() {
		_, err := s.authority.Resolve(ctx, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountSuspended))
	})

	s.Run("suspending an unknown subject is not found", func() {
		err := s.authority.Suspend(ctx, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AuthoritySuite) TestReinstate() {
	ctx := context.Background()

	s.Require().NoError(s.authority.Suspend(ctx, s.userID))
	s.Require().NoError(s.authority.Reinstate(ctx, s.userID))

	projection, err := s.authority.Authorize(ctx, s.userID)
	s.Require().NoError(err)
	s.True(projection.Active)
}

func (s *AuthoritySuite) TestResolveTimeoutIsUnavailable() {
	authority := NewAuthority(&blockingStore{}, NewInMemoryCache(), 300*time.Second, 20*time.Millisecond, slog.Default())

	_, err := authority.Resolve(context.Background(), s.userID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.False(dErrors.HasCode(err, dErrors.CodeAccountSuspended), "timeout must stay distinct from suspension")
}

func (s *AuthoritySuite) TestMustChangePasswordSurfaced() {
	ctx := context.Background()
	userID := id.NewUserID()
	s.Require().NoError(s.store.Save(ctx, account.Account{
		ID: userID, OrgID: id.NewOrgID(), Role: "student", Active: true,
		MustChangePassword: true,
	}))

	projection, err := s.authority.Resolve(ctx, userID)
	s.Require().NoError(err)
	s.True(projection.MustChangePassword)
}
