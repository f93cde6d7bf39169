package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"invigil/internal/identity"
	"invigil/internal/session"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
	"invigil/pkg/platform/httputil"
	"invigil/pkg/requestcontext"
)

// AuthCookieName is the fallback credential transport: a same-site,
// http-only cookie set by the login flow. The Authorization header always
// wins when both are present.
const AuthCookieName = "invigil_token"

// authorityRetryBackoff is the single backoff applied before retrying an
// authorize call that failed as unavailable.
const authorityRetryBackoff = 100 * time.Millisecond

// Authorizer is the session-layer decision point consulted on every
// authenticated request.
type Authorizer interface {
	Authorize(ctx context.Context, userID id.UserID) (*session.Projection, error)
}

type projectionKey struct{}

// ProjectionFrom retrieves the authenticated session projection stored by
// RequireAuth. Returns nil outside an authenticated request.
func ProjectionFrom(ctx context.Context) *session.Projection {
	if p, ok := ctx.Value(projectionKey{}).(*session.Projection); ok {
		return p
	}
	return nil
}

// RequireAuth authenticates every request: credential extraction, structural
// verification, then the cache-fronted authority check. All failure modes
// collapse to a single unauthenticated response; the log line keeps them
// distinct.
func RequireAuth(verifier *identity.Verifier, authorizer Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			raw, ok := extractCredential(r)
			if !ok {
				logger.WarnContext(ctx, "unauthenticated request, missing credential",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated request, credential rejected",
					"reason", credentialFailureReason(err),
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired credential"))
				return
			}

			projection, err := authorizeWithRetry(ctx, authorizer, claims.UserID)
			if err != nil {
				logger.WarnContext(ctx, "session authorization failed",
					"error", err,
					"user_id", claims.UserID.String(),
					"request_id", requestID,
				)
				// Fail closed on authority unavailability: the suspension
				// invariant outranks availability here.
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session not authorized"))
				return
			}

			if projection.MustChangePassword {
				// Surfaced so the client can force a credential-rotation flow
				// without another lookup.
				w.Header().Set("X-Must-Change-Password", "true")
			}

			ctx = requestcontext.WithUserID(ctx, projection.UserID)
			ctx = requestcontext.WithRole(ctx, projection.Role)
			ctx = context.WithValue(ctx, projectionKey{}, projection)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential pulls the bearer credential from the Authorization
// header, falling back to the auth cookie. Header wins when both present.
func extractCredential(r *http.Request) (string, bool) {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && after != "" {
		return after, true
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// authorizeWithRetry retries exactly once, with backoff, when the authority
// is unavailable. Anything else fails immediately.
func authorizeWithRetry(ctx context.Context, authorizer Authorizer, userID id.UserID) (*session.Projection, error) {
	projection, err := authorizer.Authorize(ctx, userID)
	if err == nil || !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return projection, err
	}

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(authorityRetryBackoff):
	}
	return authorizer.Authorize(ctx, userID)
}

func credentialFailureReason(err error) string {
	switch {
	case errors.Is(err, identity.ErrExpired):
		return "expired"
	case errors.Is(err, identity.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "malformed"
	}
}

// RequireRole gates a route on the authenticated subject's role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestcontext.Role(r.Context()) != role {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature gates a route on an organization feature flag. The
// rejection carries its own code so clients can render "feature disabled"
// instead of treating it as an authentication failure.
func RequireFeature(flag string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projection := ProjectionFrom(r.Context())
			if projection == nil || !projection.HasFeature(flag) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeFeatureDisabled, "feature disabled for this organization"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
