package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"invigil/internal/platform/middleware"
	"invigil/internal/session"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
	"invigil/pkg/platform/httputil"
	"invigil/pkg/requestcontext"
)

// SessionHandler exposes the authenticated-session surface: projection
// introspection and administrative suspension.
type SessionHandler struct {
	authority *session.Authority
	logger    *slog.Logger
}

func NewSessionHandler(authority *session.Authority, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{authority: authority, logger: logger}
}

// HandleMe returns the caller's resolved session projection. The projection
// was already loaded by the auth middleware; no second lookup happens here.
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	projection := middleware.ProjectionFrom(r.Context())
	if projection == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no active session"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, projection)
}

// HandleSuspend deactivates an account and evicts its cached projection so
// the suspension takes effect before the cache TTL runs out.
func (h *SessionHandler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseUserID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.authority.Suspend(r.Context(), accountID); err != nil {
		h.logger.ErrorContext(r.Context(), "account suspension failed",
			"error", err,
			"account_id", accountID.String(),
			"actor_id", requestcontext.UserID(r.Context()).String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

// HandleReinstate reactivates a previously suspended account.
func (h *SessionHandler) HandleReinstate(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseUserID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.authority.Reinstate(r.Context(), accountID); err != nil {
		h.logger.ErrorContext(r.Context(), "account reinstatement failed",
			"error", err,
			"account_id", accountID.String(),
			"actor_id", requestcontext.UserID(r.Context()).String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "active"})
}
