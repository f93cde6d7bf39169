// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns stay
// isolated.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invigil/internal/identity"
	"invigil/internal/platform/middleware"
	"invigil/internal/session"
	"invigil/internal/telemetry"
	"invigil/pkg/platform/httputil"
)

// ProctoringFeature is the org feature flag gating the telemetry surface.
const ProctoringFeature = "proctoring"

// Deps carries everything the router wires together.
type Deps struct {
	Verifier  *identity.Verifier
	Authority *session.Authority
	Ingestor  *telemetry.Ingestor
	Logger    *slog.Logger
}

// NewRouter mounts all public endpoints.
//
// Everything under the authenticated group runs the full credential ->
// cache -> authority chain; telemetry additionally requires the proctoring
// feature flag for the subject's organization.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	sessionHandler := NewSessionHandler(deps.Authority, deps.Logger)
	telemetryHandler := NewTelemetryHandler(deps.Ingestor, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Verifier, deps.Authority, deps.Logger))

		r.Get("/session/me", sessionHandler.HandleMe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/admin/accounts/{accountID}/suspend", sessionHandler.HandleSuspend)
			r.Post("/admin/accounts/{accountID}/reinstate", sessionHandler.HandleReinstate)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireFeature(ProctoringFeature))
			r.Post("/telemetry/events", telemetryHandler.HandleEvent)
			r.Post("/telemetry/violations", telemetryHandler.HandleViolation)
			r.Post("/telemetry/heartbeat", telemetryHandler.HandleHeartbeat)
		})
	})

	return r
}
