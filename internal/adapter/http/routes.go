package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Executions
		r.Post("/executions", h.OpenExecution)
		r.Get("/executions/{id}", h.GetStatus)
		r.Get("/executions/{id}/breaker", h.CheckBreaker)
		r.Post("/executions/{id}/close", h.CloseExecution)

		// Eager charges
		r.Post("/executions/{id}/tokens", h.ChargeTokens)
		r.Post("/executions/{id}/tool-calls", h.ChargeToolCall)
		r.Post("/executions/{id}/external-requests", h.ChargeExternalRequest)
		r.Post("/executions/{id}/penalties", h.ApplyPenalty)

		// Holds
		r.Post("/executions/{id}/holds", h.OpenHold)
		r.Post("/holds/{id}/resolve", h.ResolveHold)

		// History
		r.Get("/history", h.History)
	})
}
