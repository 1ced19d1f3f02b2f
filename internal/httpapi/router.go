// Package httpapi is the HTTP surface of the control plane, built with
// chi.Router and trimmed to the route table this domain actually needs.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"reconctl/internal/jobcore"
	"reconctl/internal/telemetry"
)

// New builds the full router: job, host, config, and display endpoints
// plus the /ws event stream.
func New(state *jobcore.State, hub wsHub, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(securityHeaders)
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(log))
	r.Use(telemetry.HTTP)

	r.Post("/api/jobs", rateLimited(createJobHandler(state)))
	r.Get("/api/jobs", listJobsHandler(state))
	r.Get("/api/jobs/{id}", getJobHandler(state))
	r.Post("/api/jobs/{id}/cancel", cancelJobHandler(state))

	r.Get("/api/hosts", listHostsHandler(state))
	r.Get("/api/hosts/{ip}", getHostHandler(state))

	r.Get("/api/config", getConfigHandler(state))
	r.Post("/api/config", updateConfigHandler(state))

	r.Get("/api/display/status", getDisplayStatusHandler(state))
	r.Post("/api/display/update", updateDisplayStatusHandler(state))

	r.Get("/ws", wsHandler(hub))

	return r
}
