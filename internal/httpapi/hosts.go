package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reconctl/internal/jobcore"
	"reconctl/internal/httpx"
	"reconctl/internal/repository"
)

// listHostsHandler handles GET /api/hosts.
func listHostsHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hosts, err := state.Repo.ListHosts(r.Context())
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=5")
		json.NewEncoder(w).Encode(hosts)
	}
}

// getHostHandler handles GET /api/hosts/{ip}.
func getHostHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := chi.URLParam(r, "ip")
		host, err := state.Repo.GetHost(r.Context(), ip)
		if err == repository.ErrNotFound {
			httpx.Write(w, r, httpx.NotFound("host not found"))
			return
		}
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(host)
	}
}
