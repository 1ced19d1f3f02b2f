package httpapi

import (
	"encoding/json"
	"net/http"

	"reconctl/internal/httpx"
	"reconctl/internal/jobcore"
	"reconctl/internal/repository"
)

// getConfigHandler handles GET /api/config.
func getConfigHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := state.Repo.GetConfig(r.Context())
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

// updateConfigHandler handles POST /api/config: it replaces the stored
// settings map wholesale.
func updateConfigHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg repository.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			httpx.Write(w, r, httpx.BadRequest("invalid json"))
			return
		}
		if err := state.Repo.UpdateConfig(r.Context(), &cfg); err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}
