package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"reconctl/internal/httpx"
	"reconctl/internal/jobcore"
	"reconctl/internal/repository"
)

// getDisplayStatusHandler handles GET /api/display/status.
func getDisplayStatusHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := state.Repo.GetDisplayStatus(r.Context())
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}

type updateDisplayRequest struct {
	Text string `json:"text" validate:"required"`
}

// updateDisplayStatusHandler handles POST /api/display/update.
func updateDisplayStatusHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateDisplayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.Write(w, r, httpx.BadRequest("invalid json"))
			return
		}
		if err := validatePayload(&req); err != nil {
			httpx.Write(w, r, err)
			return
		}
		d := &repository.DisplayStatus{Text: req.Text, UpdatedAt: time.Now().UTC()}
		if err := state.Repo.UpdateDisplayStatus(r.Context(), d); err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}
