package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"reconctl/internal/httpx"
	"reconctl/internal/jobcore"
	"reconctl/internal/repository"
)

var validate = validator.New()

type createJobRequest struct {
	JobType     string         `json:"job_type" validate:"required"`
	Target      string         `json:"target"`
	Priority    string         `json:"priority"`
	Config      map[string]any `json:"config"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
}

func validatePayload(v interface{}) *httpx.HTTPError {
	if err := validate.Struct(v); err != nil {
		return httpx.BadRequest(err.Error())
	}
	return nil
}

// createJobHandler handles POST /api/jobs: validates the request, writes
// a queued (or scheduled) job row, and kicks an immediate admission pass
// so a free permit is used without waiting on the next scheduler tick.
func createJobHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.Write(w, r, httpx.BadRequest("invalid json"))
			return
		}
		if err := validatePayload(&req); err != nil {
			httpx.Write(w, r, err)
			return
		}
		cfg := req.Config
		if req.JobType == repository.JobTypeDiscovery {
			if _, _, err := net.ParseCIDR(req.Target); err != nil {
				httpx.Write(w, r, httpx.BadRequest(fmt.Sprintf("Invalid CIDR notation: %s", req.Target)))
				return
			}
			if cfg == nil {
				cfg = map[string]any{}
			}
			cfg["target"] = req.Target
		}

		now := time.Now().UTC()
		status := repository.StatusQueued
		if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
			status = repository.StatusScheduled
		}
		job := &repository.Job{
			ID:          uuid.NewString(),
			JobType:     req.JobType,
			Priority:    jobcore.NormalizePriority(req.Priority),
			Status:      status,
			Config:      cfg,
			CreatedAt:   now,
			UpdatedAt:   now,
			ScheduledAt: req.ScheduledAt,
		}
		if err := state.Repo.CreateJob(r.Context(), job); err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		state.Bus.Publish(fmt.Sprintf("job_created:%s", job.ID))

		if status == repository.StatusQueued {
			go jobcore.RunQueue(context.WithoutCancel(r.Context()), state)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(job)
	}
}

// listJobsHandler handles GET /api/jobs.
func listJobsHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := state.Repo.ListJobs(r.Context())
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jobs)
	}
}

// getJobHandler handles GET /api/jobs/{id}.
func getJobHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := state.Repo.GetJob(r.Context(), id)
		if err == repository.ErrNotFound {
			httpx.Write(w, r, httpx.NotFound("job not found"))
			return
		}
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

// cancelJobHandler handles POST /api/jobs/{id}/cancel. A job may be
// cancelled from queued or running; any other status is a 400.
func cancelJobHandler(state *jobcore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := state.Repo.GetJob(r.Context(), id)
		if err == repository.ErrNotFound {
			httpx.Write(w, r, httpx.NotFound("job not found"))
			return
		}
		if err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		if !jobcore.CanCancel(job.Status) {
			httpx.Write(w, r, httpx.BadRequest(fmt.Sprintf("cannot cancel job in status %q", job.Status)))
			return
		}
		if err := state.Repo.UpdateJobStatus(r.Context(), id, repository.StatusCancelled); err != nil {
			httpx.Write(w, r, httpx.Internal(err))
			return
		}
		state.Bus.Publish(fmt.Sprintf("job_cancelled:%s", id))
		job.Status = repository.StatusCancelled
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}
