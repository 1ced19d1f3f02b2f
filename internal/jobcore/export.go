package jobcore

import (
	"context"
	"encoding/json"
	"time"

	"reconctl/internal/repository"
)

// exportSnapshot is the shape of an export job's results blob.
type exportSnapshot struct {
	ExportDate time.Time          `json:"export_date"`
	Jobs       []*repository.Job  `json:"jobs"`
	Hosts      []*repository.Host `json:"hosts"`
}

// runExport builds a JSON snapshot of every job and host currently known
// to the repository and returns it as the export job's results. The blob
// is returned as results and never separately written to disk.
func runExport(ctx context.Context, state *State, job *repository.Job) (string, error) {
	jobs, err := state.Repo.ListJobs(ctx)
	if err != nil {
		return "", err
	}
	hosts, err := state.Repo.ListHosts(ctx)
	if err != nil {
		return "", err
	}

	snapshot := exportSnapshot{
		ExportDate: time.Now().UTC(),
		Jobs:       jobs,
		Hosts:      hosts,
	}
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}
