package jobcore

import (
	"context"

	"reconctl/internal/repository"
)

// Recover requeues every job left in running from a previous process (one
// that crashed or was killed mid-job). If a permit happens to be free at
// that instant it is re-executed immediately rather than waiting for the
// next RunQueue pass, so recovery doesn't stall behind the scheduler's
// own polling cadence.
func Recover(ctx context.Context, state *State) error {
	running, err := state.Repo.GetRunningJobs(ctx)
	if err != nil {
		return err
	}

	for _, job := range running {
		if err := state.Repo.UpdateJobStatus(ctx, job.ID, repository.StatusQueued); err != nil {
			state.Log.Error().Err(err).Str("job_id", job.ID).Msg("recovery: failed to requeue interrupted job")
			continue
		}
		state.Log.Warn().Str("job_id", job.ID).Msg("recovery: requeued job interrupted by crash")

		if permit, ok := state.Sem.TryAcquire(); ok {
			go execute(ctx, state, permit, job.ID)
		}
	}
	return nil
}
