package jobcore

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"reconctl/internal/repository"
)

// pollInterval is how often the scheduled dispatcher checks for due jobs.
const pollInterval = 30 * time.Second

// StartDispatcher registers the scheduled dispatcher on sched and starts
// it. Unlike RunQueue's non-blocking admission, the dispatcher blocks on
// each due job until a permit frees up, so a burst of due jobs drains in
// priority order rather than being dropped on a busy tick.
func StartDispatcher(ctx context.Context, state *State, sched *gocron.Scheduler) error {
	_, err := sched.Every(uint64(pollInterval.Seconds())).Seconds().Do(func() {
		dispatchDue(ctx, state)
	})
	if err != nil {
		return err
	}
	sched.StartAsync()
	return nil
}

func dispatchDue(ctx context.Context, state *State) {
	jobs, err := state.Repo.GetScheduledJobsDue(ctx, time.Now().UTC())
	if err != nil {
		state.Log.Error().Err(err).Msg("scheduled dispatcher: failed to list due jobs")
		return
	}
	sortByPriorityThenAge(jobs)

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		permit, err := state.Sem.Acquire(ctx)
		if err != nil {
			return
		}
		if err := state.Repo.UpdateJobStatus(ctx, job.ID, repository.StatusQueued); err != nil {
			state.Log.Error().Err(err).Str("job_id", job.ID).Msg("scheduled dispatcher: failed to requeue due job")
			permit.Release()
			continue
		}
		go execute(ctx, state, permit, job.ID)
	}
}
