package jobcore

import (
	"context"
	"sort"

	"reconctl/internal/repository"
)

// RunQueue is one pass of the admission scheduler: read every queued job,
// order them by priority then by age, and admit as many as there are
// free permits. It stops at the first job it cannot admit rather than
// skipping over it, so a single congested priority band cannot starve
// jobs behind it out of order.
func RunQueue(ctx context.Context, state *State) {
	jobs, err := state.Repo.GetQueuedJobs(ctx)
	if err != nil {
		state.Log.Error().Err(err).Msg("run_queue: failed to list queued jobs")
		return
	}
	sortByPriorityThenAge(jobs)

	for _, job := range jobs {
		permit, ok := state.Sem.TryAcquire()
		if !ok {
			return
		}
		go execute(ctx, state, permit, job.ID)
	}
}

// sortByPriorityThenAge orders jobs by priority band descending, then by
// CreatedAt ascending within a band.
func sortByPriorityThenAge(jobs []*repository.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		ri, rj := repository.PriorityRank[jobs[i].Priority], repository.PriorityRank[jobs[j].Priority]
		if ri != rj {
			return ri > rj
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
