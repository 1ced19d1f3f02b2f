package jobcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reconctl/internal/repository"
)

func TestDispatchDue_PromotesAndExecutesDueJobs(t *testing.T) {
	state, repo, _ := newTestState(2)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	job := &repository.Job{
		ID:          "scheduled-1",
		JobType:     repository.JobTypeExport,
		Priority:    repository.PriorityNormal,
		Status:      repository.StatusScheduled,
		Config:      map[string]any{},
		ScheduledAt: &past,
	}
	require.NoError(t, repo.CreateJob(ctx, job))

	dispatchDue(ctx, state)

	waitForStatus(t, repo, "scheduled-1", repository.StatusCompleted, time.Second)
}

func TestDispatchDue_IgnoresNotYetDueJobs(t *testing.T) {
	state, repo, _ := newTestState(2)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	job := &repository.Job{
		ID:          "scheduled-future",
		JobType:     repository.JobTypeExport,
		Priority:    repository.PriorityNormal,
		Status:      repository.StatusScheduled,
		Config:      map[string]any{},
		ScheduledAt: &future,
	}
	require.NoError(t, repo.CreateJob(ctx, job))

	dispatchDue(ctx, state)
	time.Sleep(20 * time.Millisecond)

	got, err := repo.GetJob(ctx, "scheduled-future")
	require.NoError(t, err)
	require.Equal(t, repository.StatusScheduled, got.Status)
}
