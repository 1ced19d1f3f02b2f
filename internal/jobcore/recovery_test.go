package jobcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reconctl/internal/repository"
)

func TestRecover_RequeuesRunningJobsAndExecutesWhenPermitFree(t *testing.T) {
	state, repo, _ := newTestState(2)
	ctx := context.Background()

	mustCreateJob(t, repo, "orphaned", repository.JobTypeExport, repository.PriorityNormal, repository.StatusRunning, time.Second)

	require.NoError(t, Recover(ctx, state))

	waitForStatus(t, repo, "orphaned", repository.StatusCompleted, time.Second)
}

func TestRecover_RequeuesEvenWithoutFreePermit(t *testing.T) {
	state, repo, _ := newTestState(1)
	ctx := context.Background()

	mustCreateJob(t, repo, "orphaned-2", repository.JobTypeExport, repository.PriorityNormal, repository.StatusRunning, time.Second)

	held, ok := state.Sem.TryAcquire()
	require.True(t, ok)
	defer held.Release()

	require.NoError(t, Recover(ctx, state))

	job, err := repo.GetJob(ctx, "orphaned-2")
	require.NoError(t, err)
	require.Equal(t, repository.StatusQueued, job.Status, "job must be requeued even when no permit is free")
}
