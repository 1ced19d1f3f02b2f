package sqlitestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"reconctl/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:memdb_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestCreateJob_RejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := &repository.Job{ID: "j1", JobType: repository.JobTypeExport, Status: repository.StatusQueued, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateJob(ctx, job))
	require.ErrorIs(t, s.CreateJob(ctx, job), repository.ErrAlreadyExists)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetJob_RoundTripsConfigAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	results := `{"open_ports":2}`
	job := &repository.Job{
		ID:        "j2",
		JobType:   repository.JobTypePortScan,
		Priority:  repository.PriorityHigh,
		Status:    repository.StatusCompleted,
		Config:    map[string]any{"target_ip": "10.0.0.1"},
		Results:   &results,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", got.Config["target_ip"])
	require.NotNil(t, got.Results)
	require.Equal(t, results, *got.Results)
}

func TestGetQueuedJobs_OnlyReturnsQueuedStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateJob(ctx, &repository.Job{ID: "q1", Status: repository.StatusQueued, JobType: repository.JobTypeExport, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.CreateJob(ctx, &repository.Job{ID: "r1", Status: repository.StatusRunning, JobType: repository.JobTypeExport, CreatedAt: now, UpdatedAt: now}))

	jobs, err := s.GetQueuedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "q1", jobs[0].ID)
}

func TestGetScheduledJobsDue_ExcludesFutureJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, s.CreateJob(ctx, &repository.Job{ID: "due", Status: repository.StatusScheduled, JobType: repository.JobTypeExport, ScheduledAt: &past, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.CreateJob(ctx, &repository.Job{ID: "future", Status: repository.StatusScheduled, JobType: repository.JobTypeExport, ScheduledAt: &future, CreatedAt: now, UpdatedAt: now}))

	due, err := s.GetScheduledJobsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
}

func TestUpdateJobStatus_NotFoundReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateJobStatus(context.Background(), "missing", repository.StatusRunning)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpsertHost_MergesPortsAndBannersAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertHost(ctx, &repository.Host{
		IP:      "10.0.0.1",
		Status:  repository.HostUp,
		Ports:   []repository.Port{{Number: 443, Protocol: "https", Status: "open"}},
		Banners: []string{"nginx"},
	}))
	require.NoError(t, s.UpsertHost(ctx, &repository.Host{
		IP:      "10.0.0.1",
		Status:  repository.HostUp,
		Ports:   []repository.Port{{Number: 22, Protocol: "ssh", Status: "open"}},
		Banners: []string{"OpenSSH"},
	}))

	host, err := s.GetHost(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, host.Ports, 2)
	require.Equal(t, 22, host.Ports[0].Number)
	require.Equal(t, 443, host.Ports[1].Number)
	require.ElementsMatch(t, []string{"nginx", "OpenSSH"}, host.Banners)
}

func TestUpsertHost_SamePortTwiceIsNotDuplicated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	h := &repository.Host{IP: "10.0.0.2", Status: repository.HostUp, Ports: []repository.Port{{Number: 80, Protocol: "http", Status: "open"}}}
	require.NoError(t, s.UpsertHost(ctx, h))
	require.NoError(t, s.UpsertHost(ctx, h))

	got, err := s.GetHost(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.Len(t, got.Ports, 1)
}

func TestGetHost_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetHost(context.Background(), "10.9.9.9")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListHosts_ReturnsAllInIPOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertHost(ctx, &repository.Host{IP: "10.0.0.2", Status: repository.HostUp}))
	require.NoError(t, s.UpsertHost(ctx, &repository.Host{IP: "10.0.0.1", Status: repository.HostUp}))

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	require.Equal(t, "10.0.0.1", hosts[0].IP)
	require.Equal(t, "10.0.0.2", hosts[1].IP)
}

func TestConfig_DefaultsWhenUnset(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.GetConfig(context.Background())
	require.NoError(t, err)
	require.Empty(t, cfg.Settings)
}

func TestConfig_UpdateThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpdateConfig(ctx, &repository.Config{Settings: map[string]any{"max_threads": float64(5)}}))

	cfg, err := s.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(5), cfg.Settings["max_threads"])

	require.NoError(t, s.UpdateConfig(ctx, &repository.Config{Settings: map[string]any{"max_threads": float64(10)}}))
	cfg, err = s.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(10), cfg.Settings["max_threads"])
}

func TestLogs_CleanupOldLogsRemovesOnlyStaleEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddLog(ctx, &repository.Log{Level: "info", Message: "fresh", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.AddLog(ctx, &repository.Log{Level: "warn", Message: "stale", CreatedAt: time.Now().UTC().AddDate(0, 0, -60)}))

	removed, err := s.CleanupOldLogs(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	logs, err := s.GetLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "fresh", logs[0].Message)
}

func TestLogs_GetLogsForJobFiltersByJobID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobID := "job-123"
	require.NoError(t, s.AddLog(ctx, &repository.Log{Level: "info", Message: "for job", JobID: &jobID, CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.AddLog(ctx, &repository.Log{Level: "info", Message: "unrelated", CreatedAt: time.Now().UTC()}))

	logs, err := s.GetLogsForJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "for job", logs[0].Message)
}

func TestDisplayStatus_DefaultsThenRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.GetDisplayStatus(ctx)
	require.NoError(t, err)
	require.Empty(t, d.Text)

	require.NoError(t, s.UpdateDisplayStatus(ctx, &repository.DisplayStatus{Text: "scanning 10.0.0.0/24"}))
	d, err = s.GetDisplayStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "scanning 10.0.0.0/24", d.Text)
}
