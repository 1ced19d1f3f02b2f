// Package memstore is an in-memory Repository used by tests so the job
// subsystem never needs a real database to exercise its concurrency and
// ordering guarantees.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"reconctl/internal/repository"
)

// Store is a map-backed repository.Repository. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*repository.Job
	hosts   map[string]*repository.Host
	config  repository.Config
	logs    []*repository.Log
	nextLog int64
	display repository.DisplayStatus
}

// New returns an empty Store with default configuration.
func New() *Store {
	return &Store{
		jobs:  make(map[string]*repository.Job),
		hosts: make(map[string]*repository.Host),
		config: repository.Config{
			Settings: map[string]any{},
		},
	}
}

func cloneJob(j *repository.Job) *repository.Job {
	cp := *j
	if j.Config != nil {
		cp.Config = make(map[string]any, len(j.Config))
		for k, v := range j.Config {
			cp.Config[k] = v
		}
	}
	if j.Results != nil {
		r := *j.Results
		cp.Results = &r
	}
	if j.ScheduledAt != nil {
		t := *j.ScheduledAt
		cp.ScheduledAt = &t
	}
	return &cp
}

func cloneHost(h *repository.Host) *repository.Host {
	cp := *h
	cp.Ports = append([]repository.Port(nil), h.Ports...)
	cp.Banners = append([]string(nil), h.Banners...)
	cp.Services = append([]string(nil), h.Services...)
	cp.Vulnerabilities = append([]string(nil), h.Vulnerabilities...)
	return &cp
}

// CreateJob inserts j, failing with repository.ErrAlreadyExists if its ID
// is already taken.
func (s *Store) CreateJob(ctx context.Context, j *repository.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

// GetJob returns the job or repository.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

// ListJobs returns all jobs, most recently created first.
func (s *Store) ListJobs(ctx context.Context) ([]*repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// UpdateJobStatus writes status and refreshes UpdatedAt atomically.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateJobResults writes the results payload.
func (s *Store) UpdateJobResults(ctx context.Context, id, results string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	r := results
	j.Results = &r
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// GetQueuedJobs returns all jobs currently in StatusQueued.
func (s *Store) GetQueuedJobs(ctx context.Context) ([]*repository.Job, error) {
	return s.jobsInStatus(repository.StatusQueued), nil
}

// GetRunningJobs returns all jobs currently in StatusRunning.
func (s *Store) GetRunningJobs(ctx context.Context) ([]*repository.Job, error) {
	return s.jobsInStatus(repository.StatusRunning), nil
}

func (s *Store) jobsInStatus(status string) []*repository.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, cloneJob(j))
		}
	}
	return out
}

// GetScheduledJobsDue returns scheduled jobs whose ScheduledAt has passed.
func (s *Store) GetScheduledJobsDue(ctx context.Context, now time.Time) ([]*repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Job
	for _, j := range s.jobs {
		if j.Status == repository.StatusScheduled && j.ScheduledAt != nil && !j.ScheduledAt.After(now) {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

// UpsertHost inserts or merges h by IP, merging ports and banners rather than overwriting them.
func (s *Store) UpsertHost(ctx context.Context, h *repository.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.hosts[h.IP]
	if !ok {
		s.hosts[h.IP] = cloneHost(h)
		return nil
	}
	for _, p := range h.Ports {
		existing.AddPort(p.Number, p.Protocol, p.Status)
	}
	for _, b := range h.Banners {
		existing.AddBanner(b)
	}
	if h.Status != "" {
		existing.Status = h.Status
	}
	if h.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = h.LastSeen
	}
	if h.Hostname != "" {
		existing.Hostname = h.Hostname
	}
	if h.OS != "" {
		existing.OS = h.OS
	}
	if h.MAC != "" {
		existing.MAC = h.MAC
	}
	return nil
}

// GetHost returns the host or repository.ErrNotFound.
func (s *Store) GetHost(ctx context.Context, ip string) (*repository.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[ip]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneHost(h), nil
}

// ListHosts returns every known host.
func (s *Store) ListHosts(ctx context.Context) ([]*repository.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, cloneHost(h))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].IP < out[k].IP })
	return out, nil
}

// GetConfig returns the current configuration.
func (s *Store) GetConfig(ctx context.Context) (*repository.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(s.config.Settings))
	for k, v := range s.config.Settings {
		cp[k] = v
	}
	return &repository.Config{Settings: cp}, nil
}

// UpdateConfig replaces the stored configuration.
func (s *Store) UpdateConfig(ctx context.Context, c *repository.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(c.Settings))
	for k, v := range c.Settings {
		cp[k] = v
	}
	s.config = repository.Config{Settings: cp}
	return nil
}

// AddLog appends a log entry.
func (s *Store) AddLog(ctx context.Context, l *repository.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	cp := *l
	cp.ID = s.nextLog
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, &cp)
	return nil
}

// GetLogs returns up to limit most recent log entries.
func (s *Store) GetLogs(ctx context.Context, limit int) ([]*repository.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*repository.Log, limit)
	for i := 0; i < limit; i++ {
		cp := *s.logs[n-1-i]
		out[i] = &cp
	}
	return out, nil
}

// GetLogsForJob returns log entries tied to jobID.
func (s *Store) GetLogsForJob(ctx context.Context, jobID string) ([]*repository.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Log
	for _, l := range s.logs {
		if l.JobID != nil && *l.JobID == jobID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CleanupOldLogs deletes log entries older than days and returns the
// count removed.
func (s *Store) CleanupOldLogs(ctx context.Context, days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	kept := s.logs[:0:0]
	removed := 0
	for _, l := range s.logs {
		if l.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	s.logs = kept
	return removed, nil
}

// GetDisplayStatus returns the last known display text.
func (s *Store) GetDisplayStatus(ctx context.Context) (*repository.DisplayStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.display
	return &cp, nil
}

// UpdateDisplayStatus replaces the stored display text.
func (s *Store) UpdateDisplayStatus(ctx context.Context, d *repository.DisplayStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = *d
	return nil
}

var _ repository.Repository = (*Store)(nil)
