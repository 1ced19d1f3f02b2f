// Package sqlitestore is the durable repository.Repository implementation,
// backed by modernc.org/sqlite: plain database/sql, hand-written queries,
// no ORM.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconctl/internal/repository"
)

// Store is a repository.Repository backed by a *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps db. Callers must run Migrate(db) first.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toEpoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromEpoch(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

// CreateJob inserts j, failing with repository.ErrAlreadyExists on a
// duplicate id.
func (s *Store) CreateJob(ctx context.Context, j *repository.Job) error {
	cfg, err := json.Marshal(j.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var scheduledAt any
	if j.ScheduledAt != nil {
		scheduledAt = toEpoch(*j.ScheduledAt)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs(id, job_type, priority, status, config, results, created_at, updated_at, scheduled_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		j.ID, j.JobType, j.Priority, j.Status, string(cfg), j.Results, toEpoch(j.CreatedAt), toEpoch(j.UpdatedAt), scheduledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (contains(err.Error(), "UNIQUE constraint") || contains(err.Error(), "constraint failed"))
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func scanJob(row interface{ Scan(...any) error }) (*repository.Job, error) {
	var j repository.Job
	var cfg string
	var results sql.NullString
	var createdAt, updatedAt int64
	var scheduledAt sql.NullInt64
	if err := row.Scan(&j.ID, &j.JobType, &j.Priority, &j.Status, &cfg, &results, &createdAt, &updatedAt, &scheduledAt); err != nil {
		return nil, err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &j.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if results.Valid {
		r := results.String
		j.Results = &r
	}
	j.CreatedAt = fromEpoch(createdAt)
	j.UpdatedAt = fromEpoch(updatedAt)
	if scheduledAt.Valid {
		t := fromEpoch(scheduledAt.Int64)
		j.ScheduledAt = &t
	}
	return &j, nil
}

const jobColumns = `id, job_type, priority, status, IFNULL(config,'{}'), results, created_at, updated_at, scheduled_at`

// GetJob returns the job or repository.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*repository.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return j, err
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*repository.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*repository.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobs returns all jobs, most recently created first.
func (s *Store) ListJobs(ctx context.Context) ([]*repository.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
}

// GetQueuedJobs returns all jobs currently in StatusQueued.
func (s *Store) GetQueuedJobs(ctx context.Context) ([]*repository.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=?`, repository.StatusQueued)
}

// GetRunningJobs returns all jobs currently in StatusRunning.
func (s *Store) GetRunningJobs(ctx context.Context) ([]*repository.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=?`, repository.StatusRunning)
}

// GetScheduledJobsDue returns scheduled jobs whose scheduled_at has passed.
func (s *Store) GetScheduledJobsDue(ctx context.Context, now time.Time) ([]*repository.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=? AND scheduled_at IS NOT NULL AND scheduled_at<=?`,
		repository.StatusScheduled, toEpoch(now))
}

// UpdateJobStatus writes status and refreshes updated_at atomically.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, updated_at=? WHERE id=?`, status, time.Now().UTC().Unix(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateJobResults writes the results payload.
func (s *Store) UpdateJobResults(ctx context.Context, id, results string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET results=?, updated_at=? WHERE id=?`, results, time.Now().UTC().Unix(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertHost inserts or merges h by IP, merging ports and banners rather than overwriting them.
func (s *Store) UpsertHost(ctx context.Context, h *repository.Host) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := getHostTx(ctx, tx, h.IP)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	merged := h
	if existing != nil {
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
		merged = existing
	}

	services, _ := json.Marshal(merged.Services)
	vulns, _ := json.Marshal(merged.Vulnerabilities)
	status := merged.Status
	if status == "" {
		status = repository.HostUnknown
	}
	firstSeen := merged.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}
	lastSeen := merged.LastSeen
	if lastSeen.IsZero() {
		lastSeen = firstSeen
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO hosts(ip, status, first_seen, last_seen, hostname, os, mac, services, vulnerabilities)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ip) DO UPDATE SET status=excluded.status, last_seen=excluded.last_seen,
			hostname=excluded.hostname, os=excluded.os, mac=excluded.mac,
			services=excluded.services, vulnerabilities=excluded.vulnerabilities`,
		merged.IP, status, toEpoch(firstSeen), toEpoch(lastSeen), merged.Hostname, merged.OS, merged.MAC, string(services), string(vulns))
	if err != nil {
		return err
	}

	for _, p := range merged.Ports {
		if _, err := tx.ExecContext(ctx, `INSERT INTO host_ports(host_ip, number, protocol, status) VALUES(?,?,?,?)
			ON CONFLICT(host_ip, number, protocol) DO UPDATE SET status=excluded.status`,
			merged.IP, p.Number, p.Protocol, p.Status); err != nil {
			return err
		}
	}
	for i, b := range merged.Banners {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO host_banners(host_ip, position, banner) VALUES(?,?,?)`,
			merged.IP, i, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func getHostTx(ctx context.Context, tx *sql.Tx, ip string) (*repository.Host, error) {
	row := tx.QueryRowContext(ctx, `SELECT ip, status, first_seen, last_seen, hostname, os, mac, IFNULL(services,'[]'), IFNULL(vulnerabilities,'[]')
		FROM hosts WHERE ip=?`, ip)
	h, err := scanHostRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ports, err := loadPortsTx(ctx, tx, ip)
	if err != nil {
		return nil, err
	}
	h.Ports = ports
	banners, err := loadBannersTx(ctx, tx, ip)
	if err != nil {
		return nil, err
	}
	h.Banners = banners
	return h, nil
}

func scanHostRow(row interface{ Scan(...any) error }) (*repository.Host, error) {
	var h repository.Host
	var firstSeen, lastSeen int64
	var services, vulns string
	if err := row.Scan(&h.IP, &h.Status, &firstSeen, &lastSeen, &h.Hostname, &h.OS, &h.MAC, &services, &vulns); err != nil {
		return nil, err
	}
	h.FirstSeen = fromEpoch(firstSeen)
	h.LastSeen = fromEpoch(lastSeen)
	_ = json.Unmarshal([]byte(services), &h.Services)
	_ = json.Unmarshal([]byte(vulns), &h.Vulnerabilities)
	return &h, nil
}

func loadPortsTx(ctx context.Context, tx *sql.Tx, ip string) ([]repository.Port, error) {
	rows, err := tx.QueryContext(ctx, `SELECT number, protocol, status FROM host_ports WHERE host_ip=? ORDER BY number, protocol`, ip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ports []repository.Port
	for rows.Next() {
		var p repository.Port
		if err := rows.Scan(&p.Number, &p.Protocol, &p.Status); err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, rows.Err()
}

func loadBannersTx(ctx context.Context, tx *sql.Tx, ip string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT banner FROM host_banners WHERE host_ip=? ORDER BY position`, ip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var banners []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		banners = append(banners, b)
	}
	return banners, rows.Err()
}

// GetHost returns the host or repository.ErrNotFound.
func (s *Store) GetHost(ctx context.Context, ip string) (*repository.Host, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return getHostTx(ctx, tx, ip)
}

// ListHosts returns every known host.
func (s *Store) ListHosts(ctx context.Context) ([]*repository.Host, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip FROM hosts ORDER BY ip`)
	if err != nil {
		return nil, err
	}
	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return nil, err
		}
		ips = append(ips, ip)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*repository.Host, 0, len(ips))
	for _, ip := range ips {
		h, err := s.GetHost(ctx, ip)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// GetConfig returns the current configuration, or an empty one when no
// config row has been stored yet; it does not create the row.
func (s *Store) GetConfig(ctx context.Context) (*repository.Config, error) {
	var settings string
	err := s.db.QueryRowContext(ctx, `SELECT settings FROM app_config WHERE id=1`).Scan(&settings)
	if errors.Is(err, sql.ErrNoRows) {
		return &repository.Config{Settings: map[string]any{}}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := &repository.Config{Settings: map[string]any{}}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &cfg.Settings); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// UpdateConfig replaces the stored configuration.
func (s *Store) UpdateConfig(ctx context.Context, c *repository.Config) error {
	b, err := json.Marshal(c.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO app_config(id, settings) VALUES(1,?)
		ON CONFLICT(id) DO UPDATE SET settings=excluded.settings`, string(b))
	return err
}

// AddLog appends a log entry.
func (s *Store) AddLog(ctx context.Context, l *repository.Log) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO logs(level, message, job_id, created_at) VALUES(?,?,?,?)`,
		l.Level, l.Message, l.JobID, toEpoch(createdAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		l.ID = id
	}
	return nil
}

// GetLogs returns up to limit most recent log entries.
func (s *Store) GetLogs(ctx context.Context, limit int) ([]*repository.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, level, message, job_id, created_at FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// GetLogsForJob returns log entries tied to jobID.
func (s *Store) GetLogsForJob(ctx context.Context, jobID string) ([]*repository.Log, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, level, message, job_id, created_at FROM logs WHERE job_id=? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]*repository.Log, error) {
	var out []*repository.Log
	for rows.Next() {
		var l repository.Log
		var jobID sql.NullString
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.Level, &l.Message, &jobID, &createdAt); err != nil {
			return nil, err
		}
		if jobID.Valid {
			v := jobID.String
			l.JobID = &v
		}
		l.CreatedAt = fromEpoch(createdAt)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// CleanupOldLogs deletes log entries older than days and returns the
// count removed.
func (s *Store) CleanupOldLogs(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at<?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetDisplayStatus returns the last known display text.
func (s *Store) GetDisplayStatus(ctx context.Context) (*repository.DisplayStatus, error) {
	var text string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT text, updated_at FROM display_status WHERE id=1`).Scan(&text, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &repository.DisplayStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &repository.DisplayStatus{Text: text, UpdatedAt: fromEpoch(updatedAt)}, nil
}

// UpdateDisplayStatus replaces the stored display text.
func (s *Store) UpdateDisplayStatus(ctx context.Context, d *repository.DisplayStatus) error {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO display_status(id, text, updated_at) VALUES(1,?,?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text, updated_at=excluded.updated_at`, d.Text, toEpoch(updatedAt))
	return err
}

var _ repository.Repository = (*Store)(nil)
