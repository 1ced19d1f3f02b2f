// Package repository defines the storage capability the job subsystem
// depends on. It never depends on a concrete storage engine; see
// internal/sqlitestore and internal/memstore for implementations.
package repository

import (
	"context"
	"errors"
	"time"
)

// Job statuses. See internal/jobcore for the transition rules between them.
const (
	StatusQueued    = "queued"
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job priorities, highest first.
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityNormal   = "NORMAL"
	PriorityLow      = "LOW"
)

// PriorityRank orders priorities for the scheduler's sort; higher ranks
// are serviced first.
var PriorityRank = map[string]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityNormal:   1,
	PriorityLow:      0,
}

// Job types recognized by the executor. Unrecognized values are accepted
// at creation and fail at execution per spec.
const (
	JobTypeDiscovery = "discovery"
	JobTypePortScan  = "port-scan"
	JobTypeNmapScan  = "nmap-scan"
	JobTypeExport    = "export"
)

// ErrNotFound is returned by Get* operations when the row does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrAlreadyExists is returned by CreateJob when the id is already taken.
var ErrAlreadyExists = errors.New("repository: already exists")

// Job is a unit of scheduled or running work.
type Job struct {
	ID          string
	JobType     string
	Priority    string
	Status      string
	Config      map[string]any
	Results     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ScheduledAt *time.Time
}

// Port is one TCP port observed on a Host.
type Port struct {
	Number   int
	Protocol string
	Status   string
}

// Host statuses.
const (
	HostUp      = "Up"
	HostDown    = "Down"
	HostUnknown = "Unknown"
)

// Host is a single discovered machine and everything learned about it.
type Host struct {
	IP              string
	Ports           []Port
	Banners         []string
	Status          string
	FirstSeen       time.Time
	LastSeen        time.Time
	Hostname        string
	OS              string
	MAC             string
	Services        []string
	Vulnerabilities []string
}

// AddPort inserts or updates a port, keeping Ports sorted by
// (number, protocol) and deduplicated.
func (h *Host) AddPort(number int, protocol, status string) {
	for i := range h.Ports {
		if h.Ports[i].Number == number && h.Ports[i].Protocol == protocol {
			if h.Ports[i].Status != status {
				h.Ports[i].Status = status
			}
			return
		}
	}
	h.Ports = append(h.Ports, Port{Number: number, Protocol: protocol, Status: status})
	sortPorts(h.Ports)
}

func sortPorts(ports []Port) {
	for i := 1; i < len(ports); i++ {
		for j := i; j > 0; j-- {
			a, b := ports[j-1], ports[j]
			if a.Number < b.Number || (a.Number == b.Number && a.Protocol <= b.Protocol) {
				break
			}
			ports[j-1], ports[j] = ports[j], ports[j-1]
		}
	}
}

// AddBanner appends banner if it is not already present.
func (h *Host) AddBanner(banner string) {
	if banner == "" {
		return
	}
	for _, b := range h.Banners {
		if b == banner {
			return
		}
	}
	h.Banners = append(h.Banners, banner)
}

// Config is the single mutable application configuration object.
type Config struct {
	Settings map[string]any
}

// DisplayStatus is the auxiliary e-paper display's last known text.
type DisplayStatus struct {
	Text      string
	UpdatedAt time.Time
}

// Log is one append-only log line, optionally tied to a job.
type Log struct {
	ID        int64
	Level     string
	Message   string
	JobID     *string
	CreatedAt time.Time
}

// Repository is the capability set the core consumes. Every operation may
// fail with an opaque storage error; write-path errors are logged and
// swallowed, read-path errors fail the job.
type Repository interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	UpdateJobResults(ctx context.Context, id, results string) error
	GetQueuedJobs(ctx context.Context) ([]*Job, error)
	GetRunningJobs(ctx context.Context) ([]*Job, error)
	GetScheduledJobsDue(ctx context.Context, now time.Time) ([]*Job, error)

	UpsertHost(ctx context.Context, h *Host) error
	GetHost(ctx context.Context, ip string) (*Host, error)
	ListHosts(ctx context.Context) ([]*Host, error)

	GetConfig(ctx context.Context) (*Config, error)
	UpdateConfig(ctx context.Context, c *Config) error

	AddLog(ctx context.Context, l *Log) error
	GetLogs(ctx context.Context, limit int) ([]*Log, error)
	GetLogsForJob(ctx context.Context, jobID string) ([]*Log, error)
	CleanupOldLogs(ctx context.Context, days int) (int, error)

	GetDisplayStatus(ctx context.Context) (*DisplayStatus, error)
	UpdateDisplayStatus(ctx context.Context, d *DisplayStatus) error
}

// DefaultTargetNetwork is used by the discovery runner when neither the
// job config nor the stored config names a target.
const DefaultTargetNetwork = "192.168.68.0/24"

// CommonPorts is the default port list for the port-scan runner when no
// scan_config.port_range override is present.
var CommonPorts = []int{
	80, 443, 8080, 8443,
	22, 23,
	21, 20,
	25, 110, 143, 465, 587, 993, 995,
	3306, 5432, 1433, 27017,
	139, 445, 135,
	3389,
	53, 161, 1521, 6379, 9200,
}

// DiscoveryProbePorts are the ports tried, in order, to decide whether a
// host is alive.
var DiscoveryProbePorts = []int{80, 443, 22, 21, 445, 3389}

// InferProtocol guesses a service name from a well-known port number.
func InferProtocol(port int) string {
	switch port {
	case 80, 8080, 8443:
		return "http"
	case 443:
		return "https"
	case 22:
		return "ssh"
	case 21, 20:
		return "ftp"
	case 25, 465, 587:
		return "smtp"
	case 110, 995:
		return "pop3"
	case 143, 993:
		return "imap"
	case 3306:
		return "mysql"
	case 5432:
		return "postgresql"
	case 1433:
		return "mssql"
	case 27017:
		return "mongodb"
	case 139, 445, 135:
		return "smb"
	case 3389:
		return "rdp"
	case 53:
		return "dns"
	case 161:
		return "snmp"
	case 1521:
		return "oracle"
	case 6379:
		return "redis"
	case 9200:
		return "elasticsearch"
	default:
		return "unknown"
	}
}
