package jobcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconctl/internal/repository"
	"reconctl/internal/scanner"
)

// execute runs one job to completion. It never panics past its own
// boundary: a recovered panic is treated the same as a returned error, so
// a misbehaving runner fails its job instead of crashing the process.
func execute(ctx context.Context, state *State, permit *Permit, jobID string) {
	defer permit.Release()

	defer func() {
		if r := recover(); r != nil {
			state.Log.Error().Str("job_id", jobID).Interface("panic", r).Msg("job runner panicked")
			failJob(ctx, state, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	job, err := state.Repo.GetJob(ctx, jobID)
	if err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("execute: job vanished before admission")
		return
	}
	if !IsAdmissible(job.Status) {
		// Lost the race: something else already moved this job out of
		// queued/scheduled (e.g. a concurrent cancel).
		return
	}

	if err := state.Repo.UpdateJobStatus(ctx, jobID, repository.StatusRunning); err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("execute: failed to mark job running")
		return
	}
	state.Bus.Publish(fmt.Sprintf("job_started:%s", jobID))

	var runErr error
	var results string
	switch job.JobType {
	case repository.JobTypeDiscovery:
		results, runErr = runDiscovery(ctx, state, job)
	case repository.JobTypePortScan:
		results, runErr = runPortScan(ctx, state, job)
	case repository.JobTypeNmapScan:
		results, runErr = runNmapStub(ctx, state, job)
	case repository.JobTypeExport:
		results, runErr = runExport(ctx, state, job)
	default:
		runErr = fmt.Errorf("unrecognized job type %q", job.JobType)
	}

	if runErr != nil {
		failJob(ctx, state, jobID, runErr.Error())
		return
	}

	if err := state.Repo.UpdateJobResults(ctx, jobID, results); err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("execute: failed to persist results")
	}
	if err := state.Repo.UpdateJobStatus(ctx, jobID, repository.StatusCompleted); err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("execute: failed to mark job completed")
		return
	}
	state.Bus.Publish(fmt.Sprintf("job_completed:%s", jobID))
}

func failJob(ctx context.Context, state *State, jobID, reason string) {
	if err := state.Repo.UpdateJobResults(ctx, jobID, fmt.Sprintf(`{"error":%q}`, reason)); err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("failJob: failed to persist error results")
	}
	if err := state.Repo.UpdateJobStatus(ctx, jobID, repository.StatusFailed); err != nil {
		state.Log.Error().Err(err).Str("job_id", jobID).Msg("failJob: failed to mark job failed")
		return
	}
	state.Bus.Publish(fmt.Sprintf("job_failed:%s", jobID))
}

// scanConfig holds the scan_config.* fields of the stored global Config,
// read by both job runners as a fallback source.
type scanConfig struct {
	targetNetwork string
	portRange     []int
}

// loadScanConfig reads the stored global Config and pulls out its nested
// scan_config.target_network / scan_config.port_range fields, if set. A
// failure to load the config is treated as an empty one: callers fall
// back to their own defaults.
func loadScanConfig(ctx context.Context, state *State) scanConfig {
	var sc scanConfig
	cfg, err := state.Repo.GetConfig(ctx)
	if err != nil || cfg == nil {
		return sc
	}
	nested, ok := cfg.Settings["scan_config"].(map[string]any)
	if !ok {
		return sc
	}
	if v, ok := nested["target_network"].(string); ok {
		sc.targetNetwork = v
	}
	if raw, ok := nested["port_range"].([]any); ok {
		for _, p := range raw {
			if f, ok := p.(float64); ok {
				sc.portRange = append(sc.portRange, int(f))
			}
		}
	}
	return sc
}

// runDiscovery is the discovery job runner. The target CIDR comes from
// config.target, falling back to the stored scan_config.target_network,
// falling back to repository.DefaultTargetNetwork.
func runDiscovery(ctx context.Context, state *State, job *repository.Job) (string, error) {
	cidr, _ := job.Config["target"].(string)
	if cidr == "" {
		cidr = loadScanConfig(ctx, state).targetNetwork
	}
	if cidr == "" {
		cidr = repository.DefaultTargetNetwork
	}

	found, err := scanner.Discover(ctx, state.Repo, state.Bus, scanner.NetDialer, cidr, state.MaxDiscoverThreads)
	if err != nil {
		return "", err
	}

	blob, _ := json.Marshal(map[string]any{
		"job_id":         job.ID,
		"job_type":       repository.JobTypeDiscovery,
		"target_network": cidr,
		"hosts_found":    found,
		"timestamp":      time.Now().UTC(),
	})
	return string(blob), nil
}

// runPortScan is the port-scan job runner. It scans every host known to
// the repository, not a single designated target, and fails outright
// when the store holds no hosts at all.
func runPortScan(ctx context.Context, state *State, job *repository.Job) (string, error) {
	hosts, err := state.Repo.ListHosts(ctx)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", errors.New("No hosts available to scan. Run discovery first.")
	}

	ports := loadScanConfig(ctx, state).portRange
	if len(ports) == 0 {
		ports = repository.CommonPorts
	}

	totalPorts := 0
	for _, host := range hosts {
		scanner.ScanHost(ctx, state.Bus, scanner.NetDialer, job.ID, host.IP, ports, host)
		host.LastSeen = time.Now().UTC()
		totalPorts += len(host.Ports)

		if err := state.Repo.UpsertHost(ctx, host); err != nil {
			return "", err
		}
	}

	blob, _ := json.Marshal(map[string]any{
		"job_id":            job.ID,
		"job_type":          repository.JobTypePortScan,
		"hosts_scanned":     len(hosts),
		"total_ports_found": totalPorts,
		"timestamp":         time.Now().UTC(),
	})
	return string(blob), nil
}

// runNmapStub is the nmap-scan job runner. No real nmap invocation is
// wired up; the stub always succeeds and reports itself unimplemented,
// which is enough to exercise the job type end to end.
func runNmapStub(ctx context.Context, state *State, job *repository.Job) (string, error) {
	ip, _ := job.Config["target_ip"].(string)
	blob, _ := json.Marshal(map[string]any{
		"target_ip": ip,
		"status":    "not_implemented",
	})
	return string(blob), nil
}
