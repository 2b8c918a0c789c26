package connection

import (
	"context"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/ouroboros8/captain/internal/gclog"
	"github.com/ouroboros8/captain/internal/inspectcache"
	"github.com/ouroboros8/captain/internal/instance"
)

// zeroExitTime is the sentinel value the daemon reports for State.FinishedAt
// on a container that has exited but never actually recorded a real exit
// time — a known Docker daemon quirk, not a real event in the world.
// detecting it by exact string match (rather than, say, "year == 1")
// follows the same literal check the fleet tooling this core replaces has
// always used, and keeps the behavior exactly reproducible regardless of
// which time.Time zero-value representation a given SDK version produces.
const zeroExitTime = "0001-01-01T00:00:00Z"

// GetNodeInstances lists every running instance on one node, performing
// inventory GC as a side effect: containers with a zero exit time get
// repaired (started then killed, so the daemon records a real exit time on
// the next pass), and containers exited longer than the configured grace
// period get recycled (removed outright). a container that is exited but
// still within its grace period is skipped — neither emitted as an
// instance nor touched. spec.md §4.D.
func (conn *Connection) GetNodeInstances(ctx context.Context, node string) ([]instance.Instance, error) {
	client, err := conn.nodeClient(node)
	if err != nil {
		return nil, err
	}

	summaries, err := client.Containers(ctx)
	if err != nil {
		return nil, err
	}
	conn.logger.Debug("listed containers", "node", node, "count", len(summaries))

	instances := make([]instance.Instance, 0, len(summaries))
	for _, summary := range summaries {
		status := coarseStatus(summary.Status)

		if strings.HasPrefix(summary.Status, "Up ") {
			if !hasSingleExposedPort8080(summary.Ports) {
				conn.logger.Warn("skipping running container with unexpected port shape", "node", node, "container", summary.ID, "ports", summary.Ports)
				continue
			}
			inst, err := conn.projectRunning(ctx, client, node, summary.ID, status)
			if err != nil {
				conn.logger.Warn("skipping malformed running container", "node", node, "container", summary.ID, "error", err)
				continue
			}
			instances = append(instances, inst)
			continue
		}

		if err := conn.gcExited(ctx, client, node, summary.ID, status); err != nil {
			conn.logger.Warn("gc step failed for exited container", "node", node, "container", summary.ID, "error", err)
		}
	}
	return instances, nil
}

// coarseStatus is the first whitespace-delimited token of the daemon's
// human-readable Status string (eg "Up 3 hours" -> "Up", "Exited (0) 2
// hours ago" -> "Exited"). it is part of the inspection cache key, so a
// state transition (Up -> Exited) is always a cache miss without any
// separate invalidation bookkeeping.
func coarseStatus(status string) string {
	fields := strings.Fields(status)
	if len(fields) == 0 {
		return status
	}
	return fields[0]
}

// hasSingleExposedPort8080 reports whether the raw container summary
// publishes exactly one port, and that port is 8080 — the shape of a
// managed instance per spec.md §4.D step 2 and §6's port contract. grounded
// on connection.py's `elif len(container["Ports"]) == 1 and
// container["Ports"][0]["PrivatePort"] == 8080:` — a container that exposes
// a second port (or no ports, or the wrong one) is never an instance this
// core manages, so it must not be projected at all.
func hasSingleExposedPort8080(ports []container.Port) bool {
	return len(ports) == 1 && ports[0].PrivatePort == 8080
}

// projectRunning inspects (via the shared cache) and projects one running
// container into an Instance.
func (conn *Connection) projectRunning(ctx context.Context, client nodeTransport, node, containerID, status string) (instance.Instance, error) {
	details, err := conn.inspect(ctx, client, node, containerID, status)
	if err != nil {
		return instance.Instance{}, err
	}
	return instance.FromInspect(node, details)
}

// gcExited runs the exited-container state machine: sentinel repair, then
// grace-period recycling. a container that is neither is left alone.
func (conn *Connection) gcExited(ctx context.Context, client nodeTransport, node, containerID, status string) error {
	details, err := conn.inspect(ctx, client, node, containerID, status)
	if err != nil {
		return err
	}
	if details.State == nil {
		return nil
	}

	finishedAt := details.State.FinishedAt.UTC().Format(time.RFC3339)

	if finishedAt == zeroExitTime {
		conn.logger.Warn("detected container with zero exit time, repairing", "node", node, "container", containerID)
		if err := client.Start(ctx, containerID); err != nil {
			return err
		}
		if err := client.Kill(ctx, containerID); err != nil {
			return err
		}
		if conn.gc != nil {
			conn.gc.Record(node, containerID, gclog.ActionSentinelRepair, "")
		}
		return nil
	}

	if time.Since(details.State.FinishedAt) > conn.config.DockerGCGracePeriod {
		conn.logger.Warn("recycling container past gc grace period", "node", node, "container", containerID, "exited_at", finishedAt)
		if err := client.Remove(ctx, containerID, false); err != nil {
			return err
		}
		if conn.gc != nil {
			conn.gc.Record(node, containerID, gclog.ActionRecycled, finishedAt)
		}
	}
	return nil
}

// inspect fetches a container's full details through the shared inspection
// cache, keyed on (node, id, coarse status) so a status transition is
// always a cache miss.
func (conn *Connection) inspect(ctx context.Context, client nodeTransport, node, containerID, status string) (container.InspectResponse, error) {
	key := inspectcache.Key{Node: node, ContainerID: containerID, CoarseStatus: status}
	if cached, ok := conn.cache.Get(key); ok {
		return cached, nil
	}

	details, err := client.Inspect(ctx, containerID)
	if err != nil {
		return container.InspectResponse{}, err
	}
	conn.cache.Put(key, details)
	return details, nil
}
