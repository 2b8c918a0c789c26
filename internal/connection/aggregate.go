package connection

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ouroboros8/captain/internal/instance"
)

// fleetFanOutLimit bounds how many nodes are swept concurrently. without a
// cap a large fleet would open one goroutine (and one set of outstanding
// HTTP requests) per node simultaneously; 8 mirrors the worker pool size
// the fan-out this replaces always used.
const fleetFanOutLimit = 8

// GetInstances lists instances across the fleet, optionally restricted to
// one node. per-node failures are logged and excluded from the result
// rather than failing the whole call — spec.md §7 "a single unreachable
// node must not prevent listing instances on the rest of the fleet".
func (conn *Connection) GetInstances(ctx context.Context, nodeFilter string) ([]instance.Instance, error) {
	if nodeFilter != "" {
		if _, err := conn.nodeClient(nodeFilter); err != nil {
			return nil, err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fleetFanOutLimit)

	var mu sync.Mutex
	var all []instance.Instance

	for _, hostname := range conn.order {
		if nodeFilter != "" && hostname != nodeFilter {
			continue
		}
		hostname := hostname
		group.Go(func() error {
			instances, err := conn.GetNodeInstances(groupCtx, hostname)
			if err != nil {
				conn.logger.Error("getting instances failed", "node", hostname, "error", err)
				return nil // swallowed: one bad node must not fail the fleet-wide call
			}
			mu.Lock()
			all = append(all, instances...)
			mu.Unlock()
			return nil
		})
	}

	// every goroutine above returns nil, so Wait returns nil here; the check
	// only guards against a future path that returns an error.
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// SlotBudget is a node's capacity accounting at one point in time, always
// recomputed fresh from the fleet's current inventory (spec.md §3 "no
// persistent counter").
type SlotBudget struct {
	Total int
	Used  int
	Free  int
}

// NodeStatus is one node's health and capacity, as returned by GetNode.
type NodeStatus struct {
	ID    string
	Slots SlotBudget
	// State is "healthy" on success, or a human-readable description of
	// the failure when the node could not be reached.
	State string
}

// GetNode reports one node's liveness and slot accounting. an unreachable
// node is reported with a zeroed slot budget and its error description in
// State, not returned as a Go error — node health is itself the payload,
// per spec.md §4.E.
func (conn *Connection) GetNode(ctx context.Context, name string) (NodeStatus, error) {
	client, err := conn.nodeClient(name)
	if err != nil {
		return NodeStatus{}, err
	}

	if err := client.Ping(ctx); err != nil {
		conn.logger.Error("node unreachable", "node", name, "error", err)
		return NodeStatus{
			ID:    name,
			Slots: SlotBudget{},
			State: err.Error(),
		}, nil
	}

	instances, err := conn.GetInstances(ctx, name)
	if err != nil {
		return NodeStatus{}, err
	}

	used := 0
	for _, inst := range instances {
		used += inst.Slots
	}
	conn.logger.Debug("node slot usage", "node", name, "used", used)

	return NodeStatus{
		ID: name,
		Slots: SlotBudget{
			Total: conn.config.SlotsPerNode,
			Used:  used,
			Free:  conn.config.SlotsPerNode - used,
		},
		State: "healthy",
	}, nil
}

// GetNodes reports health and capacity for every configured node,
// concurrently. unlike GetInstances, a single node's GetNode never
// actually errors (failures are folded into NodeStatus.State), so this
// never drops a node from the result.
func (conn *Connection) GetNodes(ctx context.Context) ([]NodeStatus, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fleetFanOutLimit)

	results := make([]NodeStatus, len(conn.order))
	for i, hostname := range conn.order {
		i, hostname := i, hostname
		group.Go(func() error {
			status, err := conn.GetNode(groupCtx, hostname)
			if err != nil {
				return err
			}
			results[i] = status
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
