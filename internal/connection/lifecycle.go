package connection

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/ouroboros8/captain/internal/instance"
	"github.com/ouroboros8/captain/internal/nodeclient"
)

// StartInstanceParams groups the caller-supplied arguments to StartInstance.
// App, SlugURI and Node are required; Environment, Slots and Hostname fall
// back to sensible defaults when zero-valued.
type StartInstanceParams struct {
	App         string
	SlugURI     string
	Node        string
	Environment map[string]string
	Slots       int // 0 means config.DefaultSlotsPerInstance
	Hostname    string
}

// StartInstance admits and starts one instance on the named node. admission
// is computed fresh from the node's current inventory on every call (spec.md
// §3 "no persistent counter"): there is a race between the capacity check
// and the actual create below, same as the system this replaces — a
// distributed lock across nodes was judged out of scope (spec.md Non-goals).
func (conn *Connection) StartInstance(ctx context.Context, params StartInstanceParams) (instance.Instance, error) {
	client, err := conn.nodeClient(params.Node)
	if err != nil {
		return instance.Instance{}, err
	}

	slots := params.Slots
	if slots == 0 {
		slots = conn.config.DefaultSlotsPerInstance
	}

	hostname := params.Hostname
	if hostname == "" {
		hostname = generateHostname()
	}

	used, err := conn.usedSlots(ctx, params.Node)
	if err != nil {
		return instance.Instance{}, err
	}
	if used+slots > conn.config.SlotsPerNode {
		return instance.Instance{}, fmt.Errorf("%w: %s has %d/%d slots used, requested %d more",
			ErrNodeOutOfCapacity, params.Node, used, conn.config.SlotsPerNode, slots)
	}

	environment := make([]string, 0, len(params.Environment)+2)
	for key, value := range params.Environment {
		environment = append(environment, fmt.Sprintf("%s=%s", key, value))
	}
	environment = append(environment, "PORT=8080", "SLUG_URL="+params.SlugURI)

	name := fmt.Sprintf("%s_%s", params.App, uuid.NewString())
	memoryBytes := int64(conn.config.SlotMemoryMB) * int64(slots) * 1024 * 1024

	containerID, err := client.Create(ctx, nodeclient.CreateSpec{
		Image:       conn.config.SlugRunnerImage,
		Command:     conn.config.SlugRunnerCommand,
		Env:         environment,
		Hostname:    hostname,
		Name:        name,
		CPUShares:   int64(slots),
		MemoryBytes: memoryBytes,
	})
	if err != nil {
		return instance.Instance{}, err
	}
	conn.logger.Debug("created container", "app", params.App, "node", params.Node, "container", containerID,
		"memory", units.BytesSize(float64(memoryBytes)))

	if err := client.Start(ctx, containerID); err != nil {
		return instance.Instance{}, err
	}
	conn.logger.Info("started container", "app", params.App, "node", params.Node, "container", containerID)

	details, err := client.Inspect(ctx, containerID)
	if err != nil {
		return instance.Instance{}, err
	}
	return instance.FromInspect(params.Node, details)
}

// usedSlots sums reserved slots across the node's current inventory.
func (conn *Connection) usedSlots(ctx context.Context, node string) (int, error) {
	instances, err := conn.GetNodeInstances(ctx, node)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, inst := range instances {
		total += inst.Slots
	}
	return total, nil
}

// StopInstance stops and removes the named instance, wherever in the fleet
// it lives. a failure to remove (after a successful stop) is logged and
// swallowed, not returned — the instance is gone from the running set
// either way, and the daemon will often clean up a stopped, unremoved
// container on its own schedule. spec.md §4.F: unlike get_logs, an unknown
// id is not an error here — it reports (false, nil) instead.
func (conn *Connection) StopInstance(ctx context.Context, instanceID string) (bool, error) {
	instances, err := conn.GetInstances(ctx, "")
	if err != nil {
		return false, err
	}

	var node string
	found := false
	for _, inst := range instances {
		if inst.ID == instanceID {
			node = inst.Node
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	client, err := conn.nodeClient(node)
	if err != nil {
		return false, err
	}

	if err := client.Stop(ctx, instanceID); err != nil {
		return false, err
	}
	conn.logger.Info("stopped instance", "instance", instanceID, "node", node)

	if err := client.Remove(ctx, instanceID, true); err != nil {
		conn.logger.Warn("failed to remove stopped instance, leaving it for a later gc sweep", "instance", instanceID, "node", node, "error", err)
	}
	return true, nil
}
