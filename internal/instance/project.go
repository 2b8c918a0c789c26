package instance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// exposedPort is the single port every managed container is expected to
// publish. spec.md §6 "Port contract".
const exposedPort = nat.Port("8080/tcp")

// MalformedRecordError reports that a container record couldn't be
// projected into an Instance — it's missing the 8080/tcp port binding, its
// name is empty or has nothing before the first "_", or similar. spec.md
// §7 treats this as a per-container skip, not a fleet-wide failure: one bad
// record must never take down a whole node's inventory listing.
type MalformedRecordError struct {
	ContainerID string
	Node        string
	Reason      string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed container record %s on %s: %s", e.ContainerID, e.Node, e.Reason)
}

// FromInspect projects one container's full inspection details into an
// Instance. grounded on connection.py's __get_instance.
func FromInspect(node string, details container.InspectResponse) (Instance, error) {
	if details.Config == nil {
		return Instance{}, &MalformedRecordError{ContainerID: details.ID, Node: node, Reason: "missing Config"}
	}
	if details.NetworkSettings == nil {
		return Instance{}, &MalformedRecordError{ContainerID: details.ID, Node: node, Reason: "missing NetworkSettings"}
	}

	app, err := appName(details.Name)
	if err != nil {
		return Instance{}, &MalformedRecordError{ContainerID: details.ID, Node: node, Reason: err.Error()}
	}

	environment, slugURI := projectEnvironment(details.Config.Env)

	port, err := publishedPort(details.NetworkSettings.Ports)
	if err != nil {
		return Instance{}, &MalformedRecordError{ContainerID: details.ID, Node: node, Reason: err.Error()}
	}

	return Instance{
		ID:          details.ID,
		App:         app,
		SlugURI:     slugURI,
		Node:        node,
		Port:        port,
		Environment: environment,
		Slots:       int(details.HostConfig.CPUShares),
	}, nil
}

// appName recovers the application name from a container name formatted as
// "/<app>_<suffix>" (the leading slash is the daemon's own convention; it
// precedes every container name in the API's responses).
func appName(containerName string) (string, error) {
	trimmed := strings.TrimPrefix(containerName, "/")
	if trimmed == "" {
		return "", fmt.Errorf("empty container name")
	}
	parts := strings.SplitN(trimmed, "_", 2)
	if parts[0] == "" {
		return "", fmt.Errorf("container name %q has no app prefix", containerName)
	}
	return parts[0], nil
}

// projectEnvironment splits the container's raw "KEY=VALUE" environment
// into the map callers see, masking out the keys the core itself injects
// (see ReservedEnv), and separately recovers the SLUG_URL value since that
// one reserved key is surfaced back out under a friendlier name.
func projectEnvironment(raw []string) (environment map[string]string, slugURI string) {
	environment = make(map[string]string, len(raw))
	for _, entry := range raw {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		if key == "SLUG_URL" {
			slugURI = value
		}
		if _, reserved := ReservedEnv[key]; reserved {
			continue
		}
		environment[key] = value
	}
	return environment, slugURI
}

// publishedPort recovers the host port the daemon bound 8080/tcp to.
func publishedPort(ports nat.PortMap) (int, error) {
	bindings, ok := ports[exposedPort]
	if !ok || len(bindings) == 0 {
		return 0, fmt.Errorf("no host binding for %s", exposedPort)
	}
	port, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return 0, fmt.Errorf("non-numeric host port %q: %w", bindings[0].HostPort, err)
	}
	return port, nil
}
