package nodeclient

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/docker/go-connections/nat"
)

// Containers lists every container on this node, running and exited, with
// full (non-truncated) detail — spec.md §4.D step 1: "List all containers
// with full details (not quiet, not truncated)".
func (c *Client) Containers(ctx context.Context) ([]container.Summary, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	summaries, err := c.sdk.ContainerList(callCtx, container.ListOptions{All: true})
	if err != nil {
		return nil, classifyTransportError(c.hostname, fmt.Errorf("listing containers on %s: %w", c.hostname, err))
	}
	return summaries, nil
}

// Inspect fetches the full inspection record for one container. Returns
// ErrNoSuchContainer if the daemon has no record of it.
func (c *Client) Inspect(ctx context.Context, id string) (container.InspectResponse, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	details, err := c.sdk.ContainerInspect(callCtx, id)
	if err != nil {
		if isNotFound(err) {
			return container.InspectResponse{}, fmt.Errorf("%w: %s on %s", ErrNoSuchContainer, id, c.hostname)
		}
		return container.InspectResponse{}, classifyTransportError(c.hostname, fmt.Errorf("inspecting %s on %s: %w", id, c.hostname, err))
	}
	return details, nil
}

// CreateSpec groups the arguments Create needs. every managed container
// exposes exactly one port (8080/tcp, spec.md §6 "Port contract") and is
// published with a daemon-chosen host port, so the port wiring lives here
// rather than in a separate Start call — the modern Docker Engine API
// resolves port bindings at container-create time, not at start time the
// way the system this core was distilled from (API 1.12) did.
type CreateSpec struct {
	Image       string
	Command     string
	Env         []string
	Hostname    string
	Name        string
	CPUShares   int64
	MemoryBytes int64
}

const containerPort = "8080/tcp"

// Create creates (but does not start) a container from spec, exposing
// 8080/tcp and binding it to a daemon-chosen host port.
func (c *Client) Create(ctx context.Context, spec CreateSpec) (string, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.pullImageIfNotPresent(callCtx, spec.Image); err != nil {
		return "", err
	}

	exposedPort, err := nat.NewPort("tcp", "8080")
	if err != nil {
		return "", fmt.Errorf("building exposed port spec: %w", err)
	}

	var cmd []string
	if spec.Command != "" {
		cmd = []string{"sh", "-c", spec.Command}
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          cmd,
		Env:          spec.Env,
		Hostname:     spec.Hostname,
		ExposedPorts: nat.PortSet{exposedPort: struct{}{}},
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			CPUShares: spec.CPUShares,
			Memory:    spec.MemoryBytes,
		},
		PortBindings: nat.PortMap{
			// HostPort left empty: the daemon picks a free host port,
			// exactly like port_bindings={8080/tcp: null} in spec.md §4.F.
			exposedPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
	}

	var platform *v1.Platform // nil = host native architecture

	response, err := c.sdk.ContainerCreate(callCtx, containerConfig, hostConfig, nil, platform, spec.Name)
	if err != nil {
		return "", classifyTransportError(c.hostname, fmt.Errorf("creating container %q on %s: %w", spec.Name, c.hostname, err))
	}
	return response.ID, nil
}

// Start transitions a created container to running.
func (c *Client) Start(ctx context.Context, id string) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.sdk.ContainerStart(callCtx, id, container.StartOptions{})
	if err != nil {
		return classifyTransportError(c.hostname, fmt.Errorf("starting %s on %s: %w", id, c.hostname, err))
	}
	return nil
}

// Stop requests a graceful stop (SIGTERM, daemon-default grace period).
func (c *Client) Stop(ctx context.Context, id string) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.sdk.ContainerStop(callCtx, id, container.StopOptions{})
	if err != nil {
		return classifyTransportError(c.hostname, fmt.Errorf("stopping %s on %s: %w", id, c.hostname, err))
	}
	return nil
}

// Kill sends the terminal signal (SIGKILL, the daemon default).
func (c *Client) Kill(ctx context.Context, id string) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.sdk.ContainerKill(callCtx, id, "")
	if err != nil {
		return classifyTransportError(c.hostname, fmt.Errorf("killing %s on %s: %w", id, c.hostname, err))
	}
	return nil
}

// Remove deletes the container record. force=true is idempotent against an
// already-stopped (or already-removed — the daemon itself returns 404,
// which this method swallows under force) container, per spec.md §4.A.
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.sdk.ContainerRemove(callCtx, id, container.RemoveOptions{Force: force})
	if err != nil {
		if force && isNotFound(err) {
			return nil
		}
		return classifyTransportError(c.hostname, fmt.Errorf("removing %s on %s: %w", id, c.hostname, err))
	}
	return nil
}

// Logs returns the raw log stream from the daemon. when follow is true the
// caller (internal/nodeclient.FrameReader, driven by
// internal/connection/logs.go) demultiplexes the framed stream described in
// spec.md §4.A. when follow is false the caller reads the body to
// completion and splits on newlines (spec.md §4.G).
func (c *Client) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	// deliberately not wrapped in withTimeout when follow=true: a follow
	// stream is meant to run until the consumer cancels ctx or the
	// container stops, not until docker_timeout elapses.
	options := container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: follow}
	if !follow {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		reader, err := c.sdk.ContainerLogs(callCtx, id, options)
		if err != nil {
			return nil, classifyTransportError(c.hostname, fmt.Errorf("fetching logs for %s on %s: %w", id, c.hostname, err))
		}
		// the body is read here, while callCtx is still live: cancelling it
		// on return would abort any read the caller makes afterwards.
		defer reader.Close()
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, classifyTransportError(c.hostname, fmt.Errorf("reading logs for %s on %s: %w", id, c.hostname, err))
		}
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	reader, err := c.sdk.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, classifyTransportError(c.hostname, fmt.Errorf("streaming logs for %s on %s: %w", id, c.hostname, err))
	}
	return reader, nil
}

// isNotFound reports whether err represents a 404 from the daemon.
func isNotFound(err error) bool {
	return containerIsErrNotFound(err)
}

// pullImageIfNotPresent mirrors the teacher's docker.pullImageIfNotPresent:
// check the daemon's local image list first, and only pull (draining and
// closing the progress stream, same as the teacher) on a miss. called from
// Create so a node that has never run a given slug_runner_image yet still
// succeeds instead of failing with "no such image".
func (c *Client) pullImageIfNotPresent(ctx context.Context, imageName string) error {
	images, err := c.sdk.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageName)),
	})
	if err != nil {
		return classifyTransportError(c.hostname, fmt.Errorf("listing images on %s: %w", c.hostname, err))
	}
	if len(images) > 0 {
		return nil
	}

	stream, err := c.sdk.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return classifyTransportError(c.hostname, fmt.Errorf("pulling image %q on %s: %w", imageName, c.hostname, err))
	}
	defer stream.Close()

	if _, err := io.Copy(io.Discard, stream); err != nil {
		return fmt.Errorf("draining pull stream for %q on %s: %w", imageName, c.hostname, err)
	}
	return nil
}
