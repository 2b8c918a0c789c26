package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/ouroboros8/captain/config"
	"github.com/ouroboros8/captain/internal/inspectcache"
	"github.com/ouroboros8/captain/internal/nodeclient"
)

// fakeNode is an in-memory nodeTransport used throughout this package's
// tests. no test in this package opens a real socket — every scenario is
// expressed as canned container summaries/details on a fakeNode.
type fakeNode struct {
	hostname string

	mu        sync.Mutex
	summaries []container.Summary
	details   map[string]container.InspectResponse
	logBody   string

	pingErr       error
	startErr      error
	killErr       error
	removeErr     error
	createErr     error
	containersErr error

	started []string
	killed  []string
	removed []string
	stopped []string
	created []nodeclient.CreateSpec
}

func newFakeNode(hostname string) *fakeNode {
	return &fakeNode{hostname: hostname, details: map[string]container.InspectResponse{}}
}

func (f *fakeNode) Hostname() string           { return f.hostname }
func (f *fakeNode) Close() error               { return nil }
func (f *fakeNode) Ping(context.Context) error { return f.pingErr }

func (f *fakeNode) Containers(context.Context) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.containersErr != nil {
		return nil, f.containersErr
	}
	out := make([]container.Summary, len(f.summaries))
	copy(out, f.summaries)
	return out, nil
}

func (f *fakeNode) Inspect(_ context.Context, id string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	details, ok := f.details[id]
	if !ok {
		return container.InspectResponse{}, nodeclient.ErrNoSuchContainer
	}
	return details, nil
}

func (f *fakeNode) Create(_ context.Context, spec nodeclient.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, spec)
	id := "created-" + spec.Name
	f.summaries = append(f.summaries, container.Summary{ID: id, Status: "Created"})
	f.details[id] = container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:         id,
			Name:       "/" + spec.Name,
			State:      &container.ContainerState{Status: "created"},
			HostConfig: &container.HostConfig{Resources: container.Resources{CPUShares: spec.CPUShares}},
		},
		Config:          &container.Config{Env: spec.Env},
		NetworkSettings: &container.NetworkSettings{Ports: nat.PortMap{}},
	}
	return id, nil
}

// Start marks the created container as running and publishes a host port,
// mirroring what the real daemon does once a container with a
// daemon-assigned port binding actually comes up.
func (f *fakeNode) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	if f.startErr != nil {
		return f.startErr
	}
	f.setStatusLocked(id, "Up 1 second")
	f.setPortsLocked(id, []container.Port{{PrivatePort: 8080, PublicPort: 20080, Type: "tcp"}})
	if details, ok := f.details[id]; ok {
		details.NetworkSettings.Ports[nat.Port("8080/tcp")] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "20080"}}
		f.details[id] = details
	}
	return nil
}

func (f *fakeNode) Stop(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeNode) Kill(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, id)
	if f.killErr != nil {
		return f.killErr
	}
	f.setStatusLocked(id, "Exited (0) 1 second ago")
	if details, ok := f.details[id]; ok {
		details.State.FinishedAt = time.Now().UTC()
		f.details[id] = details
	}
	return nil
}

func (f *fakeNode) Remove(_ context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.details, id)
	kept := f.summaries[:0]
	for _, summary := range f.summaries {
		if summary.ID != id {
			kept = append(kept, summary)
		}
	}
	f.summaries = kept
	return nil
}

func (f *fakeNode) Logs(_ context.Context, id string, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.logBody)), nil
}

func (f *fakeNode) setStatusLocked(id, status string) {
	for i := range f.summaries {
		if f.summaries[i].ID == id {
			f.summaries[i].Status = status
		}
	}
}

func (f *fakeNode) setPortsLocked(id string, ports []container.Port) {
	for i := range f.summaries {
		if f.summaries[i].ID == id {
			f.summaries[i].Ports = ports
		}
	}
}

// addRunning registers a running container ready to be listed by
// GetNodeInstances, with the app name encoded in id the way the real
// daemon encodes it in the container name ("<app>_<suffix>").
func (f *fakeNode) addRunning(id, name string, env []string, hostPort int, slots int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, container.Summary{
		ID:     id,
		Status: "Up 2 hours",
		Ports:  []container.Port{{PrivatePort: 8080, PublicPort: uint16(hostPort), Type: "tcp"}},
	})
	f.details[id] = container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:         id,
			Name:       "/" + name,
			State:      &container.ContainerState{Status: "running"},
			HostConfig: &container.HostConfig{Resources: container.Resources{CPUShares: slots}},
		},
		Config: &container.Config{Env: env},
		NetworkSettings: &container.NetworkSettings{
			Ports: nat.PortMap{
				"8080/tcp": {{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}},
			},
		},
	}
}

// addExited registers an exited container. zeroExit registers it with the
// zero-time sentinel instead of finishedAt.
func (f *fakeNode) addExited(id string, finishedAt time.Time, zeroExit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, container.Summary{ID: id, Status: "Exited (0) 3 hours ago"})

	state := &container.ContainerState{Status: "exited", FinishedAt: finishedAt}
	if zeroExit {
		state.FinishedAt = time.Time{}
	}
	f.details[id] = container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:         id,
			Name:       "/" + id,
			State:      state,
			HostConfig: &container.HostConfig{},
		},
		Config:          &container.Config{},
		NetworkSettings: &container.NetworkSettings{Ports: nat.PortMap{}},
	}
}

var errFakeUnreachable = errors.New("fake: node unreachable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(nodeNames ...string) *config.Config {
	return &config.Config{
		DockerNodes:             nodeNames,
		DockerTimeout:           5 * time.Second,
		DockerGCGracePeriod:     24 * time.Hour,
		SlotsPerNode:            10,
		DefaultSlotsPerInstance: 1,
		SlotMemoryMB:            128,
		SlugRunnerImage:         "captain/slug-runner",
		SlugRunnerCommand:       "start web",
		InspectionCacheSize:     64,
	}
}

// newTestConnection builds a Connection directly (bypassing New, which
// constructs real nodeclient.Client values from URLs) wired to the given
// fakes, in the given order.
func newTestConnection(cfg *config.Config, order []string, fakes map[string]*fakeNode) *Connection {
	nodes := make(map[string]nodeTransport, len(fakes))
	for name, fake := range fakes {
		nodes[name] = fake
	}
	cache, err := inspectcache.New(cfg.InspectionCacheSize)
	if err != nil {
		panic(err)
	}
	return &Connection{
		config: cfg,
		logger: testLogger(),
		nodes:  nodes,
		order:  order,
		cache:  cache,
		gc:     nil,
	}
}
