// Package connection is the fleet aggregate: it owns one
// internal/nodeclient.Client per configured node, the shared
// internal/inspectcache.Cache, and the optional internal/gclog audit
// trail, and exposes the six operations the rest of the application is
// built on — list a node's instances, list/aggregate across the fleet,
// node health, start an instance, stop an instance, and read an
// instance's logs. spec.md §2 calls this whole package "the core".
package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"

	"github.com/ouroboros8/captain/config"
	"github.com/ouroboros8/captain/internal/gclog"
	"github.com/ouroboros8/captain/internal/inspectcache"
	"github.com/ouroboros8/captain/internal/nodeclient"
)

// nodeTransport is the surface Connection needs from one node. it exists so
// tests can exercise the fleet logic (inventory GC, admission, fan-out,
// lifecycle) against an in-memory fake instead of a real Docker daemon —
// *nodeclient.Client satisfies it structurally, with no test-only seams in
// the production code.
type nodeTransport interface {
	Hostname() string
	Close() error
	Ping(ctx context.Context) error
	Containers(ctx context.Context) ([]container.Summary, error)
	Inspect(ctx context.Context, id string) (container.InspectResponse, error)
	Create(ctx context.Context, spec nodeclient.CreateSpec) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Kill(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)
}

// Connection is the fleet-wide aggregate root. one Connection is built at
// startup from config.Config and lives for the process's lifetime.
type Connection struct {
	config *config.Config
	logger *slog.Logger

	// nodes and order are separate so that fan-out operations (aggregate.go)
	// iterate nodes in a stable, configuration-declared order rather than
	// Go's randomized map order — purely cosmetic (log/output ordering) but
	// it makes repeated runs easier to diff.
	nodes map[string]nodeTransport
	order []string

	cache *inspectcache.Cache
	gc    *gclog.Log // nil when config.GCLogPath == ""
}

// New builds a Connection from configuration: one nodeclient.Client per
// entry in config.DockerNodes, a shared inspection cache, and (if
// configured) a GC audit trail. any single node URL failing to parse is
// fatal — a fleet member that can't even be constructed is a configuration
// error, not a runtime condition to tolerate.
func New(cfg *config.Config, logger *slog.Logger) (*Connection, error) {
	cache, err := inspectcache.New(cfg.InspectionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building inspection cache: %w", err)
	}

	var gc *gclog.Log
	if cfg.GCLogPath != "" {
		gc, err = gclog.Open(cfg.GCLogPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening gc log: %w", err)
		}
	}

	conn := &Connection{
		config: cfg,
		logger: logger,
		nodes:  make(map[string]nodeTransport, len(cfg.DockerNodes)),
		order:  make([]string, 0, len(cfg.DockerNodes)),
		cache:  cache,
		gc:     gc,
	}

	for _, nodeURL := range cfg.DockerNodes {
		client, err := nodeclient.New(nodeURL, cfg.DockerTimeout, cfg.DockerVerifyTLS, logger)
		if err != nil {
			conn.closeNodes()
			return nil, fmt.Errorf("configuring node %q: %w", nodeURL, err)
		}
		if _, exists := conn.nodes[client.Hostname()]; exists {
			conn.closeNodes()
			return nil, fmt.Errorf("duplicate node hostname %q", client.Hostname())
		}
		conn.nodes[client.Hostname()] = client
		conn.order = append(conn.order, client.Hostname())
	}

	logger.Info("connection configured", "nodes", len(conn.order))
	return conn, nil
}

// Close releases every node client and the GC log. safe to call once,
// typically deferred by main.
func (conn *Connection) Close() error {
	conn.closeNodes()
	if conn.gc != nil {
		return conn.gc.Close()
	}
	return nil
}

func (conn *Connection) closeNodes() {
	for _, hostname := range conn.order {
		if err := conn.nodes[hostname].Close(); err != nil {
			conn.logger.Warn("error closing node client", "node", hostname, "error", err)
		}
	}
}

// nodeClient resolves a node name to its client, or ErrNoSuchNode.
func (conn *Connection) nodeClient(node string) (nodeTransport, error) {
	client, ok := conn.nodes[node]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchNode, node)
	}
	return client, nil
}
