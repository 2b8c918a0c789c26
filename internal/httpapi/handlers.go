// Package httpapi is a thin translation layer between HTTP and the fleet
// core (internal/connection): handlers decode a request, call into
// Connection, and write a JSON response. no fleet logic lives here. it is
// not a complete REST contract — just enough surface to exercise the five
// upstream operations (list instances, node health, start, stop, logs).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ouroboros8/captain/internal/connection"
	"github.com/ouroboros8/captain/internal/nodeclient"
)

// FleetHandler holds the dependencies every fleet-facing endpoint needs.
type FleetHandler struct {
	conn   *connection.Connection
	logger *slog.Logger
}

// NewFleetHandler constructs a FleetHandler.
func NewFleetHandler(conn *connection.Connection, logger *slog.Logger) *FleetHandler {
	return &FleetHandler{conn: conn, logger: logger}
}

// ListNodes handles GET /api/nodes.
func (h *FleetHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.conn.GetNodes(r.Context())
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	writeJsonAndRespond(w, http.StatusOK, nodes)
}

// GetNode handles GET /api/nodes/{node}.
func (h *FleetHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	status, err := h.conn.GetNode(r.Context(), node)
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	writeJsonAndRespond(w, http.StatusOK, status)
}

// ListInstances handles GET /api/instances, optionally filtered by
// ?node=<name>.
func (h *FleetHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	nodeFilter := r.URL.Query().Get("node")
	instances, err := h.conn.GetInstances(r.Context(), nodeFilter)
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	writeJsonAndRespond(w, http.StatusOK, instances)
}

// startInstanceRequest is the JSON body of POST /api/instances.
type startInstanceRequest struct {
	App         string            `json:"app"`
	SlugURI     string            `json:"slug_uri"`
	Node        string            `json:"node"`
	Environment map[string]string `json:"environment"`
	Slots       int               `json:"slots"`
	Hostname    string            `json:"hostname"`
}

// StartInstance handles POST /api/instances.
func (h *FleetHandler) StartInstance(w http.ResponseWriter, r *http.Request) {
	var body startInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorJsonAndLogIt(w, http.StatusBadRequest, "malformed request body", h.logger)
		return
	}
	if body.App == "" || body.SlugURI == "" || body.Node == "" {
		writeErrorJsonAndLogIt(w, http.StatusBadRequest, "app, slug_uri and node are required", h.logger)
		return
	}

	inst, err := h.conn.StartInstance(r.Context(), connection.StartInstanceParams{
		App:         body.App,
		SlugURI:     body.SlugURI,
		Node:        body.Node,
		Environment: body.Environment,
		Slots:       body.Slots,
		Hostname:    body.Hostname,
	})
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	writeJsonAndRespond(w, http.StatusCreated, inst)
}

// StopInstance handles DELETE /api/instances/{id}. an unknown id is a 404,
// not a fleet-core error (connection.StopInstance reports it as (false, nil)
// rather than an error — spec.md §4.F).
func (h *FleetHandler) StopInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := h.conn.StopInstance(r.Context(), id)
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	if !found {
		writeErrorJsonAndLogIt(w, http.StatusNotFound, "no such instance: "+id, h.logger)
		return
	}
	writeJsonAndRespond(w, http.StatusOK, map[string]bool{"stopped": true})
}

// GetLogs handles GET /api/instances/{id}/logs[?follow=true].
// non-follow responses are a single JSON array; follow responses are
// newline-delimited JSON objects flushed as they arrive, terminated either
// by the instance exiting or the client disconnecting.
func (h *FleetHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	follow, _ := strconv.ParseBool(r.URL.Query().Get("follow"))

	stream, err := h.conn.GetLogs(r.Context(), id, follow)
	if err != nil {
		h.writeConnectionError(w, err)
		return
	}
	defer stream.Close()

	if !follow {
		h.writeBufferedLogs(w, stream)
		return
	}
	h.writeFollowedLogs(w, r.Context(), stream)
}

func (h *FleetHandler) writeBufferedLogs(w http.ResponseWriter, stream *connection.LogStream) {
	entries := make([]connection.LogEntry, 0, 64)
	for {
		entry, err := stream.Next()
		if err != nil {
			break
		}
		entries = append(entries, entry)
	}
	writeJsonAndRespond(w, http.StatusOK, entries)
}

func (h *FleetHandler) writeFollowedLogs(w http.ResponseWriter, ctx context.Context, stream *connection.LogStream) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := stream.Next()
		if err != nil {
			return
		}
		if err := encoder.Encode(entry); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// writeConnectionError maps a Connection error onto an HTTP status code.
func (h *FleetHandler) writeConnectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connection.ErrNoSuchNode), errors.Is(err, connection.ErrNoSuchInstance):
		writeErrorJsonAndLogIt(w, http.StatusNotFound, err.Error(), h.logger)
	case errors.Is(err, connection.ErrNodeOutOfCapacity):
		writeErrorJsonAndLogIt(w, http.StatusConflict, err.Error(), h.logger)
	case errors.Is(err, nodeclient.ErrUnreachable):
		writeErrorJsonAndLogIt(w, http.StatusBadGateway, err.Error(), h.logger)
	default:
		writeErrorJsonAndLogIt(w, http.StatusInternalServerError, "internal error", h.logger)
	}
}

// HealthHandler serves the process liveness check. it is deliberately
// independent of the fleet core: a node being unreachable must never make
// this process's own health check fail.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJsonAndRespond(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
