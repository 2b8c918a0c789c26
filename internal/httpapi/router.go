package httpapi

// router.go constructs the chi router, registers middleware, and wires
// every route to its handler. adding an endpoint means adding one line
// here, nothing else.

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ouroboros8/captain/internal/connection"
)

// RouterDependencies groups everything the router and its handlers need.
type RouterDependencies struct {
	Logger     *slog.Logger
	Connection *connection.Connection
}

// NewRouter constructs the chi multiplexer, attaches middleware, builds
// every handler, and registers every route. returns a plain http.Handler
// so main.go carries no chi import of its own.
func NewRouter(deps RouterDependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	healthHandler := NewHealthHandler(deps.Logger)
	fleetHandler := NewFleetHandler(deps.Connection, deps.Logger)

	// /health sits at the root, not under /api: load balancers and
	// orchestrators probing liveness expect it there and have no context
	// on this service's internal route grouping.
	router.Get("/health", healthHandler.Health)

	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/nodes", fleetHandler.ListNodes)
		apiRouter.Get("/nodes/{node}", fleetHandler.GetNode)

		apiRouter.Get("/instances", fleetHandler.ListInstances)
		apiRouter.Post("/instances", fleetHandler.StartInstance)
		apiRouter.Delete("/instances/{id}", fleetHandler.StopInstance)
		apiRouter.Get("/instances/{id}/logs", fleetHandler.GetLogs)
	})

	return router
}
