// Package httpx wires the orchestration services to HTTP endpoints.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpship/mcpship/internal/service/deploy"
	"github.com/mcpship/mcpship/internal/service/hosting"
	"github.com/mcpship/mcpship/internal/service/rollback"
	"github.com/mcpship/mcpship/internal/service/router"
)

const healthCheckTimeout = 2 * time.Second

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	routes   *router.Service
	deploy   *deploy.Service
	rollback *rollback.Service
	hosting  *hosting.Service
	dbHealth func(context.Context) error
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, routes *router.Service, deploySvc *deploy.Service, rollbackSvc *rollback.Service, hostingSvc *hosting.Service, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		routes:   routes,
		deploy:   deploySvc,
		rollback: rollbackSvc,
		hosting:  hostingSvc,
		dbHealth: dbHealth,
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.HandleFunc("POST /v1/deployments", r.handleCreateDeployment)
	r.mux.HandleFunc("GET /v1/deployments", r.handleListDeployments)
	r.mux.HandleFunc("GET /v1/deployments/{id}", r.handleGetDeployment)
	r.mux.HandleFunc("DELETE /v1/deployments/{id}", r.handleDeleteDeployment)
	r.mux.HandleFunc("POST /v1/deployments/{id}/retry", r.handleRetryDeployment)
	r.mux.HandleFunc("PUT /v1/deployments/{id}/snippet", r.handleUpdateSnippet)
	r.mux.HandleFunc("GET /v1/deployments/{id}/rollback", r.handleCanRollback)
	r.mux.HandleFunc("POST /v1/deployments/{id}/rollback", r.handleRollback)
	r.mux.HandleFunc("GET /v1/users/{id}/permission", r.handleCheckPermission)

	r.mux.HandleFunc("POST /v1/servers", r.handleDeployServer)
	r.mux.HandleFunc("GET /v1/servers", r.handleListServers)
	r.mux.HandleFunc("GET /v1/servers/{id}", r.handleGetServer)
	r.mux.HandleFunc("POST /v1/servers/{id}/stop", r.handleStopServer)
	r.mux.HandleFunc("POST /v1/servers/{id}/start", r.handleStartServer)
	r.mux.HandleFunc("DELETE /v1/servers/{id}", r.handleDeleteServer)
	r.mux.HandleFunc("POST /v1/servers/{id}/requests", r.handleTrackRequest)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.dbHealth(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
