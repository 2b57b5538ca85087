// Package api wires the Dispatch Coordinator's (C6) business logic onto the
// HTTP contract spec.md §6 defines: one API struct owning a router, with
// one register* method per resource group, built on gin-gonic/gin.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskgrid/dispatch/internal/coordinator"
)

// API owns the gin engine and the coordinator it fronts.
type API struct {
	coord        *coordinator.Coordinator
	engine       *gin.Engine
	healthChecks []healthCheck
}

// HealthCheck names one dependency New's /healthz route pings.
type HealthCheck struct {
	Name string
	Ping func(context.Context) error
}

// New creates an API and registers every route spec.md §6 names, plus
// /healthz and, if metricsHandler is non-nil, /metrics. checks is pinged
// on every /healthz call; pass nil for none.
func New(coord *coordinator.Coordinator, metricsHandler http.Handler, checks ...HealthCheck) *API {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())

	a := &API{coord: coord, engine: r}
	for _, hc := range checks {
		a.healthChecks = append(a.healthChecks, healthCheck{name: hc.Name, ping: hc.Ping})
	}

	a.registerJobRoutes(r)
	a.registerWorkerRoutes(r)
	a.registerStatsRoutes(r)

	r.GET("/healthz", a.healthz)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return a
}

// Handler returns the assembled http.Handler.
func (a *API) Handler() http.Handler {
	return a.engine
}

func (a *API) registerJobRoutes(r *gin.Engine) {
	r.POST("/api/jobs", a.createJob)
	r.GET("/api/jobs/:id", a.getJob)
	r.PATCH("/api/jobs/:id", a.updateJob)
	r.GET("/api/jobs/next/:type", a.claimNextJob)
}

func (a *API) registerWorkerRoutes(r *gin.Engine) {
	r.POST("/api/workers", a.createWorker)
	r.GET("/api/workers/:id", a.getWorker)
	r.DELETE("/api/workers/:id", a.stopWorker)
	r.PATCH("/api/workers/:id", a.updateWorker)
	r.POST("/api/workers/scale", a.scaleWorkers)
}

func (a *API) registerStatsRoutes(r *gin.Engine) {
	r.GET("/api/stats", a.getStats)
}
