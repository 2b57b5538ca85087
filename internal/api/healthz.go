package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthCheck is a named dependency /healthz pings before reporting ready
// — the primary SQLite store and the Redis client. spec.md enumerates no
// such endpoint; SPEC_FULL.md's ambient-stack expansion adds it since any
// real deployment needs one for process supervision.
type healthCheck struct {
	name string
	ping func(context.Context) error
}

func (a *API) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for _, check := range a.healthChecks {
		if err := check.ping(ctx); err != nil {
			failures[check.name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failures": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
