package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStats handles GET /api/stats, spec.md §6.
func (a *API) getStats(c *gin.Context) {
	stats, err := a.coord.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": stats.Jobs, "workers": stats.Workers})
}
