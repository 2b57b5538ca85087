package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

type createWorkerRequest struct {
	Type model.JobType `json:"type"`
}

// createWorker handles POST /api/workers, spec.md §6.
func (a *API) createWorker(c *gin.Context) {
	var req createWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validationf("invalid request body: %v", err))
		return
	}

	w, err := a.coord.CreateWorker(c.Request.Context(), req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workerId": w.ID})
}

// getWorker handles GET /api/workers/:id, spec.md §6.
func (a *API) getWorker(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	w, err := a.coord.GetWorker(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker": w})
}

// stopWorker handles DELETE /api/workers/:id, spec.md §6.
func (a *API) stopWorker(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := a.coord.StopWorker(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type updateWorkerRequest struct {
	Status model.WorkerStatus `json:"status"`
}

// updateWorker handles PATCH /api/workers/:id, spec.md §6.
func (a *API) updateWorker(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	var req updateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validationf("invalid request body: %v", err))
		return
	}

	if err := a.coord.UpdateWorkerStatus(c.Request.Context(), id, req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type scaleWorkersRequest struct {
	Type  model.JobType `json:"type"`
	Count int           `json:"count"`
}

// scaleWorkers handles POST /api/workers/scale, spec.md §6.
func (a *API) scaleWorkers(c *gin.Context) {
	var req scaleWorkersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validationf("invalid request body: %v", err))
		return
	}

	if err := a.coord.ScaleWorkers(c.Request.Context(), req.Type, req.Count); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
