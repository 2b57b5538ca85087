package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskgrid/dispatch/internal/apperror"
	"github.com/taskgrid/dispatch/internal/model"
)

type createJobRequest struct {
	Type    model.JobType   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// createJob handles POST /api/jobs, spec.md §6.
func (a *API) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validationf("invalid request body: %v", err))
		return
	}

	job, err := a.coord.CreateJob(c.Request.Context(), req.Type, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"jobId": job.ID})
}

// getJob handles GET /api/jobs/:id, spec.md §6.
func (a *API) getJob(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	job, err := a.coord.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

type updateJobRequest struct {
	Status   model.JobStatus `json:"status"`
	WorkerID *int64          `json:"workerId"`
	Result   json.RawMessage `json:"result"`
}

// updateJob handles PATCH /api/jobs/:id, spec.md §6.
func (a *API) updateJob(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validationf("invalid request body: %v", err))
		return
	}

	if err := a.coord.UpdateJob(c.Request.Context(), id, req.Status, req.WorkerID, req.Result); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// claimNextJob handles GET /api/jobs/next/:type, spec.md §6 and §4.1.2.
func (a *API) claimNextJob(c *gin.Context) {
	typ := model.JobType(c.Param("type"))

	job, err := a.coord.ClaimNextPending(c.Request.Context(), typ)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func parseID(c *gin.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		return 0, apperror.Validationf("invalid %s: %v", param, err)
	}
	return id, nil
}
