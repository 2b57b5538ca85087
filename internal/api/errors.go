package api

import (
	"github.com/gin-gonic/gin"

	"github.com/taskgrid/dispatch/internal/apperror"
)

// writeError maps any error to the status code apperror.HTTPStatus assigns
// its Kind and writes {error} as the body, spec.md §6's error-response
// column for every route.
func writeError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(apperror.KindOf(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
