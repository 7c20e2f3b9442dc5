package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clcummin/threat-designer/internal/apperr"
)

// errorEnvelope is spec.md §6's wire error shape:
// {error: category-label, message, job_id?}.
type errorEnvelope struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
	JobID   string      `json:"job_id,omitempty"`
}

// writeError classifies err into an *apperr.Error (remapping provider kinds
// to their wire-facing equivalents) and writes the matching status code and
// envelope. Unclassified errors are treated as internal.
func writeError(c *gin.Context, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, err.Error(), err)
	}
	appErr = apperr.Remap(appErr)
	c.JSON(appErr.HTTPStatus(), errorEnvelope{
		Error:   appErr.Kind,
		Message: appErr.Message,
		JobID:   appErr.JobID,
	})
}
