package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webgrab/webgrab/models"
)

// writeError renders the shared failure envelope with the HTTP status
// implied by the error code.
func writeError(c *gin.Context, terr *models.ToolError) {
	c.JSON(httpStatus(terr.Code), terr.ToEnvelope())
}

func httpStatus(code string) int {
	switch code {
	case models.ErrCodeAuth:
		return http.StatusUnauthorized
	case models.ErrCodePermissionDenied:
		return http.StatusForbidden
	case models.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case models.ErrCodeInvalidChunkIndex, models.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
