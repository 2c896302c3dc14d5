package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/webgrab/webgrab/api/middleware"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/service"
)

// SessionInfo returns a handler for GET /sessions/:id/info.
func SessionInfo(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, terr := svc.SessionInfo(c.Param("id"), middleware.Caller(c))
		if terr != nil {
			writeError(c, terr)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// SessionChunk returns a handler for GET /sessions/:id/chunks/:index.
// The chunk body is served as plain text, not JSON-wrapped.
func SessionChunk(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			writeError(c, models.NewToolError(models.ErrCodeInvalidChunkIndex,
				"chunk index must be an integer", nil).
				WithDetail("chunk_index", c.Param("index")))
			return
		}
		chunk, terr := svc.SessionChunk(c.Param("id"), index, middleware.Caller(c))
		if terr != nil {
			writeError(c, terr)
			return
		}
		c.String(http.StatusOK, chunk)
	}
}

// SessionURLs returns a handler for GET /sessions/:id/urls.
//
// Renders fetchable chunk URLs by default; ?as_json=true switches to the
// structured {session_id, chunk_index} references the tool surface uses.
// ?base_url overrides the configured web URL in rendered links.
func SessionURLs(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		asJSON := c.Query("as_json") == "true"
		urls, terr := svc.SessionURLs(c.Param("id"), middleware.Caller(c), asJSON, c.Query("base_url"))
		if terr != nil {
			writeError(c, terr)
			return
		}
		c.JSON(http.StatusOK, urls)
	}
}
