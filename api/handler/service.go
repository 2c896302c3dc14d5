package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webgrab/webgrab/service"
)

// Identity returns a handler for GET /.
func Identity(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Identity())
	}
}

// Ping returns a handler for GET /ping.
func Ping(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Ping())
	}
}

// Health returns a handler for GET /health.
//
// Always 200; a storage problem shows up as status "degraded" in the body
// so probes can alert without flapping the process.
func Health(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Health())
	}
}
