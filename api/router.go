package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/webgrab/webgrab/api/handler"
	"github.com/webgrab/webgrab/api/middleware"
	"github.com/webgrab/webgrab/config"
	"github.com/webgrab/webgrab/service"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:    Recovery → Logger → CORS
//	Sessions:  Bearer (token resolution; anonymous without a token)
//
// Liveness endpoints are outside auth so monitoring probes always work.
// This surface is read-only; retrieval happens through the tool server.
func NewRouter(svc *service.Service, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	r.GET("/", handler.Identity(svc))
	r.GET("/ping", handler.Ping(svc))
	r.GET("/health", handler.Health(svc))

	sessions := r.Group("/sessions")
	sessions.Use(middleware.Bearer(svc.Auth()))
	sessions.GET("/:id/info", handler.SessionInfo(svc))
	sessions.GET("/:id/chunks/:index", handler.SessionChunk(svc))
	sessions.GET("/:id/urls", handler.SessionURLs(svc))

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	wildcard := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	if wildcard {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}
