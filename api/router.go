package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unhide/api/handler"
	"github.com/use-agent/unhide/api/middleware"
	"github.com/use-agent/unhide/cache"
	"github.com/use-agent/unhide/config"
	"github.com/use-agent/unhide/resolver"
	"github.com/use-agent/unhide/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(rv *resolver.Resolver, cfg *config.Config, cc *cache.Cache, hooks *webhook.Sender, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(rv, cc, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/resolve", handler.Resolve(rv, cc, cfg.Resolver.MaxStepsLimit))

	batch := &handler.Batch{
		Resolver:      rv,
		Cache:         cc,
		Webhooks:      hooks,
		Config:        cfg.Batch,
		MaxStepsLimit: cfg.Resolver.MaxStepsLimit,
	}
	protected.POST("/batch/resolve", handler.PostBatch(batch))
	protected.GET("/batch/:id", handler.GetBatch())

	return r
}
