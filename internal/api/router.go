// Package api exposes the control surface over HTTP: listing intake,
// run submission, job status (poll and SSE stream), error log queries,
// and account health.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/logger"
)

const defaultIdleTimeout = 120 * time.Second

// Router assembles the gin engine and HTTP server.
type Router struct {
	handlers *Handlers
	cfg      *config.Config
	logger   logger.Logger
}

func NewRouter(handlers *Handlers, cfg *config.Config, log logger.Logger) *Router {
	return &Router{
		handlers: handlers,
		cfg:      cfg,
		logger:   log,
	}
}

// Engine builds the route table.
func (r *Router) Engine() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(r.cfg.Server.CORSOrigins))

	engine.GET("/health", r.handlers.Health)

	api := engine.Group("/api")
	{
		api.POST("/listings", r.handlers.CreateListing)
		api.GET("/listings", r.handlers.ListListings)
		api.POST("/listings/:id/retry", r.handlers.RetryListing)

		api.POST("/runs", r.handlers.SubmitRun)

		api.GET("/jobs/:id", r.handlers.GetJob)
		api.GET("/jobs/:id/stream", r.handlers.StreamJob)

		api.GET("/errors", r.handlers.ListErrors)
		api.GET("/accounts/health", r.handlers.AccountsHealth)
	}

	return engine
}

// NewServer wraps the engine in an http.Server with the configured
// timeouts. The write timeout must outlast the SSE stream cap or the
// server would cut streams off early.
func (r *Router) NewServer() *http.Server {
	writeTimeout := r.cfg.Server.WriteTimeout
	if writeTimeout <= r.cfg.Stream.MaxDuration {
		writeTimeout = r.cfg.Stream.MaxDuration + time.Minute
	}

	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}
