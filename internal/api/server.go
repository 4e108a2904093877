package api

import (
	"log/slog"
	"net/http"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/provisioner"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the middleware chain and all routes
// registered. req is the user POST /api/v1/provision creates.
// Middleware order:
//  1. Recovery: panic → 500
//  2. OTEL: trace context per request
//  3. RequestLogger: structured request logging
func NewRouter(p provisionerService, req provisioner.UserProvisioningRequest, serviceName string) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(OTEL(serviceName))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{provisioner: p, request: req}

	v1 := engine.Group("/api/v1")
	v1.POST("/provision", h.Provision)
	v1.GET("/provision", h.ProvisionStatus)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
