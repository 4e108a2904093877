package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/provisioner"

	"github.com/gin-gonic/gin"
)

// provisionerService is the subset of *provisioner.Provisioner used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type provisionerService interface {
	Provision(ctx context.Context, req provisioner.UserProvisioningRequest) (*provisioner.Result, error)
	RunDeepHealth(ctx context.Context) map[string]provisioner.ProbeResult
	IsReady() bool
	IsProvisionInProgress() bool
	LastResult() *provisioner.Result
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	provisioner provisionerService
	request     provisioner.UserProvisioningRequest
}

// Provision handles POST /api/v1/provision.
// It returns 202 once a run has been started in the background, or 409 if one
// is already in progress. Re-posting after success fails the run with a
// duplicate-user error, visible through GET /api/v1/provision.
func (h *Handler) Provision(c *gin.Context) {
	if h.provisioner.IsProvisionInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": provisioner.StatusInProgress})
		return
	}
	go func() {
		if _, err := h.provisioner.Provision(context.Background(), h.request); err != nil { //nolint:contextcheck
			slog.Warn("background provisioning failed", "err", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// ProvisionStatus handles GET /api/v1/provision and returns the last result.
func (h *Handler) ProvisionStatus(c *gin.Context) {
	result := h.provisioner.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "not-started"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health. Always 200: this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes the admin session and returns 200 only when every probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.provisioner.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready: 200 only after a successful provisioning run.
func (h *Handler) Ready(c *gin.Context) {
	if h.provisioner.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
