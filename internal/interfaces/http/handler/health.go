package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
)

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatus is implemented by the account cache backends
type CacheStatus interface {
	Pinger
	Kind() string
}

// HealthHandler serves liveness and service information
type HealthHandler struct {
	BaseHandler
	db        Pinger
	cache     CacheStatus
	name      string
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(name, version string, db Pinger, cache CacheStatus) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		name:      name,
		version:   version,
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

// HealthResponse reports the state of the service and its dependencies
// @name HandlerHealthResponse
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Database string `json:"database" example:"connected"`
	Cache    string `json:"cache" example:"redis"`
	CacheOK  bool   `json:"cache_ok" example:"true"`
	Uptime   string `json:"uptime" example:"1h30m45s"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Pings the ledger database and reports the account cache backend.
// @Description  A failing cache degrades the service but does not make it unhealthy.
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Failure      503 {object} APIResponse[HealthResponse]
// @Router       /system/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "healthy",
		Database: "connected",
		Cache:    "disabled",
		CacheOK:  true,
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
	}

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}

	if h.cache != nil {
		resp.Cache = h.cache.Kind()
		if err := h.cache.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.CacheOK = false
		}
	}

	h.Success(c, resp)
}

// InfoResponse represents the service information response
// @name HandlerInfoResponse
type InfoResponse struct {
	Name      string `json:"name" example:"loyalty-service"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// Info godoc
// @ID           getSystemInfo
// @Summary      Get service information
// @Description  Returns name, version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[InfoResponse]
// @Router       /system/info [get]
func (h *HealthHandler) Info(c *gin.Context) {
	h.Success(c, InfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}
