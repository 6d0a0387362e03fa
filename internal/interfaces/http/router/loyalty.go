package router

import (
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
)

// LoyaltyRoutes returns the loyalty group:
//
//	GET  /loyalty/:customer_id
//	POST /loyalty/:customer_id/spend
func LoyaltyRoutes(h *handler.LoyaltyHandler) *DomainGroup {
	return NewDomainGroup("loyalty", "/loyalty/:"+middleware.CustomerIDParam).
		Use(middleware.TracingAttributeInjector()).
		GET("", h.GetAccount).
		POST("/spend", h.SpendPoints)
}

// SystemRoutes returns the system group with health and service info
func SystemRoutes(h *handler.HealthHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/health", h.Health).
		GET("/info", h.Info)
}
