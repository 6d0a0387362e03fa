// Package handler contains the gin handlers of the loyalty HTTP API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler writes the API envelope shared by all handlers
type BaseHandler struct{}

func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error writes an error envelope carrying the request id and records code for
// the metrics middleware
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	middleware.SetErrorCode(c, code)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// HandleError maps an application error onto the API. Domain errors keep their
// message unless they map to a 5xx; anything else is logged and hidden.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	// deadline from middleware.Timeout
	if errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() != nil {
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeTimeout, "Request timed out")
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.GetGinLogger(c).Error("Unexpected error", zap.Error(err))
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	code := dto.NormalizeErrorCode(domainErr.Code)
	status := dto.GetHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("Request failed", zap.String("code", domainErr.Code), zap.Error(err))
	}
	h.Error(c, status, code, domainErr.Message)
}
