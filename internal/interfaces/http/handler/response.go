package handler

import "github.com/loyalty/backend/internal/interfaces/http/dto"

// Documentation-only shapes. The loyalty endpoints return the account
// projection unwrapped; the system endpoints and every error use the envelope.

// APIResponse is the envelope of the system endpoints
// @Description Envelope used by the system endpoints
type APIResponse[T any] struct {
	Success bool           `json:"success" example:"true"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ErrorResponse is returned by every endpoint on failure
// @Description Error envelope carrying a stable code and the request id
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}
