package dto

import (
	"net/http"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
)

// API error codes, reported in the error envelope as ERR_<DESCRIPTION>
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON         = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge     = "ERR_REQUEST_TOO_LARGE"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeInsufficientPoints  = "ERR_INSUFFICIENT_POINTS"
	ErrCodeForbidden           = "ERR_FORBIDDEN"
	ErrCodeTimeout             = "ERR_TIMEOUT"
)

// ErrorCodeHTTPStatus is the status each API code is served with.
// A rejected spend is 422: the request was well formed but the balance is short.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidJSON:         http.StatusBadRequest,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeInsufficientPoints:  http.StatusUnprocessableEntity,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeTimeout:             http.StatusGatewayTimeout,
}

// GetHTTPStatus returns the status for an API code; unknown codes are 500
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping translates domain error codes to API codes.
// Only rejected input, a short balance and an unknown account are client
// errors. A replayed spend order or a write that kept losing the version race
// is a server error; the domain message still tells them apart.
var DomainErrorCodeMapping = map[string]string{
	loyalty.CodeInvalidValues:             ErrCodeInvalidInput,
	loyalty.CodeAccountNotFound:           ErrCodeNotFound,
	loyalty.CodeTransactionExistsForOrder: ErrCodeInternal,
	loyalty.CodePointsNotAvailable:        ErrCodeInsufficientPoints,
	loyalty.CodeDatabaseError:             ErrCodeInternal,
	shared.CodeConcurrencyConflict:        ErrCodeInternal,
}

// NormalizeErrorCode converts a domain code to its API code. Anything else,
// API codes included, is returned as is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
