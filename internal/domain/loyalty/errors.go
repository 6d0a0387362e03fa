package loyalty

import "github.com/loyalty/backend/internal/domain/shared"

// Error codes raised by the loyalty bounded context
const (
	CodeInvalidValues             = "INVALID_VALUES"
	CodeAccountNotFound           = "ACCOUNT_NOT_FOUND"
	CodeTransactionExistsForOrder = "TRANSACTION_EXISTS_FOR_ORDER"
	CodePointsNotAvailable        = "POINTS_NOT_AVAILABLE"
	CodeDatabaseError             = "DATABASE_ERROR"
)

// Loyalty domain errors. Match with errors.Is; copies produced by WithCause or
// WithMessage compare equal by code.
var (
	ErrInvalidValues             = shared.NewDomainError(CodeInvalidValues, "Invalid values provided")
	ErrAccountNotFound           = shared.NewDomainError(CodeAccountNotFound, "Loyalty account not found")
	ErrTransactionExistsForOrder = shared.NewDomainError(CodeTransactionExistsForOrder, "A transaction already exists for this order")
	ErrPointsNotAvailable        = shared.NewDomainError(CodePointsNotAvailable, "Not enough points available")
	ErrDatabaseError             = shared.NewDomainError(CodeDatabaseError, "Loyalty ledger operation failed")

	// ErrConcurrencyConflict is returned by the ledger when the account was
	// modified after it was read.
	ErrConcurrencyConflict = shared.ErrConcurrencyConflict
)
