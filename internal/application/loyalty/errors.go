package loyalty

import (
	"errors"

	"github.com/loyalty/backend/internal/domain/loyalty"
)

func isAccountNotFound(err error) bool {
	return errors.Is(err, loyalty.ErrAccountNotFound)
}

func isDuplicateOrder(err error) bool {
	return errors.Is(err, loyalty.ErrTransactionExistsForOrder)
}

func isConcurrencyConflict(err error) bool {
	return errors.Is(err, loyalty.ErrConcurrencyConflict)
}
