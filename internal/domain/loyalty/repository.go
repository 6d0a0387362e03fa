package loyalty

import (
	"context"
	"time"
)

// DefaultCacheTTL is how long a cached account snapshot stays valid
const DefaultCacheTTL = 600 * time.Second

// LedgerRepository is the durable store for loyalty accounts. It exclusively
// owns account state; caches hold disposable copies.
type LedgerRepository interface {
	// NewAccount creates an empty account for the customer and returns it.
	// If the account already exists the stored account is returned.
	NewAccount(ctx context.Context, customerID string) (*Account, error)

	// Retrieve loads the account with its full transaction history.
	// Returns ErrAccountNotFound when the customer has no account.
	Retrieve(ctx context.Context, customerID string) (*Account, error)

	// AddTransaction atomically appends the transaction and stores the new
	// balance. The write is conditional on the account version that was read;
	// ErrConcurrencyConflict is returned when another writer got there first and
	// ErrTransactionExistsForOrder when the order number is already recorded.
	AddTransaction(ctx context.Context, account *Account, transaction *Transaction) error
}

// AccountCache is an optional lookaside store for account snapshots.
// Implementations are best-effort and never authoritative.
type AccountCache interface {
	// Get returns the cached account, or (nil, nil) on a miss
	Get(ctx context.Context, customerID string) (*Account, error)

	// Put stores an account snapshot
	Put(ctx context.Context, account *Account) error
}
