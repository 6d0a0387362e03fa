package loyalty

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultEarnRate is the number of points credited per unit of order value
var DefaultEarnRate = decimal.NewFromFloat(0.5)

// PointsScale is the number of fractional digits the ledger stores for points.
// Every change is rounded to it before it touches the balance, so the stored
// balance stays equal to the sum of the stored changes.
const PointsScale int32 = 4

// Transaction is an immutable entry in a loyalty account's history.
// Change is positive for earned points and negative for spent points.
type Transaction struct {
	Date        time.Time
	OrderNumber string
	Change      decimal.Decimal
}

// NewTransaction creates a transaction dated now (UTC)
func NewTransaction(orderNumber string, change decimal.Decimal) Transaction {
	return Transaction{
		Date:        time.Now().UTC(),
		OrderNumber: orderNumber,
		Change:      change,
	}
}

// Account is the loyalty account aggregate root.
//
// The balance always equals the sum of all transaction changes and no two
// transactions share an order number. The order number is the idempotency key
// that absorbs duplicate deliveries of the same order.
type Account struct {
	customerID    string
	currentPoints decimal.Decimal
	transactions  []Transaction
	version       int
}

// NewAccount creates an empty account for a customer
func NewAccount(customerID string) (*Account, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, ErrInvalidValues.WithMessage("Customer ID cannot be empty")
	}
	return &Account{
		customerID:    customerID,
		currentPoints: decimal.Zero,
		transactions:  make([]Transaction, 0),
	}, nil
}

// RestoreAccount rebuilds an account from persisted state. The balance is taken
// as stored and is not recomputed from the transactions.
func RestoreAccount(customerID string, currentPoints float64, transactions []Transaction) (*Account, error) {
	return RestoreAccountFromDecimal(customerID, decimal.NewFromFloat(currentPoints), transactions)
}

// RestoreAccountFromDecimal is RestoreAccount for callers that already hold a decimal balance
func RestoreAccountFromDecimal(customerID string, currentPoints decimal.Decimal, transactions []Transaction) (*Account, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, ErrInvalidValues.WithMessage("Customer ID cannot be empty")
	}
	txs := make([]Transaction, len(transactions))
	copy(txs, transactions)
	return &Account{
		customerID:    customerID,
		currentPoints: currentPoints,
		transactions:  txs,
	}, nil
}

// WithVersion sets the persisted version used for optimistic locking
func (a *Account) WithVersion(version int) *Account {
	a.version = version
	return a
}

// CustomerID returns the owning customer's identifier
func (a *Account) CustomerID() string {
	return a.customerID
}

// CurrentPoints returns the balance as a float
func (a *Account) CurrentPoints() float64 {
	return a.currentPoints.InexactFloat64()
}

// Balance returns the exact balance
func (a *Account) Balance() decimal.Decimal {
	return a.currentPoints
}

// Transactions returns a copy of the history in chronological order
func (a *Account) Transactions() []Transaction {
	txs := make([]Transaction, len(a.transactions))
	copy(txs, a.transactions)
	return txs
}

// Version returns the version the account was loaded at
func (a *Account) Version() int {
	return a.version
}

// IncrementVersion is called by the ledger after a successful conditional write
func (a *Account) IncrementVersion() {
	a.version++
}

// HasTransactionForOrder reports whether the order number was already applied
func (a *Account) HasTransactionForOrder(orderNumber string) bool {
	for _, t := range a.transactions {
		if t.OrderNumber == orderNumber {
			return true
		}
	}
	return false
}

// Earn credits points for an order at the default earn rate
func (a *Account) Earn(orderNumber string, orderValue float64) (*Transaction, error) {
	return a.EarnAtRate(orderNumber, orderValue, DefaultEarnRate)
}

// EarnAtRate credits orderValue * rate points for an order.
// A repeated order number returns ErrTransactionExistsForOrder and leaves the
// account untouched.
func (a *Account) EarnAtRate(orderNumber string, orderValue float64, rate decimal.Decimal) (*Transaction, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, ErrInvalidValues.WithMessage("Order number cannot be empty")
	}
	if orderValue < 0 {
		return nil, ErrInvalidValues.WithMessage("Order value cannot be negative")
	}
	if a.HasTransactionForOrder(orderNumber) {
		return nil, ErrTransactionExistsForOrder
	}

	change := decimal.NewFromFloat(orderValue).Mul(rate).Round(PointsScale)
	return a.apply(orderNumber, change), nil
}

// Spend debits points for an order. The amount is rounded to PointsScale; an
// amount that rounds to zero is rejected.
// The duplicate check runs before the balance check, so a retried spend that
// was already applied reports ErrTransactionExistsForOrder.
func (a *Account) Spend(orderNumber string, amount float64) (*Transaction, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, ErrInvalidValues.WithMessage("Order number cannot be empty")
	}
	spend := decimal.NewFromFloat(amount).Round(PointsScale)
	if !spend.IsPositive() {
		return nil, ErrInvalidValues.WithMessage("Spend amount must be positive")
	}
	if a.HasTransactionForOrder(orderNumber) {
		return nil, ErrTransactionExistsForOrder
	}

	if a.currentPoints.Sub(spend).IsNegative() {
		return nil, ErrPointsNotAvailable
	}
	return a.apply(orderNumber, spend.Neg()), nil
}

func (a *Account) apply(orderNumber string, change decimal.Decimal) *Transaction {
	tx := NewTransaction(orderNumber, change)
	if n := len(a.transactions); n > 0 && tx.Date.Before(a.transactions[n-1].Date) {
		// keep per-account dates monotonic when the wall clock steps back
		tx.Date = a.transactions[n-1].Date
	}
	a.currentPoints = a.currentPoints.Add(change)
	a.transactions = append(a.transactions, tx)
	return &tx
}
