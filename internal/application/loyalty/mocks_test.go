package loyalty

import (
	"context"
	"sync"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockLedgerRepository is a mock implementation of loyalty.LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) NewAccount(ctx context.Context, customerID string) (*loyalty.Account, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Account), args.Error(1)
}

func (m *MockLedgerRepository) Retrieve(ctx context.Context, customerID string) (*loyalty.Account, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Account), args.Error(1)
}

func (m *MockLedgerRepository) AddTransaction(ctx context.Context, account *loyalty.Account, transaction *loyalty.Transaction) error {
	args := m.Called(ctx, account, transaction)
	return args.Error(0)
}

// MockAccountCache is a mock implementation of loyalty.AccountCache
type MockAccountCache struct {
	mock.Mock
}

func (m *MockAccountCache) Get(ctx context.Context, customerID string) (*loyalty.Account, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Account), args.Error(1)
}

func (m *MockAccountCache) Put(ctx context.Context, account *loyalty.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockPointsMetrics is a mock implementation of PointsMetrics
type MockPointsMetrics struct {
	mock.Mock
}

func (m *MockPointsMetrics) RecordPointsEarned(ctx context.Context, points float64) {
	m.Called(ctx, points)
}

func (m *MockPointsMetrics) RecordPointsSpent(ctx context.Context, points float64) {
	m.Called(ctx, points)
}

func (m *MockPointsMetrics) RecordDuplicateOrder(ctx context.Context, channel string) {
	m.Called(ctx, channel)
}

func (m *MockPointsMetrics) RecordSpendRejected(ctx context.Context, reason string) {
	m.Called(ctx, reason)
}

// memoryLedger is a small in-memory ledger with the same conditional-write
// semantics as the database implementation.
type memoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*memoryRow
}

type memoryRow struct {
	points       decimal.Decimal
	transactions []loyalty.Transaction
	version      int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{accounts: make(map[string]*memoryRow)}
}

func (l *memoryLedger) NewAccount(_ context.Context, customerID string) (*loyalty.Account, error) {
	l.mu.Lock()
	if _, ok := l.accounts[customerID]; !ok {
		l.accounts[customerID] = &memoryRow{points: decimal.Zero, version: 1}
	}
	l.mu.Unlock()
	return l.Retrieve(context.Background(), customerID)
}

func (l *memoryLedger) Retrieve(_ context.Context, customerID string) (*loyalty.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.accounts[customerID]
	if !ok {
		return nil, loyalty.ErrAccountNotFound
	}
	account, err := loyalty.RestoreAccountFromDecimal(customerID, row.points, row.transactions)
	if err != nil {
		return nil, err
	}
	return account.WithVersion(row.version), nil
}

func (l *memoryLedger) AddTransaction(_ context.Context, account *loyalty.Account, transaction *loyalty.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.accounts[account.CustomerID()]
	if !ok {
		return loyalty.ErrAccountNotFound
	}
	for _, tx := range row.transactions {
		if tx.OrderNumber == transaction.OrderNumber {
			return loyalty.ErrTransactionExistsForOrder
		}
	}
	if row.version != account.Version() {
		return loyalty.ErrConcurrencyConflict
	}
	row.transactions = append(row.transactions, *transaction)
	row.points = account.Balance()
	row.version++
	account.IncrementVersion()
	return nil
}

// seed stores an account with the given balance as a single earn transaction
func (l *memoryLedger) seed(customerID string, points float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[customerID] = &memoryRow{
		points:       decimal.NewFromFloat(points),
		transactions: []loyalty.Transaction{loyalty.NewTransaction("SEED", decimal.NewFromFloat(points))},
		version:      1,
	}
}

func (l *memoryLedger) balance(customerID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[customerID].points.InexactFloat64()
}

func (l *memoryLedger) transactionCount(customerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts[customerID].transactions)
}

func restoredAccount(customerID string, points float64, version int, orders ...string) *loyalty.Account {
	txs := make([]loyalty.Transaction, 0, len(orders))
	for _, o := range orders {
		txs = append(txs, loyalty.NewTransaction(o, decimal.Zero))
	}
	account, err := loyalty.RestoreAccount(customerID, points, txs)
	if err != nil {
		panic(err)
	}
	return account.WithVersion(version)
}
