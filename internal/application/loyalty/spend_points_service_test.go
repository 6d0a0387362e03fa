package loyalty

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func spendCommand(customerID, orderNumber string, spend float64) SpendPointsCommand {
	return SpendPointsCommand{CustomerID: customerID, OrderNumber: orderNumber, Spend: spend}
}

func TestSpendPointsService_Spend(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the balance and returns the projection", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 10)
		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		resp, err := svc.Spend(ctx, spendCommand("james", "ORD123", 5))

		require.NoError(t, err)
		assert.Equal(t, 5.0, resp.CurrentPoints)
		require.Len(t, resp.Transactions, 2)
		assert.Equal(t, "ORD123", resp.Transactions[1].OrderNumber)
		assert.Equal(t, -5.0, resp.Transactions[1].Change)
		assert.Equal(t, 5.0, ledger.balance("james"))
	})

	t.Run("not enough points leaves the account unchanged", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 5)
		metrics := new(MockPointsMetrics)
		metrics.On("RecordSpendRejected", mock.Anything, "insufficient_points").Return()
		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t),
			WithSpendMetrics(metrics))

		resp, err := svc.Spend(ctx, spendCommand("james", "ORD123", 10))

		assert.Nil(t, resp)
		assert.ErrorIs(t, err, loyalty.ErrPointsNotAvailable)
		assert.Equal(t, 5.0, ledger.balance("james"))
		assert.Equal(t, 1, ledger.transactionCount("james"))
		metrics.AssertExpectations(t)
	})

	t.Run("repeated order number is a hard error", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 10)
		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("james", "ORD123", 3))
		require.NoError(t, err)
		_, err = svc.Spend(ctx, spendCommand("james", "ORD123", 3))

		assert.ErrorIs(t, err, loyalty.ErrTransactionExistsForOrder)
		assert.Equal(t, 7.0, ledger.balance("james"))
	})

	t.Run("unknown customer is not found", func(t *testing.T) {
		svc := NewSpendPointsService(NewAccountService(newMemoryLedger(), nil, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("nobody", "ORD1", 1))
		assert.ErrorIs(t, err, loyalty.ErrAccountNotFound)
	})

	t.Run("invalid input is rejected", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 10)
		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("", "ORD1", 1))
		assert.ErrorIs(t, err, loyalty.ErrInvalidValues)
		_, err = svc.Spend(ctx, spendCommand("james", "ORD1", 0))
		assert.ErrorIs(t, err, loyalty.ErrInvalidValues)
		_, err = svc.Spend(ctx, spendCommand("james", "", 1))
		assert.ErrorIs(t, err, loyalty.ErrInvalidValues)
	})

	t.Run("reads bypass the cache but successful writes refresh it", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 10)
		cache := new(MockAccountCache)
		cache.On("Put", mock.Anything, mock.MatchedBy(func(a *loyalty.Account) bool {
			return a.CurrentPoints() == 6
		})).Return(errors.New("redis down"))
		svc := NewSpendPointsService(NewAccountService(ledger, cache, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("james", "ORD1", 4))

		require.NoError(t, err)
		cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
		cache.AssertExpectations(t)
	})

	t.Run("conflict re-validates against the fresh balance", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 10, 1), nil).Once()
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 2, 2, "OTHER"), nil).Once()
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrConcurrencyConflict).Once()

		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("james", "ORD1", 8))

		assert.ErrorIs(t, err, loyalty.ErrPointsNotAvailable)
		ledger.AssertNumberOfCalls(t, "AddTransaction", 1)
		ledger.AssertExpectations(t)
	})

	t.Run("database failure is propagated", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 10, 1), nil)
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrDatabaseError.WithCause(errors.New("broken pipe")))

		svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		_, err := svc.Spend(ctx, spendCommand("james", "ORD1", 1))
		assert.ErrorIs(t, err, loyalty.ErrDatabaseError)
	})
}

func TestSpendPointsService_ConcurrentSpendsNeverOverdraw(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed("james", 10)
	svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t),
		WithSpendMaxAttempts(20))

	orders := []string{"A", "B", "C", "D", "E", "F"}
	var wg sync.WaitGroup
	for _, order := range orders {
		wg.Add(1)
		go func(order string) {
			defer wg.Done()
			_, _ = svc.Spend(context.Background(), spendCommand("james", order, 3))
		}(order)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, ledger.balance("james"), 0.0)
	assert.Equal(t, 1.0, ledger.balance("james"))
	assert.Equal(t, 4, ledger.transactionCount("james"))
}

func TestSpendPointsService_LogsCarryRequestContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ledger := newMemoryLedger()
	ledger.seed("james", 10)
	svc := NewSpendPointsService(NewAccountService(ledger, nil, nil), zap.New(core))

	ctx, _ := logger.WithRequestID(context.Background(), zap.NewNop(), "req-42")
	_, err := svc.Spend(ctx, spendCommand("james", "ORD1", 4))
	require.NoError(t, err)

	entries := logs.FilterMessage("points spent").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "james", fields["customer_id"])
	assert.Equal(t, "ORD1", fields["order_number"])
}
