package loyalty

import (
	"context"
	"errors"
	"testing"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func earnEvent(customerID, orderID string, value float64) loyalty.OrderConfirmedEvent {
	return loyalty.OrderConfirmedEvent{CustomerID: customerID, OrderID: orderID, OrderValue: value}
}

func TestOrderConfirmedHandler_EventTypes(t *testing.T) {
	h := NewOrderConfirmedHandler(NewAccountService(newMemoryLedger(), nil, nil), nil)
	assert.Equal(t, []string{loyalty.EventTypeOrderConfirmed}, h.EventTypes())
}

func TestOrderConfirmedHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh customer gets an account and half the order value", func(t *testing.T) {
		ledger := newMemoryLedger()
		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		err := h.Handle(ctx, earnEvent("james", "ORD987", 100.0))

		require.NoError(t, err)
		assert.Equal(t, 50.0, ledger.balance("james"))
		assert.Equal(t, 1, ledger.transactionCount("james"))
	})

	t.Run("same order delivered twice credits once", func(t *testing.T) {
		ledger := newMemoryLedger()
		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD987", 100.0)))
		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD987", 100.0)))

		assert.Equal(t, 50.0, ledger.balance("james"))
		assert.Equal(t, 1, ledger.transactionCount("james"))
	})

	t.Run("uses the configured earn rate", func(t *testing.T) {
		ledger := newMemoryLedger()
		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t),
			WithEarnRate(decimal.NewFromInt(1)))

		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD1", 40)))
		assert.Equal(t, 40.0, ledger.balance("james"))
	})

	t.Run("writes through to the cache and records metrics", func(t *testing.T) {
		ledger := newMemoryLedger()
		ledger.seed("james", 10)
		cache := new(MockAccountCache)
		metrics := new(MockPointsMetrics)
		cache.On("Get", mock.Anything, "james").Return(nil, nil)
		cache.On("Put", mock.Anything, mock.MatchedBy(func(a *loyalty.Account) bool {
			return a.CurrentPoints() == 10
		})).Return(nil).Once()
		cache.On("Put", mock.Anything, mock.MatchedBy(func(a *loyalty.Account) bool {
			return a.CurrentPoints() == 20
		})).Return(nil).Once()
		metrics.On("RecordPointsEarned", mock.Anything, 10.0).Return()

		h := NewOrderConfirmedHandler(NewAccountService(ledger, cache, nil), zaptest.NewLogger(t),
			WithMetrics(metrics))

		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD2", 20)))
		cache.AssertExpectations(t)
		metrics.AssertExpectations(t)
	})

	t.Run("order already in cached history is skipped without writes", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		cache := new(MockAccountCache)
		metrics := new(MockPointsMetrics)
		cache.On("Get", mock.Anything, "james").Return(restoredAccount("james", 50, 2, "ORD987"), nil)
		metrics.On("RecordDuplicateOrder", mock.Anything, ChannelEarn).Return()

		h := NewOrderConfirmedHandler(NewAccountService(ledger, cache, nil), zaptest.NewLogger(t),
			WithMetrics(metrics))

		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD987", 100)))
		ledger.AssertNotCalled(t, "AddTransaction", mock.Anything, mock.Anything, mock.Anything)
		metrics.AssertExpectations(t)
	})

	t.Run("duplicate detected by the ledger constraint is success", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 0, 1), nil)
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrTransactionExistsForOrder)

		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		assert.NoError(t, h.Handle(ctx, earnEvent("james", "ORD1", 10)))
		ledger.AssertNumberOfCalls(t, "AddTransaction", 1)
	})

	t.Run("retrieve failure other than not found is fatal and creates nothing", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		dbErr := loyalty.ErrDatabaseError.WithCause(errors.New("connection reset"))
		ledger.On("Retrieve", mock.Anything, "james").Return(nil, dbErr)

		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		err := h.Handle(ctx, earnEvent("james", "ORD1", 10))
		assert.ErrorIs(t, err, loyalty.ErrDatabaseError)
		ledger.AssertNotCalled(t, "NewAccount", mock.Anything, mock.Anything)
	})

	t.Run("account creation failure is propagated", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(nil, loyalty.ErrAccountNotFound)
		ledger.On("NewAccount", mock.Anything, "james").Return(nil, loyalty.ErrDatabaseError)

		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		assert.ErrorIs(t, h.Handle(ctx, earnEvent("james", "ORD1", 10)), loyalty.ErrDatabaseError)
	})

	t.Run("write failure is propagated", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 0, 1), nil)
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrDatabaseError.WithCause(errors.New("disk full")))

		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		assert.ErrorIs(t, h.Handle(ctx, earnEvent("james", "ORD1", 10)), loyalty.ErrDatabaseError)
		ledger.AssertNumberOfCalls(t, "AddTransaction", 1)
	})

	t.Run("conflict re-reads from the ledger and retries", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		cache := new(MockAccountCache)
		cache.On("Get", mock.Anything, "james").Return(restoredAccount("james", 0, 1), nil).Once()
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 5, 2, "OTHER"), nil).Once()
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrConcurrencyConflict).Once()
		ledger.On("AddTransaction", mock.Anything, mock.MatchedBy(func(a *loyalty.Account) bool {
			return a.Version() == 2 && a.CurrentPoints() == 10
		}), mock.Anything).Return(nil).Once()
		cache.On("Put", mock.Anything, mock.Anything).Return(nil)

		h := NewOrderConfirmedHandler(NewAccountService(ledger, cache, nil), zaptest.NewLogger(t))

		require.NoError(t, h.Handle(ctx, earnEvent("james", "ORD1", 10)))
		cache.AssertNumberOfCalls(t, "Get", 1)
		ledger.AssertExpectations(t)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		ledger := new(MockLedgerRepository)
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 0, 1), nil).Once()
		ledger.On("Retrieve", mock.Anything, "james").Return(restoredAccount("james", 0, 2), nil).Once()
		ledger.On("AddTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(loyalty.ErrConcurrencyConflict)

		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t),
			WithMaxAttempts(2))

		err := h.Handle(ctx, earnEvent("james", "ORD1", 10))
		assert.ErrorIs(t, err, loyalty.ErrConcurrencyConflict)
		ledger.AssertNumberOfCalls(t, "AddTransaction", 2)
	})

	t.Run("invalid event is rejected", func(t *testing.T) {
		ledger := newMemoryLedger()
		h := NewOrderConfirmedHandler(NewAccountService(ledger, nil, nil), zaptest.NewLogger(t))

		assert.ErrorIs(t, h.Handle(ctx, earnEvent("", "ORD1", 10)), loyalty.ErrInvalidValues)
		assert.ErrorIs(t, h.Handle(ctx, earnEvent("james", "", 10)), loyalty.ErrInvalidValues)
		assert.ErrorIs(t, h.Handle(ctx, earnEvent("james", "ORD1", -10)), loyalty.ErrInvalidValues)
		assert.Equal(t, 0, ledger.transactionCount("james"))
	})
}
