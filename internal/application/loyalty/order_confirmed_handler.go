package loyalty

import (
	"context"
	"fmt"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the retries after an optimistic-lock conflict
const DefaultMaxAttempts = 3

// OrderConfirmedHandler credits points for confirmed orders.
// Duplicate deliveries of the same order are absorbed and reported as success.
type OrderConfirmedHandler struct {
	accounts    *AccountService
	logger      *zap.Logger
	earnRate    decimal.Decimal
	maxAttempts int
	metrics     PointsMetrics
}

// OrderConfirmedHandlerOption configures an OrderConfirmedHandler
type OrderConfirmedHandlerOption func(*OrderConfirmedHandler)

// WithEarnRate sets the points credited per unit of order value
func WithEarnRate(rate decimal.Decimal) OrderConfirmedHandlerOption {
	return func(h *OrderConfirmedHandler) {
		if rate.IsPositive() {
			h.earnRate = rate
		}
	}
}

// WithMaxAttempts sets how many times a conflicting write is retried
func WithMaxAttempts(n int) OrderConfirmedHandlerOption {
	return func(h *OrderConfirmedHandler) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithMetrics sets the business metrics sink
func WithMetrics(m PointsMetrics) OrderConfirmedHandlerOption {
	return func(h *OrderConfirmedHandler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewOrderConfirmedHandler creates a new handler for order confirmed events
func NewOrderConfirmedHandler(
	accounts *AccountService,
	logger *zap.Logger,
	opts ...OrderConfirmedHandlerOption,
) *OrderConfirmedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &OrderConfirmedHandler{
		accounts:    accounts,
		logger:      logger,
		earnRate:    loyalty.DefaultEarnRate,
		maxAttempts: DefaultMaxAttempts,
		metrics:     noopMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *OrderConfirmedHandler) EventTypes() []string {
	return []string{loyalty.EventTypeOrderConfirmed}
}

// Handle applies an OrderConfirmedEvent to the customer's account.
// A returned error means the event was not applied and must be delivered again.
func (h *OrderConfirmedHandler) Handle(ctx context.Context, event loyalty.OrderConfirmedEvent) error {
	ctx, span := telemetry.StartUseCaseSpan(ctx, "earn_points",
		telemetry.AttrCustomerID.String(event.CustomerID),
		telemetry.AttrOrderNumber.String(event.OrderID),
		telemetry.AttrOrderValue.Float64(event.OrderValue),
	)
	defer span.End()

	if err := event.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	ctx, _ = logger.WithCustomerID(ctx, h.logger, event.CustomerID)
	log := logger.WithLogger(ctx, h.logger)
	log.Info("processing order confirmed event",
		zap.String("order_id", event.OrderID),
		zap.Float64("order_value", event.OrderValue),
	)

	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		span.SetAttributes(telemetry.AttrAttempt.Int(attempt))

		// the first attempt may use the cache; a conflict means the snapshot was stale
		account, err := h.loadAccount(ctx, event.CustomerID, attempt == 1)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}

		tx, err := account.EarnAtRate(event.OrderID, event.OrderValue, h.earnRate)
		if isDuplicateOrder(err) {
			h.skipDuplicate(ctx, event)
			return nil
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}

		err = h.accounts.Ledger().AddTransaction(ctx, account, tx)
		switch {
		case err == nil:
			h.accounts.Store(ctx, account)
			h.metrics.RecordPointsEarned(ctx, tx.Change.InexactFloat64())
			span.SetAttributes(telemetry.AttrPoints.Float64(tx.Change.InexactFloat64()))
			log.Info("points earned",
				zap.String("order_id", event.OrderID),
				zap.String("points", tx.Change.String()),
				zap.String("balance", account.Balance().String()),
			)
			return nil
		case isDuplicateOrder(err):
			// another replica recorded the order between our read and write
			h.skipDuplicate(ctx, event)
			return nil
		case isConcurrencyConflict(err):
			log.Warn("concurrent account update, retrying earn",
				zap.String("order_id", event.OrderID),
				zap.Int("attempt", attempt),
			)
			continue
		default:
			log.Error("failed to record earned points",
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
			telemetry.RecordError(span, err)
			return err
		}
	}

	err := loyalty.ErrConcurrencyConflict.WithMessage(
		fmt.Sprintf("gave up crediting order %s after %d attempts", event.OrderID, h.maxAttempts))
	telemetry.RecordError(span, err)
	return err
}

// loadAccount retrieves the account, creating it on first contact
func (h *OrderConfirmedHandler) loadAccount(ctx context.Context, customerID string, useCache bool) (*loyalty.Account, error) {
	var (
		account *loyalty.Account
		err     error
	)
	if useCache {
		account, err = h.accounts.Retrieve(ctx, customerID)
	} else {
		account, err = h.accounts.Ledger().Retrieve(ctx, customerID)
	}
	if err == nil {
		return account, nil
	}
	log := logger.WithLogger(ctx, h.logger)
	if !isAccountNotFound(err) {
		log.Error("failed to retrieve account", zap.Error(err))
		return nil, err
	}

	log.Info("creating loyalty account")
	account, err = h.accounts.Ledger().NewAccount(ctx, customerID)
	if err != nil {
		log.Error("failed to create account", zap.Error(err))
		return nil, err
	}
	return account, nil
}

func (h *OrderConfirmedHandler) skipDuplicate(ctx context.Context, event loyalty.OrderConfirmedEvent) {
	h.metrics.RecordDuplicateOrder(ctx, ChannelEarn)
	logger.WithLogger(ctx, h.logger).Warn("points already credited for order, skipping",
		zap.String("order_id", event.OrderID))
}
