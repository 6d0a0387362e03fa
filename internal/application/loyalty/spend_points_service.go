package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SpendPointsService redeems points against an account.
// Reads always go to the ledger so the balance check sees committed state.
type SpendPointsService struct {
	accounts    *AccountService
	logger      *zap.Logger
	maxAttempts int
	metrics     PointsMetrics
}

// SpendPointsServiceOption configures a SpendPointsService
type SpendPointsServiceOption func(*SpendPointsService)

// WithSpendMaxAttempts sets how many times a conflicting spend is re-validated
func WithSpendMaxAttempts(n int) SpendPointsServiceOption {
	return func(s *SpendPointsService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSpendMetrics sets the business metrics sink
func WithSpendMetrics(m PointsMetrics) SpendPointsServiceOption {
	return func(s *SpendPointsService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSpendPointsService creates a new SpendPointsService
func NewSpendPointsService(
	accounts *AccountService,
	logger *zap.Logger,
	opts ...SpendPointsServiceOption,
) *SpendPointsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SpendPointsService{
		accounts:    accounts,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		metrics:     noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spend debits cmd.Spend points for cmd.OrderNumber and returns the updated account.
//
// Aggregate rejections (PointsNotAvailable, TransactionExistsForOrder, InvalidValues)
// are returned without any write. A ConcurrencyConflict at the ledger causes a fresh
// read and a new balance check, so two concurrent spends cannot overdraw.
func (s *SpendPointsService) Spend(ctx context.Context, cmd SpendPointsCommand) (*AccountResponse, error) {
	ctx, span := telemetry.StartUseCaseSpan(ctx, "spend_points",
		telemetry.AttrCustomerID.String(cmd.CustomerID),
		telemetry.AttrOrderNumber.String(cmd.OrderNumber),
		telemetry.AttrSpendAmount.Float64(cmd.Spend),
	)
	defer span.End()

	if strings.TrimSpace(cmd.CustomerID) == "" {
		return nil, loyalty.ErrInvalidValues.WithMessage("Customer ID cannot be empty")
	}

	ctx, _ = logger.WithCustomerID(ctx, s.logger, cmd.CustomerID)
	log := logger.WithLogger(ctx, s.logger)
	ledger := s.accounts.Ledger()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		span.SetAttributes(telemetry.AttrAttempt.Int(attempt))

		account, err := ledger.Retrieve(ctx, cmd.CustomerID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		tx, err := account.Spend(cmd.OrderNumber, cmd.Spend)
		if err != nil {
			s.recordRejection(ctx, cmd, err)
			telemetry.RecordError(span, err)
			return nil, err
		}

		err = ledger.AddTransaction(ctx, account, tx)
		if isConcurrencyConflict(err) {
			log.Warn("concurrent account update, re-validating spend",
				zap.String("order_number", cmd.OrderNumber),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			s.recordRejection(ctx, cmd, err)
			telemetry.RecordError(span, err)
			return nil, err
		}

		s.accounts.Store(ctx, account)
		s.metrics.RecordPointsSpent(ctx, cmd.Spend)
		log.Info("points spent",
			zap.String("order_number", cmd.OrderNumber),
			zap.Float64("spend", cmd.Spend),
			zap.String("balance", account.Balance().String()),
		)
		return ToAccountResponse(account), nil
	}

	err := loyalty.ErrConcurrencyConflict.WithMessage(
		fmt.Sprintf("gave up spending for order %s after %d attempts", cmd.OrderNumber, s.maxAttempts))
	telemetry.RecordError(span, err)
	return nil, err
}

func (s *SpendPointsService) recordRejection(ctx context.Context, cmd SpendPointsCommand, err error) {
	log := logger.WithLogger(ctx, s.logger)
	switch {
	case isDuplicateOrder(err):
		s.metrics.RecordDuplicateOrder(ctx, ChannelSpend)
		log.Warn("spend already recorded for order",
			zap.String("order_number", cmd.OrderNumber),
		)
	case errors.Is(err, loyalty.ErrPointsNotAvailable):
		s.metrics.RecordSpendRejected(ctx, "insufficient_points")
		log.Info("spend rejected, not enough points",
			zap.String("order_number", cmd.OrderNumber),
			zap.Float64("spend", cmd.Spend),
		)
	case errors.Is(err, loyalty.ErrInvalidValues):
		s.metrics.RecordSpendRejected(ctx, "invalid_values")
	default:
		log.Error("failed to record spend",
			zap.String("order_number", cmd.OrderNumber),
			zap.Error(err),
		)
	}
}
